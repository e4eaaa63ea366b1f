package fslog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tchajed/goose/machine/disk"

	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/super"
)

const diskSz uint64 = 1000

type LogSuite struct {
	suite.Suite
	d   disk.Disk
	sup *super.FsSuper
	l   *Log
}

func (suite *LogSuite) SetupTest() {
	suite.d = disk.NewMemDisk(diskSz)
	suite.sup = super.MkFsSuperOn(suite.d)
	suite.l = MkLog(suite.sup)
}

// restart simulates a crash: the buffer cache is dropped and the log is
// recovered from whatever reached the disk.
func (suite *LogSuite) restart() {
	suite.sup = super.MkFsSuperOn(suite.d)
	suite.l = MkLog(suite.sup)
}

// onDisk reads a block straight from the disk, bypassing the cache.
func (suite *LogSuite) onDisk(bn common.Bnum) disk.Block {
	return suite.d.Read(uint64(bn))
}

func (suite *LogSuite) dataBnum(i uint64) common.Bnum {
	return suite.sup.DataStart() + i
}

func mkBlock(b byte) disk.Block {
	block := make(disk.Block, disk.BlockSize)
	for i := range block {
		block[i] = b
	}
	return block
}

// writeBlock stages val into bn under op.
func (suite *LogSuite) writeBlock(op *Op, bn common.Bnum, val byte) {
	b := suite.sup.Disk.Bread(bn)
	copy(b.Data, mkBlock(val))
	op.Write(b)
	suite.sup.Disk.Brelse(b)
}

func TestLog(t *testing.T) {
	suite.Run(t, new(LogSuite))
}

func (suite *LogSuite) TestSingleOpCommit() {
	op := suite.l.Begin()
	suite.writeBlock(op, suite.dataBnum(0), 1)
	suite.writeBlock(op, suite.dataBnum(1), 2)
	op.End()

	suite.Equal(mkBlock(1), suite.onDisk(suite.dataBnum(0)))
	suite.Equal(mkBlock(2), suite.onDisk(suite.dataBnum(1)))
	for _, s := range suite.l.slots {
		suite.Equal(uint64(0), decodeHdr(suite.onDisk(s.start)).n)
		suite.Equal(uint64(0), s.hdr.n)
		suite.False(s.committing)
	}
	suite.Equal(uint64(0), suite.l.committed)
}

func (suite *LogSuite) TestAbsorption() {
	op := suite.l.Begin()
	for _, val := range []byte{3, 4, 5} {
		suite.writeBlock(op, suite.dataBnum(0), val)
	}
	s := op.s
	suite.Equal(uint64(1), s.hdr.n, "same block must occupy one entry")
	start := s.start
	op.End()

	suite.Equal(mkBlock(5), suite.onDisk(suite.dataBnum(0)))
	// the log payload holds the final value exactly once
	suite.Equal(mkBlock(5), suite.onDisk(start+1))
}

func (suite *LogSuite) TestCommitSurvivesRestart() {
	op := suite.l.Begin()
	suite.writeBlock(op, suite.dataBnum(2), 7)
	op.End()

	suite.restart()
	suite.Equal(mkBlock(7), suite.onDisk(suite.dataBnum(2)))
	suite.Equal(mkBlock(0), suite.onDisk(suite.dataBnum(3)))
}

func (suite *LogSuite) TestConcurrentOps() {
	var wg sync.WaitGroup
	for i := uint64(0); i < 3; i++ {
		wg.Add(1)
		go func(i uint64) {
			defer wg.Done()
			op := suite.l.Begin()
			suite.writeBlock(op, suite.dataBnum(i), byte(i+1))
			op.End()
		}(i)
	}
	wg.Wait()

	for i := uint64(0); i < 3; i++ {
		suite.Equal(mkBlock(byte(i+1)), suite.onDisk(suite.dataBnum(i)))
	}
	suite.Equal(uint64(0), suite.l.committed)
}

// Admission charges MAXOPBLOCKS per admitted op; once a slot cannot
// absorb another worst-case op, admission rotates, and once both slots
// are charged full, Begin blocks until an op ends.
func (suite *LogSuite) TestRotationAndBackpressure() {
	perSlot := int(common.LOGSIZE / common.MAXOPBLOCKS)
	var ops []*Op
	for i := 0; i < perSlot; i++ {
		ops = append(ops, suite.l.Begin())
	}
	for i := 1; i < perSlot; i++ {
		suite.Same(ops[0].s, ops[i].s, "ops up to the cap share a slot")
	}

	rotated := suite.l.Begin()
	suite.NotSame(ops[0].s, rotated.s, "cap reached; admission rotates")

	for i := 0; i < perSlot-1; i++ {
		ops = append(ops, suite.l.Begin())
		suite.Same(rotated.s, ops[len(ops)-1].s)
	}

	// both slots fully charged: the next Begin must block
	admitted := make(chan *Op)
	go func() {
		admitted <- suite.l.Begin()
	}()
	select {
	case <-admitted:
		suite.Fail("Begin admitted with every slot at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	// drain the first slot; each End frees admission headroom
	for i := 0; i < perSlot; i++ {
		ops[i].End()
	}
	op := <-admitted
	op.End()
	rotated.End()
	for i := perSlot; i < len(ops); i++ {
		ops[i].End()
	}
	suite.Equal(uint64(0), suite.l.committed)
}

// Many writers on distinct blocks; every committed value must be on
// disk after a restart, whatever order the slots sealed in.
func (suite *LogSuite) TestCommitStorm() {
	const writers = 8
	const rounds = 25
	var wg sync.WaitGroup
	for w := uint64(0); w < writers; w++ {
		wg.Add(1)
		go func(w uint64) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				op := suite.l.Begin()
				suite.writeBlock(op, suite.dataBnum(w), byte(r+1))
				op.End()
			}
		}(w)
	}
	wg.Wait()

	suite.restart()
	for w := uint64(0); w < writers; w++ {
		suite.Equal(mkBlock(rounds), suite.onDisk(suite.dataBnum(w)))
	}
}

func (suite *LogSuite) TestWriteAfterEndPanics() {
	op := suite.l.Begin()
	suite.writeBlock(op, suite.dataBnum(0), 1)
	op.End()
	suite.Panics(func() {
		suite.writeBlock(op, suite.dataBnum(1), 2)
	})
}

func (suite *LogSuite) TestDoubleEndPanics() {
	op := suite.l.Begin()
	op.End()
	suite.Panics(func() { op.End() })
}

func (suite *LogSuite) TestOpTooBigPanics() {
	op := suite.l.Begin()
	suite.Panics(func() {
		for i := uint64(0); i <= common.MAXOPBLOCKS; i++ {
			suite.writeBlock(op, suite.dataBnum(i), 1)
		}
	})
}

func TestLogSzConstant(t *testing.T) {
	d := disk.NewMemDisk(diskSz)
	l := MkLog(super.MkFsSuperOn(d))
	assert.Equal(t, common.LOGSIZE, l.LogSz())
}
