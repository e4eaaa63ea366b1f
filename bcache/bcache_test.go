package bcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tchajed/goose/machine/disk"
)

func mkCache(sz uint64) *Bcache {
	return MkBcache(disk.NewMemDisk(sz))
}

func TestReadSharesBuffer(t *testing.T) {
	bc := mkCache(1000)
	b1 := bc.Bread(7)
	b2 := bc.Bread(7)
	assert.Same(t, b1, b2, "readers of a block share one buffer")
	b1.Data[0] = 42
	assert.Equal(t, byte(42), b2.Data[0])
	bc.Brelse(b1)
	bc.Brelse(b2)
}

func TestWriteThrough(t *testing.T) {
	d := disk.NewMemDisk(1000)
	bc := MkBcache(d)
	b := bc.Bread(3)
	b.Data[0] = 9
	bc.Bwrite(b)
	bc.Brelse(b)
	assert.Equal(t, byte(9), d.Read(3)[0])
}

func TestEvictionBoundsCache(t *testing.T) {
	bc := mkCache(NBUF + 10)
	for bn := uint64(0); bn < NBUF+5; bn++ {
		bc.Brelse(bc.Bread(bn))
	}
	bc.mu.Lock()
	n := len(bc.bufs)
	bc.mu.Unlock()
	assert.LessOrEqual(t, n, int(NBUF))
}

func TestPinBarsEviction(t *testing.T) {
	bc := mkCache(NBUF + 10)
	b := bc.Bread(0)
	b.Data[0] = 1
	bc.Bpin(b)
	bc.Brelse(b)

	for bn := uint64(1); bn <= NBUF; bn++ {
		bc.Brelse(bc.Bread(bn))
	}

	b2 := bc.Bread(0)
	assert.Equal(t, byte(1), b2.Data[0], "pinned buffer stays cached")
	bc.Bunpin(b2)
	bc.Brelse(b2)
}

func TestExhaustionPanics(t *testing.T) {
	bc := mkCache(NBUF + 10)
	for bn := uint64(0); bn < NBUF; bn++ {
		bc.Bpin(bc.Bread(bn))
	}
	assert.Panics(t, func() { bc.Bread(NBUF) })
}

func TestBunpinUnderflowPanics(t *testing.T) {
	bc := mkCache(1000)
	b := bc.Bread(1)
	assert.Panics(t, func() { bc.Bunpin(b) })
}
