// Package fslog is a crash-consistent journal permitting several
// in-flight transactions.
//
// The log region is split into LOGCOPIES slots, each holding one
// transaction: a header block naming the home locations, followed by up
// to LOGSIZE payload blocks. Filesystem code brackets each call between
// Begin and End, issuing Write for every modified block. The last
// operation out of a slot seals it and drives the commit: payloads and
// header go to the slot's log region (the header write is the commit
// point), then the payloads are installed at their home locations and
// the header is cleared. Slots seal in sequence-number order and install
// in that same order, while the remaining slots keep accepting work.
//
// Admission is static: Begin only admits an operation into a slot that
// can absorb MAXOPBLOCKS more entries, so Write never runs out of log
// space.
package fslog

import (
	"sync"

	"github.com/goose-lang/std"
	"github.com/tchajed/goose/machine/disk"

	"github.com/JohnJacobsonIII/go-fslog/bcache"
	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/super"
	"github.com/JohnJacobsonIII/go-fslog/util"
)

type hdr struct {
	n     uint64
	seq   uint64
	addrs []common.Bnum
}

type slot struct {
	mu    *sync.Mutex
	start common.Bnum // header block of this slot's log region
	size  uint64      // region size in blocks, including the header

	outstanding uint64 // operations currently writing into this slot
	committing  bool   // sealed; commit+install in progress
	hdr         hdr
}

// Log is the journal. There is one Log, constructed by MkLog at boot.
type Log struct {
	mu    *sync.Mutex
	bc    *bcache.Bcache
	slots []*slot

	active    uint64 // slot currently accepting admissions
	committed uint64 // slots sealed and not yet fully installed
	seq       uint64 // next sequence number to stamp at seal

	condAdmit   *sync.Cond // Begin backpressure
	condInstall *sync.Cond // committers waiting for their turn
}

// Op is one transaction's handle, bound to the slot that admitted it.
type Op struct {
	l    *Log
	s    *slot
	nnew uint64 // entries this op appended (absorbed writes are free)
	done bool
}

// MkLog sets up the slots over sup's log region and recovers any
// committed transactions left behind by a crash. It must return before
// the first Begin.
func MkLog(sup *super.FsSuper) *Log {
	if common.HDRBYTES > disk.BlockSize {
		panic("mklog: too big logheader")
	}
	size := sup.NLog() / common.LOGCOPIES
	if size < common.LOGSIZE+1 {
		panic("mklog: slot too small")
	}
	mu := new(sync.Mutex)
	l := &Log{
		mu:          mu,
		bc:          sup.Disk,
		condAdmit:   sync.NewCond(mu),
		condInstall: sync.NewCond(mu),
	}
	for i := uint64(0); i < common.LOGCOPIES; i++ {
		l.slots = append(l.slots, &slot{
			mu:    new(sync.Mutex),
			start: sup.LogStart() + common.Bnum(i*size),
			size:  size,
			hdr:   hdr{addrs: make([]common.Bnum, common.LOGSIZE)},
		})
	}
	l.recover()
	util.DPrintf(1, "MkLog: %d slots of %d blocks\n", common.LOGCOPIES, size)
	return l
}

// LogSz is the maximum number of entries in one slot's commit.
func (l *Log) LogSz() uint64 {
	return common.LOGSIZE
}

// tryAdmit finds a slot that can accept one more operation, rotating
// active past sealed or capacity-full slots. An admissible slot must be
// able to absorb MAXOPBLOCKS more entries for every admitted operation,
// including this one. Caller holds l.mu.
func (l *Log) tryAdmit() *slot {
	if l.committed == uint64(len(l.slots)) {
		// every slot is in commit+install
		return nil
	}
	for range l.slots {
		s := l.slots[l.active]
		s.mu.Lock()
		reserve := (s.outstanding + 1) * common.MAXOPBLOCKS
		if !s.committing &&
			std.SumNoOverflow(s.hdr.n, reserve) &&
			s.hdr.n+reserve <= common.LOGSIZE {
			s.outstanding += 1
			s.mu.Unlock()
			return s
		}
		s.mu.Unlock()
		l.active = (l.active + 1) % uint64(len(l.slots))
	}
	return nil
}

// Begin blocks until the operation is admitted to a slot.
func (l *Log) Begin() *Op {
	l.mu.Lock()
	var s *slot
	for {
		s = l.tryAdmit()
		if s != nil {
			break
		}
		l.condAdmit.Wait()
	}
	l.mu.Unlock()
	util.DPrintf(5, "Begin: slot %d\n", s.start)
	return &Op{l: l, s: s}
}

// Write records that b belongs to this operation's transaction. The
// caller has modified b.Data and is done with the buffer; a typical use
// is
//
//	b := bc.Bread(bn)
//	... modify b.Data ...
//	op.Write(b)
//	bc.Brelse(b)
//
// The block stays pinned in the cache until it has been installed.
// Writing the same block twice in one transaction occupies a single log
// entry.
func (op *Op) Write(b *bcache.Buf) {
	s := op.s
	s.mu.Lock()
	if op.done || s.outstanding < 1 || s.committing {
		panic("log write outside of trans")
	}
	var i uint64
	for i = 0; i < s.hdr.n; i++ {
		if s.hdr.addrs[i] == b.Blkno { // absorption
			util.DPrintf(5, "Write: absorb %d\n", b.Blkno)
			break
		}
	}
	if i == s.hdr.n {
		if s.hdr.n == common.LOGSIZE || op.nnew == common.MAXOPBLOCKS {
			panic("too big a transaction")
		}
		s.hdr.addrs[i] = b.Blkno
		s.hdr.n += 1
		op.nnew += 1
		op.l.bc.Bpin(b)
		util.DPrintf(5, "Write: add %d at %d\n", b.Blkno, i)
	}
	s.mu.Unlock()
}

// End completes this operation. The last operation out seals the slot
// and becomes its committer: it waits until every earlier-sealed slot
// has installed, performs commit+install with no locks held, and then
// returns the slot to service.
func (op *Op) End() {
	l := op.l
	s := op.s
	l.mu.Lock()
	s.mu.Lock()
	if op.done {
		panic("end_op without begin")
	}
	op.done = true
	if s.committing {
		panic("log committing")
	}
	if s.outstanding == 0 {
		panic("end_op")
	}
	s.outstanding -= 1
	sealed := s.outstanding == 0
	if sealed {
		s.committing = true
		s.hdr.seq = l.seq
		l.seq += 1
		l.committed += 1
		util.DPrintf(2, "End: seal slot %d seq %d n %d\n",
			s.start, s.hdr.seq, s.hdr.n)
	}
	s.mu.Unlock()

	if !sealed {
		// this exit may have opened admission headroom
		l.condAdmit.Broadcast()
		l.mu.Unlock()
		return
	}

	// first be sure this is the next slot in commit order: our seq is
	// the lowest still committing exactly when the sealed sequence
	// numbers above ours account for all other committing slots.
	for s.hdr.seq+l.committed != l.seq {
		l.condInstall.Wait()
	}
	l.mu.Unlock()

	// no locks across disk I/O
	l.commit(s)

	l.mu.Lock()
	s.mu.Lock()
	s.committing = false
	l.committed -= 1
	s.mu.Unlock()
	l.condAdmit.Broadcast()
	l.condInstall.Broadcast()
	l.mu.Unlock()
}
