// Package bcache is a buffer cache over a block device.
//
// Bread returns a reference-counted in-memory copy of a disk block;
// writes through Bwrite are synchronous. A buffer stays cached while it
// has references or pins; Bpin is an eviction bar used by the journal to
// keep a modified block in memory from log time until it has been
// installed at its home location.
//
// The cache does not lock buffer contents. Callers that modify a shared
// block serialize among themselves (see lockmap).
package bcache

import (
	"sync"

	"github.com/tchajed/goose/machine/disk"

	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/util"
)

// NBUF is the cache capacity in buffers.
const NBUF uint64 = 512

type Buf struct {
	Blkno common.Bnum
	Data  disk.Block

	refcnt uint64
	pins   uint64
}

type Bcache struct {
	mu   *sync.Mutex
	d    disk.Disk
	bufs map[common.Bnum]*Buf
}

func MkBcache(d disk.Disk) *Bcache {
	return &Bcache{
		mu:   new(sync.Mutex),
		d:    d,
		bufs: make(map[common.Bnum]*Buf),
	}
}

// evict drops one idle buffer. Caller holds bc.mu.
func (bc *Bcache) evict() {
	for bn, b := range bc.bufs {
		if b.refcnt == 0 && b.pins == 0 {
			delete(bc.bufs, bn)
			return
		}
	}
	panic("bget: no buffers")
}

// Bread returns a referenced buffer for blkno, reading it from disk on a
// miss. The same *Buf is shared by all readers of the block.
func (bc *Bcache) Bread(blkno common.Bnum) *Buf {
	bc.mu.Lock()
	b, ok := bc.bufs[blkno]
	if ok {
		b.refcnt += 1
		bc.mu.Unlock()
		return b
	}
	if uint64(len(bc.bufs)) >= NBUF {
		bc.evict()
	}
	b = &Buf{
		Blkno:  blkno,
		Data:   bc.d.Read(uint64(blkno)),
		refcnt: 1,
	}
	bc.bufs[blkno] = b
	bc.mu.Unlock()
	util.DPrintf(10, "Bread: miss %d\n", blkno)
	return b
}

// Bwrite flushes b's contents to disk synchronously.
func (bc *Bcache) Bwrite(b *Buf) {
	bc.d.Write(uint64(b.Blkno), b.Data)
}

// Brelse drops a reference taken by Bread.
func (bc *Bcache) Brelse(b *Buf) {
	bc.mu.Lock()
	if b.refcnt == 0 {
		panic("brelse")
	}
	b.refcnt -= 1
	bc.mu.Unlock()
}

// Bpin bars b from eviction until a matching Bunpin.
func (bc *Bcache) Bpin(b *Buf) {
	bc.mu.Lock()
	b.pins += 1
	bc.mu.Unlock()
}

func (bc *Bcache) Bunpin(b *Buf) {
	bc.mu.Lock()
	if b.pins == 0 {
		panic("bunpin")
	}
	b.pins -= 1
	bc.mu.Unlock()
}

// Barrier orders all preceding writes before any later ones.
func (bc *Bcache) Barrier() {
	bc.d.Barrier()
}

func (bc *Bcache) Size() uint64 {
	return bc.d.Size()
}
