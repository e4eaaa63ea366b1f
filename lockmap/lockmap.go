// Package lockmap serializes access to ranges of home blocks.
//
// An operation that modifies blocks [start, start+count) acquires the
// range before its first read and releases it once the operation has
// ended, so the journal's commit never copies a block mid-update.
// Overlapping ranges conflict; disjoint ranges proceed in parallel.
// Waiters sleep on one condition variable and re-check for conflicts
// after every broadcast.
package lockmap

import (
	"sync"

	"github.com/JohnJacobsonIII/go-fslog/common"
)

type span struct {
	start common.Bnum
	count uint64
}

func (s span) overlaps(o span) bool {
	return s.start < o.start+common.Bnum(o.count) &&
		o.start < s.start+common.Bnum(s.count)
}

type LockMap struct {
	mu   *sync.Mutex
	cond *sync.Cond
	held []span
}

func MkLockMap() *LockMap {
	mu := new(sync.Mutex)
	return &LockMap{
		mu:   mu,
		cond: sync.NewCond(mu),
	}
}

// conflicts reports whether s overlaps any held range. Caller holds
// lm.mu.
func (lm *LockMap) conflicts(s span) bool {
	for _, h := range lm.held {
		if h.overlaps(s) {
			return true
		}
	}
	return false
}

// Acquire blocks until no held range overlaps [start, start+count),
// then takes the range.
func (lm *LockMap) Acquire(start common.Bnum, count uint64) {
	if count == 0 {
		panic("acquire of empty block range")
	}
	s := span{start: start, count: count}
	lm.mu.Lock()
	for lm.conflicts(s) {
		lm.cond.Wait()
	}
	lm.held = append(lm.held, s)
	lm.mu.Unlock()
}

// Release drops exactly the range a previous Acquire took and wakes
// every waiter to re-check.
func (lm *LockMap) Release(start common.Bnum, count uint64) {
	lm.mu.Lock()
	for i, h := range lm.held {
		if h.start == start && h.count == count {
			lm.held[i] = lm.held[len(lm.held)-1]
			lm.held = lm.held[:len(lm.held)-1]
			lm.cond.Broadcast()
			lm.mu.Unlock()
			return
		}
	}
	panic("release of unheld block range")
}
