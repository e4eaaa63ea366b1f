package fslog

import (
	"github.com/JohnJacobsonIII/go-fslog/util"
)

// writeLog copies each logged block's current cached contents into the
// slot's log region. The blocks were pinned by Write, so the cache still
// holds the transaction's modifications; the home locations keep their
// old data.
func (l *Log) writeLog(s *slot) {
	for i := uint64(0); i < s.hdr.n; i++ {
		from := l.bc.Bread(s.hdr.addrs[i])
		to := l.bc.Bread(s.start + 1 + i)
		copy(to.Data, from.Data)
		l.bc.Bwrite(to)
		l.bc.Brelse(to)
		l.bc.Brelse(from)
		util.DPrintf(5, "writeLog: %d to log block %d\n",
			s.hdr.addrs[i], s.start+1+i)
	}
	l.bc.Barrier()
}

// writeHead writes the slot's in-memory header to disk. With hdr.n > 0
// this is the commit point: recovery replays the transaction once the
// header is durable, and ignores it before that.
func (l *Log) writeHead(s *slot) {
	b := l.bc.Bread(s.start)
	copy(b.Data, encodeHdr(&s.hdr))
	l.bc.Bwrite(b)
	l.bc.Brelse(b)
	l.bc.Barrier()
}

// installTrans copies the slot's logged blocks to their home locations.
// Safe to repeat: the log payload is unchanged and the destinations are
// simply overwritten.
func (l *Log) installTrans(s *slot, recovering bool) {
	for i := uint64(0); i < s.hdr.n; i++ {
		lbuf := l.bc.Bread(s.start + 1 + i)
		dbuf := l.bc.Bread(s.hdr.addrs[i])
		copy(dbuf.Data, lbuf.Data)
		l.bc.Bwrite(dbuf)
		if !recovering {
			l.bc.Bunpin(dbuf)
		}
		l.bc.Brelse(lbuf)
		l.bc.Brelse(dbuf)
		util.DPrintf(5, "installTrans: log block %d to %d\n",
			i, s.hdr.addrs[i])
	}
	l.bc.Barrier()
}

// commit runs the sealed slot through commit and install. Runs with no
// locks held; the slot is sealed, so nothing else touches its header.
func (l *Log) commit(s *slot) {
	if s.hdr.n == 0 {
		return
	}
	util.DPrintf(2, "commit: slot %d seq %d n %d\n",
		s.start, s.hdr.seq, s.hdr.n)
	l.writeLog(s)
	l.writeHead(s) // the real commit
	l.installTrans(s, false)
	s.hdr.n = 0
	l.writeHead(s) // erase the transaction from the log
}
