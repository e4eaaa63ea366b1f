package fslog

import (
	"sort"

	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/util"
)

// recover reads every slot header and installs the committed
// transactions in ascending sequence order, clearing each header after
// its install. Runs from MkLog, before any operation exists.
//
// Sequence numbers are monotonic 64-bit counters, so ordering is a
// plain sort; a header with n == 0 is an empty slot. Two committed
// headers carrying the same sequence number cannot be explained by any
// crash of the commit protocol, so that state is refused.
func (l *Log) recover() {
	var sealed []*slot
	for _, s := range l.slots {
		b := l.bc.Bread(s.start)
		h := decodeHdr(b.Data)
		l.bc.Brelse(b)
		if h.n > common.LOGSIZE {
			panic("recover: corrupt log header")
		}
		if h.n == 0 {
			continue
		}
		s.hdr = *h
		sealed = append(sealed, s)
	}
	sort.Slice(sealed, func(i, j int) bool {
		return sealed[i].hdr.seq < sealed[j].hdr.seq
	})
	for i, s := range sealed {
		if i > 0 && s.hdr.seq == sealed[i-1].hdr.seq {
			panic("recover: corrupt log")
		}
		util.DPrintf(1, "recover: install slot %d seq %d n %d\n",
			s.start, s.hdr.seq, s.hdr.n)
		l.installTrans(s, true)
		s.hdr.n = 0
		l.writeHead(s)
		l.seq = s.hdr.seq + 1
	}
}
