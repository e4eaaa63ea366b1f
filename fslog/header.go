package fslog

import (
	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/JohnJacobsonIII/go-fslog/common"
)

// On-disk slot header: n, seq, then LOGSIZE block numbers, all
// little-endian uint64. A header with n == 0 is an empty slot no matter
// what the rest of the block holds.

func encodeHdr(h *hdr) disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(h.n)
	enc.PutInt(h.seq)
	enc.PutInts(h.addrs)
	return enc.Finish()
}

func decodeHdr(blk disk.Block) *hdr {
	dec := marshal.NewDec(blk)
	n := dec.GetInt()
	seq := dec.GetInt()
	addrs := dec.GetInts(common.LOGSIZE)
	return &hdr{n: n, seq: seq, addrs: addrs}
}
