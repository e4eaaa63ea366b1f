package common

// Bnum names a disk block.
type Bnum = uint64

const NULLBNUM Bnum = 0

const (
	// LOGCOPIES is the number of journal slots, each holding one
	// in-flight transaction. Must be at least 2 for any concurrency.
	LOGCOPIES uint64 = 2

	// MAXOPBLOCKS bounds the distinct blocks one operation may write.
	MAXOPBLOCKS uint64 = 10

	// LOGSIZE is the maximum number of block entries absorbed into one
	// slot's commit.
	LOGSIZE uint64 = 3 * MAXOPBLOCKS

	// HDRMETA is the header space for the entry count and the sequence
	// number; the rest of the header block holds block numbers.
	HDRMETA uint64 = 16

	// HDRBYTES is the encoded size of a slot header. It must fit in one
	// disk block.
	HDRBYTES uint64 = HDRMETA + 8*LOGSIZE

	// NLOGBLKS is the total size of the log region: LOGCOPIES slot
	// regions of one header block plus LOGSIZE payload blocks each.
	NLOGBLKS uint64 = LOGCOPIES * (LOGSIZE + 1)
)

// PIPESIZE is the pipe buffer capacity in bytes. It must be a power of
// two so the 32-bit cursors stay aligned across wraparound.
const PIPESIZE uint32 = 2048
