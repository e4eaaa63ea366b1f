// Package stats tracks operation counts and latencies for benchmarks.
package stats

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

type Op struct {
	count uint64
	nanos uint64
	nbyte uint64
}

// Record accounts one completed operation that started at start.
func (op *Op) Record(start time.Time) {
	atomic.AddUint64(&op.count, 1)
	dur := time.Since(start)
	atomic.AddUint64(&op.nanos, uint64(dur.Nanoseconds()))
}

// RecordBytes accounts an operation that moved n bytes.
func (op *Op) RecordBytes(start time.Time, n uint64) {
	atomic.AddUint64(&op.nbyte, n)
	op.Record(start)
}

func (op *Op) load() Op {
	return Op{
		count: atomic.LoadUint64(&op.count),
		nanos: atomic.LoadUint64(&op.nanos),
		nbyte: atomic.LoadUint64(&op.nbyte),
	}
}

func (op Op) MicrosPerOp() float64 {
	if op.count == 0 {
		return 0
	}
	return float64(op.nanos) / float64(op.count) / 1e3
}

func (op Op) MBPerSec() float64 {
	if op.nanos == 0 {
		return 0
	}
	return float64(op.nbyte) / 1e6 * 1e9 / float64(op.nanos)
}

func WriteTable(names []string, ops []*Op, w io.Writer) {
	if len(names) != len(ops) {
		panic("mismatched names and ops lists")
	}
	tbl := table.New("op", "count", "us/op", "MB/s")
	for i, name := range names {
		op := ops[i].load()
		tbl.AddRow(name, op.count,
			fmt.Sprintf("%0.1f", op.MicrosPerOp()),
			fmt.Sprintf("%0.1f", op.MBPerSec()))
	}
	tbl.WithWriter(w)
	tbl.Print()
}

func FormatTable(names []string, ops []*Op) string {
	buf := new(bytes.Buffer)
	WriteTable(names, ops, buf)
	return buf.String()
}
