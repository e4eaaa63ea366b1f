// fslogbench measures journal commit throughput and pipe throughput.
//
// The journal benchmark runs concurrent operations, each locking a home
// block, modifying it, and committing through the log. The pipe
// benchmark streams a repeating pattern through a pipe in 512-byte
// chunks and verifies every byte on the far side.
package main

import (
	"flag"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goose-lang/std"
	log "github.com/sirupsen/logrus"

	"github.com/JohnJacobsonIII/go-fslog/bcache"
	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/fslog"
	"github.com/JohnJacobsonIII/go-fslog/lockmap"
	"github.com/JohnJacobsonIII/go-fslog/pipe"
	"github.com/JohnJacobsonIII/go-fslog/super"
	"github.com/JohnJacobsonIII/go-fslog/util/stats"
)

const blocksPerWorker = 8

func benchJournal(sup *super.FsSuper, threads int, benchtime time.Duration,
	op *stats.Op) {
	l := fslog.MkLog(sup)
	locks := lockmap.MkLockMap()
	bc := sup.Disk
	deadline := time.Now().Add(benchtime)

	var wg sync.WaitGroup
	for w := 0; w < threads; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := sup.DataStart() +
				common.Bnum(w*blocksPerWorker)
			var n uint64
			for time.Now().Before(deadline) {
				start := time.Now()
				bn := base + n%blocksPerWorker
				locks.Acquire(bn, 1)
				o := l.Begin()
				b := bc.Bread(bn)
				b.Data[0] = byte(n)
				o.Write(b)
				bc.Brelse(b)
				o.End()
				locks.Release(bn, 1)
				op.Record(start)
				n++
			}
		}(w)
	}
	wg.Wait()
}

func pattern(off int, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + (off+i)%26)
	}
	return b
}

func benchPipe(mib int, op *stats.Op) {
	total := mib << 20
	const chunk = 512
	r, w := pipe.Alloc()
	start := time.Now()

	go func() {
		for off := 0; off < total; off += chunk {
			if _, err := w.Write(pattern(off, chunk)); err != nil {
				log.WithError(err).Fatal("pipe write")
			}
		}
		w.Close()
	}()

	buf := make([]byte, chunk)
	off := 0
	for {
		n, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Fatal("pipe read")
		}
		if !std.BytesEqual(buf[:n], pattern(off, n)) {
			log.WithField("off", off).Fatal("pipe data corrupted")
		}
		off += n
	}
	if off != total {
		log.WithFields(log.Fields{"read": off, "wrote": total}).
			Fatal("pipe byte count mismatch")
	}
	op.RecordBytes(start, uint64(total))
}

func main() {
	var (
		diskSz    = flag.Uint64("size", 10000, "disk size in blocks")
		diskFile  = flag.String("disk", "", "disk image (default: in-memory)")
		threads   = flag.Int("threads", 4, "concurrent journal operations")
		benchtime = flag.Duration("benchtime", 2*time.Second,
			"journal benchmark duration")
		pipeMiB = flag.Int("pipe-mib", 10, "bytes to stream through the pipe, in MiB")
	)
	flag.Parse()

	var name *string
	if *diskFile != "" {
		name = diskFile
	}
	sup, err := super.MkFsSuper(*diskSz, name)
	if err != nil {
		log.WithError(err).Fatal("create superblock")
	}
	if uint64(*threads)*blocksPerWorker > sup.Size-uint64(sup.DataStart()) {
		log.Fatal("disk too small for worker count")
	}

	log.WithFields(log.Fields{
		"slots":   common.LOGCOPIES,
		"logsize": common.LOGSIZE,
		"nbuf":    bcache.NBUF,
		"threads": *threads,
	}).Info("starting benchmarks")

	jrnlOp := new(stats.Op)
	pipeOp := new(stats.Op)

	benchJournal(sup, *threads, *benchtime, jrnlOp)
	benchPipe(*pipeMiB, pipeOp)

	stats.WriteTable(
		[]string{"journal-op", "pipe-stream"},
		[]*stats.Op{jrnlOp, pipeOp},
		os.Stdout)
}
