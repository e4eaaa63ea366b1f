// Package pipe is a bounded blocking byte channel between two
// endpoints.
//
// A writer's bytes are read back in order; readers block while the pipe
// is empty and the writer is still open, writers block while it is
// full. Closing the write end drains to io.EOF; closing the read end
// fails subsequent writes. Closing an end also wakes its own blocked
// operations, which return ErrClosed. The buffer is freed when the
// second end closes.
package pipe

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/JohnJacobsonIII/go-fslog/common"
	"github.com/JohnJacobsonIII/go-fslog/util"
)

var (
	// ErrPeerClosed means the read end was closed, so the bytes could
	// never be consumed.
	ErrPeerClosed = errors.New("pipe: read end closed")
	// ErrClosed means the operation's own end was closed.
	ErrClosed = errors.New("pipe: end closed")
)

type pipe struct {
	mu   *sync.Mutex
	data []byte // len PIPESIZE; nil once both ends close

	nread  uint32 // bytes read, monotone mod 2^32
	nwrite uint32 // bytes written, monotone mod 2^32

	readopen  bool
	writeopen bool

	rcond *sync.Cond // data available to read
	wcond *sync.Cond // space available to write
}

type ReadEnd struct {
	p *pipe
}

type WriteEnd struct {
	p *pipe
}

var _ io.ReadCloser = (*ReadEnd)(nil)
var _ io.WriteCloser = (*WriteEnd)(nil)

// Alloc creates a pipe and returns its two endpoints.
func Alloc() (*ReadEnd, *WriteEnd) {
	mu := new(sync.Mutex)
	p := &pipe{
		mu:        mu,
		data:      make([]byte, common.PIPESIZE),
		readopen:  true,
		writeopen: true,
		rcond:     sync.NewCond(mu),
		wcond:     sync.NewCond(mu),
	}
	return &ReadEnd{p: p}, &WriteEnd{p: p}
}

func (p *pipe) write(b []byte) (int, error) {
	var i int
	p.mu.Lock()
	for i < len(b) {
		if !p.readopen {
			p.mu.Unlock()
			return i, ErrPeerClosed
		}
		if !p.writeopen {
			p.mu.Unlock()
			return i, ErrClosed
		}
		if p.nwrite == p.nread+common.PIPESIZE { // full
			p.rcond.Broadcast()
			p.wcond.Wait()
			continue
		}
		// min of: remaining bytes, free space, span to the wrap point
		free := common.PIPESIZE - (p.nwrite - p.nread)
		span := common.PIPESIZE - p.nwrite%common.PIPESIZE
		delta := int(util.Min(uint64(len(b)-i),
			util.Min(uint64(free), uint64(span))))
		copy(p.data[p.nwrite%common.PIPESIZE:], b[i:i+delta])
		p.nwrite += uint32(delta)
		i += delta
	}
	p.rcond.Broadcast()
	p.mu.Unlock()
	return i, nil
}

func (p *pipe) read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	for p.nread == p.nwrite && p.writeopen { // empty
		if !p.readopen {
			p.mu.Unlock()
			return 0, ErrClosed
		}
		p.rcond.Wait()
	}
	if !p.readopen {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	var i int
	for i < len(b) {
		if p.nread == p.nwrite {
			break
		}
		avail := p.nwrite - p.nread
		span := common.PIPESIZE - p.nread%common.PIPESIZE
		delta := int(util.Min(uint64(len(b)-i),
			util.Min(uint64(avail), uint64(span))))
		off := p.nread % common.PIPESIZE
		copy(b[i:i+delta], p.data[off:off+uint32(delta)])
		p.nread += uint32(delta)
		i += delta
	}
	p.wcond.Broadcast()
	if i == 0 && !p.writeopen {
		p.mu.Unlock()
		return 0, io.EOF
	}
	p.mu.Unlock()
	return i, nil
}

func (p *pipe) close(writable bool) {
	p.mu.Lock()
	if writable {
		p.writeopen = false
	} else {
		p.readopen = false
	}
	// wake both sides: the peer observes EOF or failure, and our own
	// blocked operations bail out
	p.rcond.Broadcast()
	p.wcond.Broadcast()
	if !p.readopen && !p.writeopen {
		p.data = nil
	}
	p.mu.Unlock()
}

func (r *ReadEnd) Read(b []byte) (int, error) {
	return r.p.read(b)
}

func (r *ReadEnd) Close() error {
	r.p.close(false)
	return nil
}

func (w *WriteEnd) Write(b []byte) (int, error) {
	return w.p.write(b)
}

func (w *WriteEnd) Close() error {
	w.p.close(true)
	return nil
}
