package goxr

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const memoryBufferSize = 256 * 1024

var errPipeClosed = errors.New("memory stream closed")

// memoryPipe hands decoded data to a reader on another goroutine through
// one reusable buffer. The writer waits on empty, the reader on filled,
// and both give up when the reader closes or ctx is done.
type memoryPipe struct {
	ctx    context.Context
	cancel context.CancelFunc

	filled chan []byte
	empty  chan []byte
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	cur  []byte
	held []byte
	err  error
}

func newMemoryPipe(ctx context.Context) *memoryPipe {
	ctx, cancel := context.WithCancel(ctx)
	mp := &memoryPipe{
		ctx:    ctx,
		cancel: cancel,
		filled: make(chan []byte, 1),
		empty:  make(chan []byte, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	mp.empty <- make([]byte, memoryBufferSize)
	return mp
}

func (mp *memoryPipe) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		var buf []byte
		select {
		case buf = <-mp.empty:
		case <-mp.quit:
			return written, errPipeClosed
		case <-mp.ctx.Done():
			return written, mp.ctx.Err()
		}
		n := copy(buf[:cap(buf)], p)
		select {
		case mp.filled <- buf[:n]:
		case <-mp.quit:
			return written, errPipeClosed
		case <-mp.ctx.Done():
			return written, mp.ctx.Err()
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

// finish is called by the producer once; err is what Read reports after
// the data.
func (mp *memoryPipe) finish(err error) {
	mp.err = err
	close(mp.filled)
	close(mp.done)
}

func (mp *memoryPipe) Read(p []byte) (int, error) {
	for len(mp.cur) == 0 {
		if mp.held != nil {
			mp.empty <- mp.held[:0]
			mp.held = nil
		}
		select {
		case b, ok := <-mp.filled:
			if !ok {
				if mp.err != nil {
					return 0, mp.err
				}
				return 0, io.EOF
			}
			mp.cur, mp.held = b, b
		case <-mp.quit:
			return 0, errPipeClosed
		case <-mp.ctx.Done():
			return 0, mp.ctx.Err()
		}
	}
	n := copy(p, mp.cur)
	mp.cur = mp.cur[n:]
	return n, nil
}

// Close stops the producer and waits for it to unwind.
func (mp *memoryPipe) Close() error {
	mp.once.Do(func() {
		close(mp.quit)
		mp.cancel()
	})
	<-mp.done
	return nil
}

// ExtractToMemory streams the entry called name out of archive. The
// decode runs on its own goroutine and stops when the returned reader
// is closed or ctx is done. Read reports the entry's failure, if any,
// after the last byte.
func ExtractToMemory(ctx context.Context, req Request, archive, name string) (io.ReadCloser, error) {
	if name == "" {
		return nil, errors.New("no entry name given")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req.Archives = []string{archive}
	req.Patterns = []string{name}
	req.Excludes = nil
	req.Recurse = false
	req.Mode = ModePrintToStream

	mp := newMemoryPipe(ctx)
	go func() {
		res, err := Extract(mp.ctx, req, Options{Stdout: mp, Log: io.Discard, ErrLog: io.Discard})
		mp.finish(memoryResult(res, err, archive, name))
	}()
	return mp, nil
}

func memoryResult(res *Result, err error, archive, name string) error {
	switch {
	case err != nil:
		return err
	case len(res.Failures) > 0:
		return res.Failures[0]
	case res.Break:
		return context.Canceled
	case res.Extracted == 0:
		return newEntryError(KindNone, archive, name, errors.New("no such entry"))
	}
	return nil
}
