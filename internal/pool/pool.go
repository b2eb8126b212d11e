// Package pool provides memory management for block transfers.
//
// Unlike a free-floating sync.Pool, the BufferPool here is a bounded pool
// with explicit checkout accounting: the number of buffers is fixed, Get
// blocks when all are checked out (this is the transfer engine's
// backpressure), and Outstanding exposes the live checkout count so tests
// can assert the pool is drained back to idle on every code path.
package pool

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// BufferPool hands out fixed-size byte slabs with checkout tracking.
type BufferPool struct {
	size        int64
	slots       chan []byte
	outstanding atomic.Int64
}

// New creates a pool of count buffers of size bytes each. Buffers are
// allocated lazily on first checkout of each slot.
func New(size int64, count int) *BufferPool {
	if count < 1 {
		count = 1
	}
	p := &BufferPool{
		size:  size,
		slots: make(chan []byte, count),
	}
	for i := 0; i < count; i++ {
		p.slots <- nil
	}
	return p
}

// Get checks out a buffer of the pool's configured size, blocking while
// all buffers are outstanding. The returned slice has zero length and
// full capacity.
func (p *BufferPool) Get(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-p.slots:
		if buf == nil {
			buf = make([]byte, 0, p.size)
		}
		p.outstanding.Add(1)
		return buf[:0], nil
	case <-ctx.Done():
		return nil, errors.NewError("bufferPool", ctx.Err())
	}
}

// Put returns a checked-out buffer. Every code path that obtained a buffer
// through Get must hand it back, including error and cancellation paths.
func (p *BufferPool) Put(buf []byte) {
	if int64(cap(buf)) != p.size {
		// Foreign buffer; dropping it would corrupt the accounting.
		panic(fmt.Sprintf("pool: returned buffer capacity %d does not match pool size %d", cap(buf), p.size))
	}
	p.outstanding.Add(-1)
	p.slots <- buf[:0]
}

// Outstanding returns the number of buffers currently checked out.
// At idle this must be zero; a non-zero value at idle is a leak.
func (p *BufferPool) Outstanding() int64 {
	return p.outstanding.Load()
}

// BufferSize returns the size of the buffers handed out by the pool.
func (p *BufferPool) BufferSize() int64 {
	return p.size
}
