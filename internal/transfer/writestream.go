package transfer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/checksum"
	"github.com/PositiveExperienceLLC/blobclient/internal/manifest"
	"github.com/PositiveExperienceLLC/blobclient/internal/pool"
	"github.com/PositiveExperienceLLC/blobclient/internal/validation"
)

// StreamSpec describes a buffered write stream.
type StreamSpec struct {
	Container   string
	Blob        string
	BlockSize   int64
	Concurrency int
	Checksum    blobtypes.ChecksumAlgorithm
	Headers     blobtypes.BlobHeaders

	// Conditions are evaluated when the stream is committed at Close, not
	// when it is opened. A stream opened against a blob that gains a
	// conflicting writer meanwhile fails at Close.
	Conditions *blobtypes.AccessConditions
}

// WriteStream accumulates writes into block-sized buffers and stages each
// full block in the background as soon as it fills. Nothing is visible at
// the target blob until Close commits the block manifest.
//
// A WriteStream is not safe for concurrent use.
type WriteStream struct {
	sched *Scheduler
	spec  StreamSpec

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	gctx   context.Context

	pool   *pool.BufferPool
	namer  *blockIDNamer
	hasher *checksum.Hasher

	buf      []byte
	man      *manifest.Manifest
	size     int64
	requests atomic.Int64

	closed bool
	result *blobtypes.UploadResult
}

// OpenWriteStream creates a write stream. Opening performs no network
// calls; the first request happens when a block fills or Flush is called.
func (s *Scheduler) OpenWriteStream(ctx context.Context, spec *StreamSpec) (*WriteStream, error) {
	if spec.BlockSize <= 0 {
		spec.BlockSize = blobtypes.DefaultBlockSize
	}
	if err := validation.ValidateBlockSize(spec.BlockSize); err != nil {
		return nil, errors.NewBlobError("openWriteStream", spec.Container, spec.Blob, err)
	}
	if spec.Concurrency < 1 {
		spec.Concurrency = blobtypes.DefaultConcurrency
	}

	hasher, err := checksum.New(spec.Checksum)
	if err != nil {
		return nil, errors.NewBlobError("openWriteStream", spec.Container, spec.Blob, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(sctx)
	g.SetLimit(spec.Concurrency)

	// One buffer beyond the concurrency limit so the caller can keep
	// filling the next block while all workers are busy.
	return &WriteStream{
		sched:  s,
		spec:   *spec,
		ctx:    sctx,
		cancel: cancel,
		g:      g,
		gctx:   gctx,
		pool:   pool.New(spec.BlockSize, spec.Concurrency+1),
		namer:  newBlockIDNamer(),
		man:    manifest.New(),
		hasher: hasher,
	}, nil
}

// Write buffers p, dispatching a staging request whenever a block fills.
// It blocks only when every buffer is checked out, which is the stream's
// backpressure against a slow service.
func (ws *WriteStream) Write(p []byte) (int, error) {
	if ws.closed {
		return 0, errors.NewBlobError("write", ws.spec.Container, ws.spec.Blob, errors.ErrStreamClosed)
	}
	if err := ws.gctx.Err(); err != nil && ws.ctx.Err() == nil {
		// A background staging request failed; surface its error.
		return 0, ws.failNow()
	}

	written := 0
	for len(p) > 0 {
		if ws.buf == nil {
			buf, err := ws.pool.Get(ws.ctx)
			if err != nil {
				return written, err
			}
			ws.buf = buf
		}
		n := copy(ws.buf[len(ws.buf):cap(ws.buf)], p)
		ws.buf = ws.buf[:len(ws.buf)+n]
		p = p[n:]
		written += n

		if len(ws.buf) == cap(ws.buf) {
			if err := ws.dispatch(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush forces the buffered partial block, if any, to be staged now. The
// staging request is dispatched immediately; Flush does not wait for it.
func (ws *WriteStream) Flush() error {
	if ws.closed {
		return errors.NewBlobError("flush", ws.spec.Container, ws.spec.Blob, errors.ErrStreamClosed)
	}
	return ws.dispatch()
}

// Close waits for in-flight blocks and commits the manifest. The stream's
// access conditions are evaluated here, by the service, at commit time.
// On staging failure nothing is committed and the target blob is untouched.
// Closing an already-closed stream is a no-op.
func (ws *WriteStream) Close() error {
	if ws.closed {
		return nil
	}
	if err := ws.dispatch(); err != nil {
		ws.closed = true
		ws.cancel()
		ws.g.Wait() //nolint:errcheck // shutdown path, error already in hand
		return err
	}
	ws.closed = true

	if err := ws.g.Wait(); err != nil {
		ws.cancel()
		return err
	}

	hdr := ws.spec.Headers
	if ws.spec.Checksum == blobtypes.ChecksumMD5 {
		hdr.ContentMD5 = ws.hasher.Sum()
	}

	start := time.Now()
	res, err := ws.sched.api.CommitBlockList(ws.ctx, ws.spec.Container, ws.spec.Blob, ws.man.Refs(), hdr, ws.spec.Conditions)
	ws.cancel()
	if err != nil {
		return err
	}

	ws.sched.logger.Debugf("blob: stream committed %d blocks for %s/%s (%s)",
		ws.man.Len(), ws.spec.Container, ws.spec.Blob, units.BytesSize(float64(ws.size)))
	ws.result = &blobtypes.UploadResult{
		Container:  ws.spec.Container,
		Blob:       ws.spec.Blob,
		Size:       ws.size,
		ETag:       res.ETag,
		ContentMD5: hdr.ContentMD5,
		BlockCount: ws.man.Len(),
		Duration:   time.Since(start),
	}
	return nil
}

// Abort discards the stream without committing. Staged blocks are left
// uncommitted for the service to reap.
func (ws *WriteStream) Abort() {
	if ws.closed {
		return
	}
	ws.closed = true
	ws.cancel()
	ws.g.Wait() //nolint:errcheck // abort discards outcomes
	if ws.buf != nil {
		ws.pool.Put(ws.buf)
		ws.buf = nil
	}
}

// Seek always fails: the stream writes blocks forward only.
func (ws *WriteStream) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.NewBlobError("seek", ws.spec.Container, ws.spec.Blob, errors.ErrNotSupported).
		WithMessage("write streams are forward-only")
}

// RequestCount returns the number of staging requests dispatched so far.
func (ws *WriteStream) RequestCount() int64 {
	return ws.requests.Load()
}

// BlocksStaged returns the number of blocks handed to staging so far.
func (ws *WriteStream) BlocksStaged() int {
	return ws.man.Len()
}

// Size returns the number of bytes accepted into dispatched blocks.
func (ws *WriteStream) Size() int64 {
	return ws.size
}

// Result returns the commit result after a successful Close, nil before.
func (ws *WriteStream) Result() *blobtypes.UploadResult {
	return ws.result
}

// dispatch hands the current buffer to a staging worker. An empty buffer
// dispatches nothing; zero-length blocks never reach the wire.
func (ws *WriteStream) dispatch() error {
	if ws.buf == nil {
		return nil
	}
	if len(ws.buf) == 0 {
		ws.pool.Put(ws.buf)
		ws.buf = nil
		return nil
	}

	buf := ws.buf
	ws.buf = nil
	ws.hasher.Write(buf) //nolint:errcheck // hash writes never fail

	id := ws.namer.Next()
	ws.man.AppendLatest(id)
	offset := ws.size
	ws.size += int64(len(buf))
	ws.requests.Add(1)

	var sum *blobtypes.Checksum
	if ws.spec.Checksum != blobtypes.ChecksumNone {
		value, err := checksum.Sum(ws.spec.Checksum, buf)
		if err != nil {
			ws.pool.Put(buf)
			return errors.NewBlobError("write", ws.spec.Container, ws.spec.Blob, err)
		}
		sum = &blobtypes.Checksum{Algorithm: ws.spec.Checksum, Value: value}
	}

	ws.g.Go(func() error {
		defer ws.pool.Put(buf)
		if err := ws.sched.api.StageBlock(ws.gctx, ws.spec.Container, ws.spec.Blob, id, buf, sum); err != nil {
			return fmt.Errorf("block at offset %d (%s): %w", offset, units.BytesSize(float64(len(buf))), err)
		}
		return nil
	})
	return nil
}

// failNow drains the workers after a background failure and returns the
// first error.
func (ws *WriteStream) failNow() error {
	ws.closed = true
	err := ws.g.Wait()
	ws.cancel()
	if ws.buf != nil {
		ws.pool.Put(ws.buf)
		ws.buf = nil
	}
	if err == nil {
		err = ws.gctx.Err()
	}
	return err
}
