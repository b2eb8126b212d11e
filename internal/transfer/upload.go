package transfer

import (
	"context"
	"fmt"
	"io"
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

// UploadSpec describes one chunked upload.
type UploadSpec struct {
	Container string
	Blob      string

	// Source provides the payload. When Seekable is set it must also
	// implement io.ReaderAt.
	Source io.Reader

	// Size is the payload size in bytes, or a negative value when the
	// size is not known in advance.
	Size int64

	// Seekable declares that Source supports reads at independent
	// offsets. It is an explicit capability, not inferred from the
	// dynamic type, so callers control the strategy deterministically.
	Seekable bool

	BlockSize           int64
	Concurrency         int
	SingleShotThreshold int64
	Checksum            blobtypes.ChecksumAlgorithm
	Headers             blobtypes.BlobHeaders
	Conditions          *blobtypes.AccessConditions
	Progress            blobtypes.ProgressTracker

	// Pool optionally supplies the buffer pool. Its buffer size must
	// match BlockSize; a fresh pool is created otherwise.
	Pool *pool.BufferPool
}

func (spec *UploadSpec) applyDefaults() {
	if spec.BlockSize <= 0 {
		spec.BlockSize = blobtypes.DefaultBlockSize
	}
	if spec.Concurrency < 1 {
		spec.Concurrency = blobtypes.DefaultConcurrency
	}
	if spec.SingleShotThreshold <= 0 {
		spec.SingleShotThreshold = spec.BlockSize
	}
}

// Upload transfers the payload, choosing between a single-shot put for
// small payloads and the block path otherwise. The decision is made from
// the declared size when one is given, or from a one-block probe when the
// size is unknown. On any failure staged blocks are left uncommitted and
// the target blob is untouched.
func (s *Scheduler) Upload(ctx context.Context, spec *UploadSpec) (*blobtypes.UploadResult, error) {
	start := time.Now()

	spec.applyDefaults()
	if err := validation.ValidateBlockSize(spec.BlockSize); err != nil {
		return nil, errors.NewBlobError("upload", spec.Container, spec.Blob, err)
	}
	var readerAt io.ReaderAt
	if spec.Seekable {
		ra, ok := spec.Source.(io.ReaderAt)
		if !ok {
			return nil, errors.NewBlobError("upload", spec.Container, spec.Blob, errors.ErrInvalidInput).
				WithMessage("seekable upload requires an io.ReaderAt source")
		}
		readerAt = ra
	}
	if spec.Size >= 0 {
		needed := (spec.Size + spec.BlockSize - 1) / spec.BlockSize
		if needed > blobtypes.MaxBlockCount {
			return nil, errors.NewBlobError("upload", spec.Container, spec.Blob, errors.ErrBlockLimitExceeded).
				WithMessage(fmt.Sprintf("%s at block size %s needs %d blocks, limit is %d",
					units.BytesSize(float64(spec.Size)), units.BytesSize(float64(spec.BlockSize)), needed, blobtypes.MaxBlockCount))
		}
	}

	// Known small payloads go single-shot without touching the pool.
	if spec.Size >= 0 && spec.Size <= spec.SingleShotThreshold {
		return s.uploadSingleShot(ctx, spec, start)
	}

	p := spec.Pool
	if p == nil || p.BufferSize() != spec.BlockSize {
		p = pool.New(spec.BlockSize, spec.Concurrency+1)
	}

	// Parallel reads at independent offsets need a known size and no
	// whole-content hash, which is inherently sequential.
	if spec.Seekable && spec.Size >= 0 && spec.Checksum != blobtypes.ChecksumMD5 {
		return s.uploadParallelReads(ctx, spec, readerAt, p, start)
	}
	return s.uploadSequentialReads(ctx, spec, readerAt, p, start)
}

// uploadSingleShot reads the whole declared payload and puts it in one
// request. The committed content is byte-identical to what the block path
// would have produced.
func (s *Scheduler) uploadSingleShot(ctx context.Context, spec *UploadSpec, start time.Time) (*blobtypes.UploadResult, error) {
	data := make([]byte, spec.Size)
	if _, err := io.ReadFull(spec.Source, data); err != nil {
		return nil, errors.NewBlobError("upload", spec.Container, spec.Blob, err).
			WithMessage("reading payload")
	}
	return s.putSingleShot(ctx, spec, data, start)
}

func (s *Scheduler) putSingleShot(ctx context.Context, spec *UploadSpec, data []byte, start time.Time) (*blobtypes.UploadResult, error) {
	hdr := spec.Headers
	if spec.Checksum == blobtypes.ChecksumMD5 {
		sum, err := checksum.Sum(blobtypes.ChecksumMD5, data)
		if err != nil {
			return nil, errors.NewBlobError("upload", spec.Container, spec.Blob, err)
		}
		hdr.ContentMD5 = sum
	}

	res, err := s.api.Upload(ctx, spec.Container, spec.Blob, data, hdr, spec.Conditions)
	if err != nil {
		s.trackError(spec.Progress, err)
		return nil, err
	}

	s.logger.Debugf("blob: single-shot upload of %s/%s (%s)",
		spec.Container, spec.Blob, units.BytesSize(float64(len(data))))
	s.trackUpdate(spec.Progress, int64(len(data)), int64(len(data)))
	s.trackComplete(spec.Progress)

	return &blobtypes.UploadResult{
		Container:  spec.Container,
		Blob:       spec.Blob,
		Size:       int64(len(data)),
		ETag:       res.ETag,
		ContentMD5: hdr.ContentMD5,
		BlockCount: 0,
		SingleShot: true,
		Duration:   time.Since(start),
	}, nil
}

// uploadSequentialReads drives the block path with a single reading
// goroutine: segments are read in order into pooled buffers, hashed into
// the whole-content digest, and handed to bounded workers for staging.
// The read side is the only consumer of the source, so it works for
// forward-only streams and keeps the content hash in payload order.
func (s *Scheduler) uploadSequentialReads(ctx context.Context, spec *UploadSpec, readerAt io.ReaderAt, p *pool.BufferPool, start time.Time) (*blobtypes.UploadResult, error) {
	wrap := func(err error) *errors.Error {
		return errors.NewBlobError("upload", spec.Container, spec.Blob, err)
	}

	hasher, err := checksum.New(spec.Checksum)
	if err != nil {
		return nil, wrap(err)
	}

	readSegment := func(offset int64, buf []byte) (int, error) {
		full := buf[:cap(buf)]
		if readerAt != nil {
			n, rerr := readerAt.ReadAt(full, offset)
			if rerr == io.EOF && n > 0 {
				rerr = nil
			}
			if rerr == nil && n < len(full) {
				rerr = io.EOF
			}
			if n == len(full) {
				rerr = nil
			}
			return n, rerr
		}
		n, rerr := io.ReadFull(spec.Source, full)
		if rerr == io.ErrUnexpectedEOF || (rerr == io.EOF && n == 0) {
			rerr = io.EOF
		}
		return n, rerr
	}

	// Probe path for unknown sizes: a short first segment means the whole
	// payload is in hand and may still qualify for single-shot.
	buf0, err := p.Get(ctx)
	if err != nil {
		return nil, wrap(err)
	}
	n0, rerr0 := readSegment(0, buf0)
	if rerr0 != nil && rerr0 != io.EOF {
		p.Put(buf0)
		return nil, wrap(rerr0).WithMessage("reading payload")
	}
	if rerr0 == io.EOF && int64(n0) <= spec.SingleShotThreshold {
		data := make([]byte, n0)
		copy(data, buf0[:cap(buf0)][:n0])
		p.Put(buf0)
		return s.putSingleShot(ctx, spec, data, start)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spec.Concurrency)

	var (
		namer       = newBlockIDNamer()
		man         = manifest.New()
		total       int64
		transferred atomic.Int64
	)

	stage := func(buf []byte, n int, offset int64) {
		data := buf[:cap(buf)][:n]
		hasher.Write(data) //nolint:errcheck // hash.Hash writes never fail
		id := namer.Next()
		man.AppendLatest(id)
		task := &Task{Offset: offset, Length: int64(n), BlockID: id, State: TaskPending}
		g.Go(func() error {
			defer p.Put(buf)
			task.State = TaskInFlight
			if err := s.stageBlock(gctx, spec, task, data); err != nil {
				return err
			}
			s.trackUpdate(spec.Progress, transferred.Add(task.Length), spec.Size)
			return nil
		})
	}

	stage(buf0, n0, 0)
	total = int64(n0)

	var readErr error
	if rerr0 != io.EOF {
		for {
			buf, gerr := p.Get(gctx)
			if gerr != nil {
				readErr = gerr
				break
			}
			n, rerr := readSegment(total, buf)
			if n > 0 {
				if man.Len() >= blobtypes.MaxBlockCount {
					p.Put(buf)
					readErr = errors.ErrBlockLimitExceeded
					break
				}
				stage(buf, n, total)
				total += int64(n)
			} else {
				p.Put(buf)
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				readErr = fmt.Errorf("reading payload at offset %d: %w", total, rerr)
				break
			}
		}
	}

	// A worker failure cancels the group context and makes the read loop
	// bail; the worker's error is the root cause, report it first.
	if werr := g.Wait(); werr != nil {
		s.trackError(spec.Progress, werr)
		return nil, werr
	}
	if readErr != nil {
		s.trackError(spec.Progress, readErr)
		return nil, wrap(readErr)
	}

	return s.commit(ctx, spec, hasher, man.Refs(), total, start)
}

// uploadParallelReads partitions the declared size upfront and lets each
// worker read its own segment directly from the source. Only usable when
// the source supports independent offsets and no sequential content hash
// is requested.
func (s *Scheduler) uploadParallelReads(ctx context.Context, spec *UploadSpec, readerAt io.ReaderAt, p *pool.BufferPool, start time.Time) (*blobtypes.UploadResult, error) {
	var (
		namer = newBlockIDNamer()
		man   = manifest.New()
		tasks []*Task
	)
	for offset := int64(0); offset < spec.Size; offset += spec.BlockSize {
		length := spec.BlockSize
		if rest := spec.Size - offset; rest < length {
			length = rest
		}
		id := namer.Next()
		man.AppendLatest(id)
		tasks = append(tasks, &Task{Offset: offset, Length: length, BlockID: id, State: TaskPending})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spec.Concurrency)

	var transferred atomic.Int64
	for _, task := range tasks {
		g.Go(func() error {
			buf, err := p.Get(gctx)
			if err != nil {
				return err
			}
			defer p.Put(buf)

			task.State = TaskInFlight
			data := buf[:cap(buf)][:task.Length]
			if _, err := readerAt.ReadAt(data, task.Offset); err != nil && err != io.EOF {
				task.State = TaskFailed
				return errors.NewBlobError("upload", spec.Container, spec.Blob, err).
					WithMessage(fmt.Sprintf("reading segment at offset %d", task.Offset))
			}
			if err := s.stageBlock(gctx, spec, task, data); err != nil {
				return err
			}
			s.trackUpdate(spec.Progress, transferred.Add(task.Length), spec.Size)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.trackError(spec.Progress, err)
		return nil, err
	}

	return s.commit(ctx, spec, nil, man.Refs(), spec.Size, start)
}

// stageBlock sends one block, with its per-block checksum when the spec
// asks for one, and records the task outcome.
func (s *Scheduler) stageBlock(ctx context.Context, spec *UploadSpec, task *Task, data []byte) error {
	var sum *blobtypes.Checksum
	if spec.Checksum != blobtypes.ChecksumNone {
		value, err := checksum.Sum(spec.Checksum, data)
		if err != nil {
			task.State = TaskFailed
			return errors.NewBlobError("upload", spec.Container, spec.Blob, err)
		}
		sum = &blobtypes.Checksum{Algorithm: spec.Checksum, Value: value}
	}

	if err := s.api.StageBlock(ctx, spec.Container, spec.Blob, task.BlockID, data, sum); err != nil {
		task.State = TaskFailed
		return fmt.Errorf("block at offset %d (%s): %w", task.Offset, units.BytesSize(float64(task.Length)), err)
	}
	task.State = TaskDone
	s.logger.Debugf("blob: staged block for %s/%s at offset %d (%s)",
		spec.Container, spec.Blob, task.Offset, units.BytesSize(float64(task.Length)))
	return nil
}

// commit publishes the staged blocks atomically, in manifest order.
func (s *Scheduler) commit(ctx context.Context, spec *UploadSpec, hasher *checksum.Hasher, refs []blobtypes.BlockRef, size int64, start time.Time) (*blobtypes.UploadResult, error) {
	hdr := spec.Headers
	if hasher != nil && spec.Checksum == blobtypes.ChecksumMD5 {
		hdr.ContentMD5 = hasher.Sum()
	}

	res, err := s.api.CommitBlockList(ctx, spec.Container, spec.Blob, refs, hdr, spec.Conditions)
	if err != nil {
		s.trackError(spec.Progress, err)
		return nil, err
	}

	s.logger.Debugf("blob: committed %d blocks for %s/%s (%s) in %s",
		len(refs), spec.Container, spec.Blob, units.BytesSize(float64(size)), time.Since(start).Round(time.Millisecond))
	s.trackComplete(spec.Progress)

	return &blobtypes.UploadResult{
		Container:  spec.Container,
		Blob:       spec.Blob,
		Size:       size,
		ETag:       res.ETag,
		ContentMD5: hdr.ContentMD5,
		BlockCount: len(refs),
		SingleShot: false,
		Duration:   time.Since(start),
	}, nil
}

func (s *Scheduler) trackUpdate(t blobtypes.ProgressTracker, transferred, total int64) {
	if t != nil {
		t.Update(transferred, total)
	}
}

func (s *Scheduler) trackComplete(t blobtypes.ProgressTracker) {
	if t != nil {
		t.Complete()
	}
}

func (s *Scheduler) trackError(t blobtypes.ProgressTracker, err error) {
	if t != nil {
		t.Error(err)
	}
}
