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
)

// DownloadSpec describes one download.
type DownloadSpec struct {
	Container string
	Blob      string

	// Offset is where the download starts within the blob.
	Offset int64

	// Length is how many bytes to download, or zero for the rest of the blob.
	Length int64

	BlockSize   int64
	Concurrency int

	// VerifyChecksum enables end-to-end verification against the blob's
	// stored whole-content digest. Only full downloads carry a digest to
	// verify against.
	VerifyChecksum bool

	// Properties, when set, is a probe the caller already performed.
	// The scheduler skips its own properties request and sizes the
	// transfer and pins the etag from this snapshot instead.
	Properties *blobtypes.BlobProperties

	Conditions *blobtypes.AccessConditions
	Progress   blobtypes.ProgressTracker
}

func (spec *DownloadSpec) applyDefaults() {
	if spec.BlockSize <= 0 {
		spec.BlockSize = blobtypes.DefaultBlockSize
	}
	if spec.Concurrency < 1 {
		spec.Concurrency = blobtypes.DefaultConcurrency
	}
}

// sectionWriter adapts an io.WriterAt to sequential writes at a fixed base
// offset, so each ranged response streams into its own region.
type sectionWriter struct {
	w   io.WriterAt
	off int64
}

func (sw *sectionWriter) Write(p []byte) (int, error) {
	n, err := sw.w.WriteAt(p, sw.off)
	sw.off += int64(n)
	return n, err
}

// Download transfers a blob, or a byte range of it, into w. When w
// implements io.WriterAt and more than one segment is needed, segments are
// fetched in parallel and written at their own offsets; the blob's etag
// from the initial probe is pinned as an If-Match condition on every
// ranged request so concurrent writers cannot produce a torn read.
// Otherwise the range is streamed sequentially through a single request.
func (s *Scheduler) Download(ctx context.Context, spec *DownloadSpec, w io.Writer) (*blobtypes.DownloadResult, error) {
	start := time.Now()
	spec.applyDefaults()

	wrap := func(err error) *errors.Error {
		return errors.NewBlobError("download", spec.Container, spec.Blob, err)
	}
	if spec.Offset < 0 || spec.Length < 0 {
		return nil, wrap(errors.ErrInvalidRange).
			WithMessage(fmt.Sprintf("offset %d length %d", spec.Offset, spec.Length))
	}

	props := spec.Properties
	if props == nil {
		var err error
		props, err = s.api.GetProperties(ctx, spec.Container, spec.Blob, spec.Conditions)
		if err != nil {
			s.trackError(spec.Progress, err)
			return nil, err
		}
	}

	length := spec.Length
	if length == 0 {
		length = props.ContentLength - spec.Offset
	}
	if spec.Offset > props.ContentLength || spec.Offset+length > props.ContentLength {
		err := wrap(errors.ErrInvalidRange).
			WithMessage(fmt.Sprintf("range [%d, %d) exceeds blob size %d", spec.Offset, spec.Offset+length, props.ContentLength))
		s.trackError(spec.Progress, err)
		return nil, err
	}

	// Pin the observed version for every subsequent ranged request.
	cond := &blobtypes.AccessConditions{IfMatch: props.ETag}
	if spec.Conditions != nil {
		pinned := *spec.Conditions
		if pinned.IfMatch == "" {
			pinned.IfMatch = props.ETag
		}
		cond = &pinned
	}

	fullDownload := spec.Offset == 0 && length == props.ContentLength

	wa, isWriterAt := w.(io.WriterAt)
	if isWriterAt && spec.Concurrency > 1 && length > spec.BlockSize {
		if err := s.downloadParallel(ctx, spec, wa, cond, length); err != nil {
			s.trackError(spec.Progress, err)
			return nil, err
		}
	} else {
		if err := s.downloadSequential(ctx, spec, w, cond, props, length, fullDownload); err != nil {
			s.trackError(spec.Progress, err)
			return nil, err
		}
	}

	s.logger.Debugf("blob: downloaded %s/%s (%s) in %s",
		spec.Container, spec.Blob, units.BytesSize(float64(length)), time.Since(start).Round(time.Millisecond))
	s.trackComplete(spec.Progress)

	return &blobtypes.DownloadResult{
		Container:  spec.Container,
		Blob:       spec.Blob,
		Size:       length,
		ETag:       props.ETag,
		ContentMD5: props.ContentMD5,
		Duration:   time.Since(start),
	}, nil
}

// downloadSequential streams the whole range through one request. For full
// downloads with verification enabled and a stored digest present, bytes
// are teed through a hasher and compared once the stream is drained.
func (s *Scheduler) downloadSequential(ctx context.Context, spec *DownloadSpec, w io.Writer, cond *blobtypes.AccessConditions, props *blobtypes.BlobProperties, length int64, fullDownload bool) error {
	body, _, err := s.api.Download(ctx, spec.Container, spec.Blob, spec.Offset, length, cond)
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck

	var hasher *checksum.Hasher
	src := io.Reader(body)
	if spec.VerifyChecksum && fullDownload && len(props.ContentMD5) > 0 {
		hasher, err = checksum.New(blobtypes.ChecksumMD5)
		if err != nil {
			return errors.NewBlobError("download", spec.Container, spec.Blob, err)
		}
		src = io.TeeReader(body, hasher)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return errors.NewBlobError("download", spec.Container, spec.Blob, err)
	}
	s.trackUpdate(spec.Progress, n, length)

	if hasher != nil && !checksum.Equal(hasher.Sum(), props.ContentMD5) {
		return errors.NewBlobError("download", spec.Container, spec.Blob, errors.ErrChecksumMismatch).
			WithMessage(fmt.Sprintf("content digest %s does not match stored %s",
				checksum.Encode(hasher.Sum()), checksum.Encode(props.ContentMD5)))
	}
	return nil
}

// downloadParallel fetches block-sized segments concurrently and writes
// each at its own offset. Verification of the assembled content, when
// requested, is the caller's job since bytes do not pass through here in
// order.
func (s *Scheduler) downloadParallel(ctx context.Context, spec *DownloadSpec, wa io.WriterAt, cond *blobtypes.AccessConditions, length int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(spec.Concurrency)

	var transferred atomic.Int64
	for segOff := int64(0); segOff < length; segOff += spec.BlockSize {
		segLen := spec.BlockSize
		if rest := length - segOff; rest < segLen {
			segLen = rest
		}
		task := &Task{Offset: spec.Offset + segOff, Length: segLen, State: TaskPending}
		dst := segOff

		g.Go(func() error {
			task.State = TaskInFlight
			body, _, err := s.api.Download(gctx, spec.Container, spec.Blob, task.Offset, task.Length, cond)
			if err != nil {
				task.State = TaskFailed
				return err
			}
			defer body.Close() //nolint:errcheck

			n, err := io.Copy(&sectionWriter{w: wa, off: dst}, body)
			if err != nil {
				task.State = TaskFailed
				return errors.NewBlobError("download", spec.Container, spec.Blob, err).
					WithMessage(fmt.Sprintf("segment at offset %d", task.Offset))
			}
			if n != task.Length {
				task.State = TaskFailed
				return errors.NewBlobError("download", spec.Container, spec.Blob, errors.ErrProtocol).
					WithMessage(fmt.Sprintf("segment at offset %d returned %d bytes, want %d", task.Offset, n, task.Length))
			}
			task.State = TaskDone
			s.trackUpdate(spec.Progress, transferred.Add(n), length)
			return nil
		})
	}

	return g.Wait()
}
