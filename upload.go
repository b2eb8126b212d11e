package blobclient

import (
	"bytes"
	"context"
	"io"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/transfer"
	"github.com/PositiveExperienceLLC/blobclient/internal/validation"
)

// Upload transfers a payload from r to the given container and blob.
// Small payloads go out as a single request; larger ones are split into
// blocks, staged with bounded parallelism, and committed atomically. Until
// the commit succeeds the target blob is untouched.
//
// size is the payload length in bytes, or negative when not known in
// advance (the stream is then read to EOF).
//
// Returns:
//   - *UploadResult: the committed blob's metadata, block count, and timing
//   - error: validation, transport, or service failure; on failure nothing
//     is committed
//
// Example:
//
//	result, err := client.Upload(ctx, "backups", "db.dump", file, size,
//	    blobclient.WithChecksum(blobtypes.ChecksumMD5),
//	    blobclient.WithUploadConcurrency(4),
//	)
func (c *Client) Upload(
	ctx context.Context,
	container, blob string,
	r io.Reader,
	size int64,
	opts ...blobtypes.UploadOption,
) (*blobtypes.UploadResult, error) {
	if err := validateTarget("upload", container, blob); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.NewBlobError("upload", container, blob, errors.ErrInvalidInput).
			WithMessage("source reader cannot be nil")
	}

	cfg := c.uploadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validation.ValidateMetadata(cfg.Metadata); err != nil {
		return nil, errors.NewBlobError("upload", container, blob, err)
	}

	return c.sched.Upload(ctx, &transfer.UploadSpec{
		Container:           container,
		Blob:                blob,
		Source:              r,
		Size:                size,
		Seekable:            cfg.Seekable,
		BlockSize:           cfg.BlockSize,
		Concurrency:         cfg.Concurrency,
		SingleShotThreshold: cfg.SingleShotThreshold,
		Checksum:            cfg.Checksum,
		Headers: blobtypes.BlobHeaders{
			ContentType: cfg.ContentType,
			Metadata:    cfg.Metadata,
			Tier:        cfg.Tier,
		},
		Conditions: cfg.Conditions,
		Progress:   cfg.ProgressTracker,
	})
}

// UploadBuffer uploads an in-memory payload. The buffer is read at
// independent offsets, so block staging parallelizes fully.
func (c *Client) UploadBuffer(
	ctx context.Context,
	container, blob string,
	data []byte,
	opts ...blobtypes.UploadOption,
) (*blobtypes.UploadResult, error) {
	opts = append(opts, WithSeekableSource())
	return c.Upload(ctx, container, blob, bytes.NewReader(data), int64(len(data)), opts...)
}

// UploadFile uploads a file from the local filesystem. The content type is
// sniffed from the file's leading bytes unless set explicitly.
//
// Example:
//
//	result, err := client.UploadFile(ctx, "docs", "report.pdf", "/path/to/report.pdf",
//	    blobclient.WithMetadata(map[string]string{"author": "ops"}),
//	)
func (c *Client) UploadFile(
	ctx context.Context,
	container, blob, path string,
	opts ...blobtypes.UploadOption,
) (*blobtypes.UploadResult, error) {
	if err := validateTarget("uploadFile", container, blob); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.NewBlobError("uploadFile", container, blob, errors.ErrInvalidInput).
			WithMessage("path cannot be empty")
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, errors.NewBlobError("uploadFile", container, blob, err)
	}
	if info.IsDir() {
		return nil, errors.NewBlobError("uploadFile", container, blob, errors.ErrInvalidInput).
			WithMessage("path points to a directory, not a file")
	}

	cfg := c.uploadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validation.ValidateMetadata(cfg.Metadata); err != nil {
		return nil, errors.NewBlobError("uploadFile", container, blob, err)
	}
	if cfg.ContentType == "" {
		cfg.ContentType = c.detectContentType(path)
	}

	file, err := c.fs.Open(path)
	if err != nil {
		return nil, errors.NewBlobError("uploadFile", container, blob, err)
	}
	defer file.Close() //nolint:errcheck

	// Files support reads at independent offsets.
	return c.sched.Upload(ctx, &transfer.UploadSpec{
		Container:           container,
		Blob:                blob,
		Source:              file,
		Size:                info.Size(),
		Seekable:            true,
		BlockSize:           cfg.BlockSize,
		Concurrency:         cfg.Concurrency,
		SingleShotThreshold: cfg.SingleShotThreshold,
		Checksum:            cfg.Checksum,
		Headers: blobtypes.BlobHeaders{
			ContentType: cfg.ContentType,
			Metadata:    cfg.Metadata,
			Tier:        cfg.Tier,
		},
		Conditions: cfg.Conditions,
		Progress:   cfg.ProgressTracker,
	})
}

// uploadConfig seeds per-operation settings from the client configuration.
func (c *Client) uploadConfig() blobtypes.UploadOptionConfig {
	return blobtypes.UploadOptionConfig{
		BlockSize:           c.cfg.BlockSize,
		Concurrency:         c.cfg.Concurrency,
		SingleShotThreshold: c.cfg.SingleShotThreshold,
	}
}
