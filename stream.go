package blobclient

import (
	"context"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/transfer"
	"github.com/PositiveExperienceLLC/blobclient/internal/validation"
)

// WriteStream is a buffered, forward-only stream onto one blob. Writes
// accumulate into block-sized buffers; each full block is staged in the
// background while the caller keeps writing. Nothing is visible at the
// target until Close commits the accumulated blocks atomically.
//
// Flush stages the current partial block immediately. Seek always fails:
// staged blocks cannot be rewritten. Access conditions attached at open
// are evaluated by the service at Close, so a conflicting concurrent
// writer surfaces as an error from Close, not from Write.
//
// A WriteStream is not safe for concurrent use.
type WriteStream = transfer.WriteStream

// OpenWriteStream opens a buffered write stream onto a blob. Opening
// performs no network calls.
//
// Example:
//
//	ws, err := client.OpenWriteStream(ctx, "logs", "app.log",
//	    blobclient.WithStreamConditions(&blobtypes.AccessConditions{IfNoneMatch: blobtypes.ETagAny}),
//	)
//	if err != nil {
//	    return err
//	}
//	if _, err := io.Copy(ws, src); err != nil {
//	    ws.Abort()
//	    return err
//	}
//	return ws.Close()
func (c *Client) OpenWriteStream(
	ctx context.Context,
	container, blob string,
	opts ...blobtypes.WriteStreamOption,
) (*WriteStream, error) {
	if err := validateTarget("openWriteStream", container, blob); err != nil {
		return nil, err
	}

	cfg := blobtypes.WriteStreamOptionConfig{
		BlockSize:   c.cfg.BlockSize,
		Concurrency: c.cfg.Concurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validation.ValidateMetadata(cfg.Metadata); err != nil {
		return nil, errors.NewBlobError("openWriteStream", container, blob, err)
	}

	return c.sched.OpenWriteStream(ctx, &transfer.StreamSpec{
		Container:   container,
		Blob:        blob,
		BlockSize:   cfg.BlockSize,
		Concurrency: cfg.Concurrency,
		Checksum:    cfg.Checksum,
		Headers: blobtypes.BlobHeaders{
			ContentType: cfg.ContentType,
			Metadata:    cfg.Metadata,
			Tier:        cfg.Tier,
		},
		Conditions: cfg.Conditions,
	})
}
