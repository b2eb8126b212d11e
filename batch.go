package blobclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/batch"
)

// Batch accumulates independent sub-operations for one round-trip
// execution. Operations are assigned strictly increasing indices in the
// order they are added; results refer back to those indices.
//
// A Batch is not safe for concurrent use. Build one, add operations,
// execute it once.
type Batch struct {
	client *Client
	subs   []blobtypes.SubOperation
	err    error
}

// NewBatch creates an empty batch bound to the client.
func (c *Client) NewBatch() *Batch {
	return &Batch{client: c}
}

// Len returns the number of sub-operations added so far.
func (b *Batch) Len() int {
	return len(b.subs)
}

// Delete adds a blob deletion to the batch and returns its index.
func (b *Batch) Delete(container, blob string, opts ...blobtypes.SubOperationOption) int {
	return b.add(http.MethodDelete, container, blob, nil, nil, opts)
}

// SetAccessTier adds a tier change to the batch and returns its index.
func (b *Batch) SetAccessTier(container, blob string, tier blobtypes.AccessTier, opts ...blobtypes.SubOperationOption) int {
	query := map[string]string{"comp": "tier"}
	headers := map[string]string{"x-ms-access-tier": string(tier)}
	return b.add(http.MethodPut, container, blob, query, headers, opts)
}

// add records one sub-operation. Validation failures are held and
// surfaced by Execute; the index is still consumed so later additions
// keep their positions.
func (b *Batch) add(method, container, blob string, query, headers map[string]string, opts []blobtypes.SubOperationOption) int {
	index := len(b.subs)

	if err := validateTarget("executeBatch", container, blob); err != nil && b.err == nil {
		b.err = err
	}

	cfg := blobtypes.SubOperationConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Conditions != nil && !cfg.Conditions.IsZero() {
		if headers == nil {
			headers = map[string]string{}
		}
		if cfg.Conditions.IfMatch != "" {
			headers["If-Match"] = cfg.Conditions.IfMatch
		}
		if cfg.Conditions.IfNoneMatch != "" {
			headers["If-None-Match"] = cfg.Conditions.IfNoneMatch
		}
		if !cfg.Conditions.IfModifiedSince.IsZero() {
			headers["If-Modified-Since"] = cfg.Conditions.IfModifiedSince.UTC().Format(http.TimeFormat)
		}
		if !cfg.Conditions.IfUnmodifiedSince.IsZero() {
			headers["If-Unmodified-Since"] = cfg.Conditions.IfUnmodifiedSince.UTC().Format(http.TimeFormat)
		}
		if cfg.Conditions.MaxSize > 0 {
			headers["x-ms-blob-condition-maxsize"] = strconv.FormatInt(cfg.Conditions.MaxSize, 10)
		}
	}

	b.subs = append(b.subs, blobtypes.SubOperation{
		Index:      index,
		Method:     method,
		Container:  container,
		Blob:       blob,
		Query:      query,
		Headers:    headers,
		Credential: cfg.Credential,
	})
	return index
}

// Execute sends the batch in one request and demultiplexes the response.
//
// On full success it returns one BatchResponse per sub-operation. When any
// sub-operation fails, the returned error is a *errors.BatchError carrying
// both the complete success list and the complete failure list; use
// errors.AsBatchError to recover it. A transport failure of the enclosing
// request, or a malformed response, returns a plain error with no
// per-operation results.
//
// Example:
//
//	b := client.NewBatch()
//	b.Delete("logs", "2026-08-24.log")
//	b.SetAccessTier("logs", "2026-07.log", blobtypes.TierArchive)
//	results, err := b.Execute(ctx)
//	if batchErr, ok := errors.AsBatchError(err); ok {
//	    for _, f := range batchErr.Failures {
//	        fmt.Printf("operation %d failed: %s\n", f.Index, f.ErrorCode)
//	    }
//	}
func (b *Batch) Execute(ctx context.Context) ([]blobtypes.BatchResponse, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.client.executeBatch(ctx, b.subs)
}

// ExecuteBatch runs pre-built sub-operations in one round trip. Most
// callers should use NewBatch instead; this entry point exists for callers
// that assemble SubOperation values themselves.
func (c *Client) ExecuteBatch(ctx context.Context, subs []blobtypes.SubOperation) ([]blobtypes.BatchResponse, error) {
	return c.executeBatch(ctx, subs)
}

func (c *Client) executeBatch(ctx context.Context, subs []blobtypes.SubOperation) ([]blobtypes.BatchResponse, error) {
	if c.endpoint == nil {
		return nil, errors.NewError("executeBatch", errors.ErrInvalidInput).
			WithMessage("client has no endpoint configured")
	}

	builder := batch.NewBuilder(c.endpoint, c.cred)
	body, err := builder.Build(subs)
	if err != nil {
		return nil, err
	}

	contentType, respBody, err := c.api.SubmitBatch(ctx, builder.ContentType(), body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close() //nolint:errcheck

	outcome, err := batch.Parse(contentType, respBody)
	if err != nil {
		return nil, err
	}

	c.logger.Debugf("blob: batch of %d completed with %d failures", len(subs), len(outcome.Failures))
	return batch.Finalize(outcome)
}
