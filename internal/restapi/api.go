// Package restapi defines the wire-level interface to the blob service and
// its default HTTP implementation.
//
// The API interface is the seam between the engine packages (transfer,
// batch) and the network: production code uses the retryablehttp-backed
// Client, tests substitute a mock.
package restapi

import (
	"context"
	"io"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
)

// API is the set of wire operations the engine needs.
type API interface {
	// Upload writes a whole blob in one request (the single-shot path).
	Upload(
		ctx context.Context,
		container, blob string,
		body []byte,
		hdr blobtypes.BlobHeaders,
		cond *blobtypes.AccessConditions,
	) (*blobtypes.PutResult, error)

	// StageBlock uploads one block into the blob's uncommitted set.
	// A staged block has no effect on blob content until committed.
	StageBlock(
		ctx context.Context,
		container, blob, blockID string,
		body []byte,
		sum *blobtypes.Checksum,
	) error

	// CommitBlockList atomically replaces the blob's committed block set
	// with the ordered reference list.
	CommitBlockList(
		ctx context.Context,
		container, blob string,
		refs []blobtypes.BlockRef,
		hdr blobtypes.BlobHeaders,
		cond *blobtypes.AccessConditions,
	) (*blobtypes.PutResult, error)

	// GetBlockList retrieves the blob's committed and/or uncommitted blocks.
	GetBlockList(
		ctx context.Context,
		container, blob string,
		listType blobtypes.BlockListType,
	) (*blobtypes.BlockList, error)

	// Download streams blob content. A length of zero means "to the end".
	// The returned properties describe the whole blob, not just the range.
	Download(
		ctx context.Context,
		container, blob string,
		offset, length int64,
		cond *blobtypes.AccessConditions,
	) (io.ReadCloser, *blobtypes.BlobProperties, error)

	// GetProperties fetches blob metadata without content.
	GetProperties(
		ctx context.Context,
		container, blob string,
		cond *blobtypes.AccessConditions,
	) (*blobtypes.BlobProperties, error)

	// Delete removes a blob.
	Delete(
		ctx context.Context,
		container, blob string,
		cond *blobtypes.AccessConditions,
	) error

	// SetAccessTier changes a blob's access tier.
	SetAccessTier(
		ctx context.Context,
		container, blob string,
		tier blobtypes.AccessTier,
	) error

	// SubmitBatch sends a prebuilt multipart batch body in a single round
	// trip and returns the response content type and body for parsing.
	SubmitBatch(
		ctx context.Context,
		contentType string,
		body []byte,
	) (string, io.ReadCloser, error)
}
