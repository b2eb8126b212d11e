package blobclient

import (
	"context"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/checksum"
	"github.com/PositiveExperienceLLC/blobclient/internal/validation"
)

// StageBlock uploads one block with a caller-chosen identifier. The block
// is held in the blob's uncommitted set and contributes nothing to the
// blob's content until a commit references it.
//
// Block IDs must be valid base64 with a decoded length of at most 64
// bytes, and data must be non-empty and at most MaxBlockSize bytes.
func (c *Client) StageBlock(
	ctx context.Context,
	container, blob, blockID string,
	data []byte,
	alg blobtypes.ChecksumAlgorithm,
) error {
	if err := validateTarget("stageBlock", container, blob); err != nil {
		return err
	}
	if err := validation.ValidateBlockID(blockID); err != nil {
		return errors.NewBlobError("stageBlock", container, blob, err)
	}
	if len(data) == 0 {
		return errors.NewBlobError("stageBlock", container, blob, errors.ErrInvalidInput).
			WithMessage("block data cannot be empty")
	}
	if int64(len(data)) > blobtypes.MaxBlockSize {
		return errors.NewBlobError("stageBlock", container, blob, errors.ErrInvalidInput).
			WithMessage("block exceeds the maximum block size")
	}

	var sum *blobtypes.Checksum
	if alg != blobtypes.ChecksumNone {
		value, err := checksum.Sum(alg, data)
		if err != nil {
			return errors.NewBlobError("stageBlock", container, blob, err)
		}
		sum = &blobtypes.Checksum{Algorithm: alg, Value: value}
	}
	return c.api.StageBlock(ctx, container, blob, blockID, data, sum)
}

// CommitBlockList publishes a blob from staged and previously committed
// blocks. The manifest order defines the content order; the commit is
// atomic, so readers see either the previous content or the new content,
// never a mixture.
//
// Example:
//
//	refs := []blobtypes.BlockRef{
//	    {ID: id1, Status: blobtypes.BlockLatest},
//	    {ID: id2, Status: blobtypes.BlockLatest},
//	}
//	result, err := client.CommitBlockList(ctx, "media", "clip.mp4", refs,
//	    blobtypes.BlobHeaders{ContentType: "video/mp4"}, nil)
func (c *Client) CommitBlockList(
	ctx context.Context,
	container, blob string,
	refs []blobtypes.BlockRef,
	hdr blobtypes.BlobHeaders,
	cond *blobtypes.AccessConditions,
) (*blobtypes.PutResult, error) {
	if err := validateTarget("commitBlockList", container, blob); err != nil {
		return nil, err
	}
	if err := validation.ValidateBlockRefs(refs); err != nil {
		return nil, errors.NewBlobError("commitBlockList", container, blob, err)
	}
	if err := validation.ValidateMetadata(hdr.Metadata); err != nil {
		return nil, errors.NewBlobError("commitBlockList", container, blob, err)
	}
	return c.api.CommitBlockList(ctx, container, blob, refs, hdr, cond)
}

// GetBlockList retrieves the blob's block sets. listType selects
// committed blocks, uncommitted blocks, or both.
func (c *Client) GetBlockList(
	ctx context.Context,
	container, blob string,
	listType blobtypes.BlockListType,
) (*blobtypes.BlockList, error) {
	if err := validateTarget("getBlockList", container, blob); err != nil {
		return nil, err
	}
	switch listType {
	case blobtypes.BlockListCommitted, blobtypes.BlockListUncommitted, blobtypes.BlockListAll:
	default:
		return nil, errors.NewBlobError("getBlockList", container, blob, errors.ErrInvalidInput).
			WithMessage("unknown block list type " + string(listType))
	}
	return c.api.GetBlockList(ctx, container, blob, listType)
}
