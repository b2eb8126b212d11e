package blobclient

import (
	"context"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// GetProperties retrieves a blob's metadata without downloading content.
func (c *Client) GetProperties(
	ctx context.Context,
	container, blob string,
	cond *blobtypes.AccessConditions,
) (*blobtypes.BlobProperties, error) {
	if err := validateTarget("getProperties", container, blob); err != nil {
		return nil, err
	}
	return c.api.GetProperties(ctx, container, blob, cond)
}

// Exists reports whether a blob exists.
func (c *Client) Exists(ctx context.Context, container, blob string) (bool, error) {
	_, err := c.GetProperties(ctx, container, blob, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.IsBlobNotFound(err), errors.IsContainerNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes a blob. Access conditions, when given, must hold for the
// delete to proceed.
func (c *Client) Delete(
	ctx context.Context,
	container, blob string,
	cond *blobtypes.AccessConditions,
) error {
	if err := validateTarget("delete", container, blob); err != nil {
		return err
	}
	return c.api.Delete(ctx, container, blob, cond)
}

// SetAccessTier changes a blob's access tier. Moving out of the archive
// tier starts an asynchronous rehydration on the service side.
func (c *Client) SetAccessTier(
	ctx context.Context,
	container, blob string,
	tier blobtypes.AccessTier,
) error {
	if err := validateTarget("setAccessTier", container, blob); err != nil {
		return err
	}
	switch tier {
	case blobtypes.TierHot, blobtypes.TierCool, blobtypes.TierArchive:
	default:
		return errors.NewBlobError("setAccessTier", container, blob, errors.ErrInvalidInput).
			WithMessage("unknown access tier " + string(tier))
	}
	return c.api.SetAccessTier(ctx, container, blob, tier)
}
