package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
)

func TestBatchError_Error(t *testing.T) {
	err := &BatchError{
		Successes: []blobtypes.BatchResponse{
			{Index: 0, Status: 202},
			{Index: 2, Status: 200},
		},
		Failures: []blobtypes.BatchFailure{
			{Index: 1, Status: 404, ErrorCode: "BlobNotFound", Message: "The specified blob does not exist."},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "1 of 3 sub-operations failed")
	assert.Contains(t, msg, "index 1")
	assert.Contains(t, msg, "BlobNotFound")
}

func TestAsBatchError(t *testing.T) {
	batchErr := &BatchError{
		Failures: []blobtypes.BatchFailure{
			{Index: 0, Status: 409, ErrorCode: "BlobArchived", Message: "archived"},
		},
	}

	t.Run("direct", func(t *testing.T) {
		got, ok := AsBatchError(batchErr)
		require.True(t, ok)
		assert.Same(t, batchErr, got)
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("running cleanup: %w", batchErr)
		got, ok := AsBatchError(wrapped)
		require.True(t, ok)
		assert.Same(t, batchErr, got)
	})

	t.Run("unrelated error", func(t *testing.T) {
		_, ok := AsBatchError(ErrBlobNotFound)
		assert.False(t, ok)
	})

	t.Run("nil", func(t *testing.T) {
		_, ok := AsBatchError(nil)
		assert.False(t, ok)
	})
}
