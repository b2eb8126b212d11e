package errors

import (
	"errors"
	"fmt"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
)

// BatchError is the aggregate error returned when at least one sub-operation
// of a batch failed. It carries both the full success list and the full
// failure list so callers can see what succeeded even when reporting what
// failed.
type BatchError struct {
	// Successes holds the outcomes of the sub-operations that succeeded,
	// in response order with strictly increasing indices.
	Successes []blobtypes.BatchResponse

	// Failures holds the outcomes of the sub-operations that failed,
	// in response order with strictly increasing indices.
	Failures []blobtypes.BatchFailure
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	total := len(e.Successes) + len(e.Failures)
	if len(e.Failures) == 0 {
		return fmt.Sprintf("blob.executeBatch: %d sub-operations", total)
	}
	first := e.Failures[0]
	return fmt.Sprintf("blob.executeBatch: %d of %d sub-operations failed (first: index %d %s: %s)",
		len(e.Failures), total, first.Index, first.ErrorCode, first.Message)
}

// AsBatchError extracts a *BatchError from an error chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
