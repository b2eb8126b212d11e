// Package errors provides error types and handling for blob storage operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a blob operation error with context about the operation
// that failed. It wraps the underlying transport or service error with
// additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "stageBlock", "executeBatch")
	Op string

	// Container is the container name (if applicable)
	Container string

	// Blob is the blob name (if applicable)
	Blob string

	// Err is the underlying error from the wire layer or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Container != "" && e.Blob != "" {
		return fmt.Sprintf("blob.%s %s/%s: %v", e.Op, e.Container, e.Blob, e.Err)
	}
	if e.Container != "" {
		return fmt.Sprintf("blob.%s container %s: %v", e.Op, e.Container, e.Err)
	}
	if e.Blob != "" {
		return fmt.Sprintf("blob.%s blob %s: %v", e.Op, e.Blob, e.Err)
	}
	return fmt.Sprintf("blob.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithContainer adds container context to an existing error.
func (e *Error) WithContainer(container string) *Error {
	e.Container = container
	return e
}

// WithBlob adds blob name context to an existing error.
func (e *Error) WithBlob(blob string) *Error {
	e.Blob = blob
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewBlobError creates a new Error with container and blob context.
func NewBlobError(op, container, blob string, err error) *Error {
	return &Error{
		Op:        op,
		Container: container,
		Blob:      blob,
		Err:       err,
	}
}

// Sentinel errors for common blob operation failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrBlobNotFound indicates that the requested blob does not exist
	ErrBlobNotFound = errors.New("blob: blob not found")

	// ErrContainerNotFound indicates that the requested container does not exist
	ErrContainerNotFound = errors.New("blob: container not found")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("blob: access denied")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("blob: invalid input")

	// ErrPreconditionFailed indicates that a supplied access condition was not met
	ErrPreconditionFailed = errors.New("blob: precondition failed")

	// ErrConflict indicates that the operation conflicts with the current
	// state of the target (e.g. the blob was created concurrently)
	ErrConflict = errors.New("blob: conflict")

	// ErrInvalidContainerName indicates that the container name is invalid
	ErrInvalidContainerName = errors.New("blob: invalid container name")

	// ErrInvalidBlobName indicates that the blob name is invalid
	ErrInvalidBlobName = errors.New("blob: invalid blob name")

	// ErrInvalidBlockID indicates that a block identifier is invalid
	ErrInvalidBlockID = errors.New("blob: invalid block id")

	// ErrInvalidMetadata indicates that a metadata key or value is invalid
	ErrInvalidMetadata = errors.New("blob: invalid metadata")

	// ErrBlockLimitExceeded indicates that a commit would reference more
	// blocks than the service allows
	ErrBlockLimitExceeded = errors.New("blob: block count limit exceeded")

	// ErrChecksumMismatch indicates that a computed digest does not match
	// the transmitted one. This is a data-integrity failure, distinct from
	// transport errors, and is never retried.
	ErrChecksumMismatch = errors.New("blob: checksum mismatch")

	// ErrInvalidRange indicates that the requested byte range is invalid
	ErrInvalidRange = errors.New("blob: invalid range")

	// ErrNotSupported indicates that the requested capability is not
	// supported by the target (e.g. seeking a forward-only stream)
	ErrNotSupported = errors.New("blob: not supported")

	// ErrStreamClosed indicates a write or flush on a closed stream
	ErrStreamClosed = errors.New("blob: stream closed")

	// ErrProtocol indicates a malformed service response (bad multipart
	// framing, a non-monotonic batch index, missing error fields). Always
	// fatal, never retried.
	ErrProtocol = errors.New("blob: protocol error")

	// ErrTooManyRequests indicates that the request rate is too high
	ErrTooManyRequests = errors.New("blob: too many requests")

	// ErrTimeout indicates that the operation timed out
	ErrTimeout = errors.New("blob: operation timeout")
)

// IsBlobNotFound checks if an error indicates that a blob was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsBlobNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}

// IsContainerNotFound checks if an error indicates that a container was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsContainerNotFound(err error) bool {
	return errors.Is(err, ErrContainerNotFound)
}

// IsPreconditionFailed checks if an error indicates a violated access condition.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

// IsChecksumMismatch checks if an error indicates a data-integrity failure.
func IsChecksumMismatch(err error) bool {
	return errors.Is(err, ErrChecksumMismatch)
}

// IsProtocol checks if an error indicates a malformed service response.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
