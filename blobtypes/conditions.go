package blobtypes

import "time"

// AccessConditions is a set of preconditions attached to a mutating or
// reading call. The service evaluates them before applying the operation;
// a violated condition surfaces as a precondition-failed error.
//
// The zero value imposes no conditions.
type AccessConditions struct {
	// IfMatch succeeds only when the blob's current ETag equals this value.
	IfMatch string

	// IfNoneMatch succeeds only when the blob's current ETag differs from
	// this value. The special value "*" succeeds only when the blob does
	// not exist ("if-not-exists").
	IfNoneMatch string

	// IfModifiedSince succeeds only when the blob was modified after this time.
	IfModifiedSince time.Time

	// IfUnmodifiedSince succeeds only when the blob was not modified after this time.
	IfUnmodifiedSince time.Time

	// MaxSize succeeds only when the resulting blob would not exceed this
	// size in bytes. Zero imposes no size condition.
	MaxSize int64
}

// ETagAny matches any existing ETag. Used with IfNoneMatch it expresses
// "only if the blob does not exist yet".
const ETagAny = "*"

// IsZero reports whether no condition is set.
func (c *AccessConditions) IsZero() bool {
	if c == nil {
		return true
	}
	return c.IfMatch == "" && c.IfNoneMatch == "" &&
		c.IfModifiedSince.IsZero() && c.IfUnmodifiedSince.IsZero() &&
		c.MaxSize == 0
}
