// Package blobtypes provides shared type definitions for the blob client module.
package blobtypes

import (
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// Service limits and defaults for block transfers and batches.
const (
	// MaxBlockSize is the service-imposed ceiling for a single staged block.
	MaxBlockSize = 100 * 1024 * 1024

	// MaxBlockCount is the maximum number of blocks a committed blob may reference.
	MaxBlockCount = 50000

	// DefaultBlockSize is the block size used when the caller does not configure one.
	DefaultBlockSize = 8 * 1024 * 1024

	// DefaultConcurrency is the default number of parallel block transfers.
	DefaultConcurrency = 1

	// MaxBatchOperations is the maximum number of sub-operations in one batch.
	MaxBatchOperations = 256
)

// AccessTier represents the storage access tier of a blob.
type AccessTier string

// Predefined access tiers
const (
	// TierHot is the default tier for frequently accessed data
	TierHot AccessTier = "Hot"

	// TierCool is for infrequently accessed data
	TierCool AccessTier = "Cool"

	// TierArchive is for rarely accessed data with flexible latency requirements
	TierArchive AccessTier = "Archive"
)

// BlockStatus tags a block reference in a commit manifest.
type BlockStatus string

// Block statuses understood by the commit manifest.
const (
	// BlockCommitted references a block from the blob's committed block set
	BlockCommitted BlockStatus = "Committed"

	// BlockUncommitted references a block from the blob's uncommitted block set
	BlockUncommitted BlockStatus = "Uncommitted"

	// BlockLatest references a block from whichever set holds the most recent version
	BlockLatest BlockStatus = "Latest"
)

// BlockRef is one ordered entry of a commit manifest.
type BlockRef struct {
	// ID is the caller-chosen or generator-assigned block identifier
	ID string

	// Status selects which block set the reference resolves against
	Status BlockStatus
}

// Block describes a block as reported by a block-list query.
type Block struct {
	// ID is the block identifier
	ID string

	// Size is the block size in bytes
	Size int64
}

// BlockList is the result of a block-list query.
type BlockList struct {
	// Committed holds the blocks in the blob's committed set, in content order
	Committed []Block

	// Uncommitted holds staged blocks that are not part of the committed content
	Uncommitted []Block
}

// BlockListType selects which block sets a block-list query returns.
type BlockListType string

// Block list query scopes
const (
	// BlockListCommitted returns only committed blocks
	BlockListCommitted BlockListType = "committed"

	// BlockListUncommitted returns only uncommitted blocks
	BlockListUncommitted BlockListType = "uncommitted"

	// BlockListAll returns both committed and uncommitted blocks
	BlockListAll BlockListType = "all"
)

// ChecksumAlgorithm selects the end-to-end checksum computed over transferred bytes.
type ChecksumAlgorithm string

// Supported checksum algorithms
const (
	// ChecksumNone disables client-side checksums
	ChecksumNone ChecksumAlgorithm = ""

	// ChecksumMD5 computes MD5 digests per block and over the whole content
	ChecksumMD5 ChecksumAlgorithm = "md5"

	// ChecksumCRC64 computes CRC64 digests per block
	ChecksumCRC64 ChecksumAlgorithm = "crc64"
)

// Checksum is a computed digest together with the algorithm that produced it.
type Checksum struct {
	// Algorithm identifies how Value was computed
	Algorithm ChecksumAlgorithm

	// Value is the raw digest bytes
	Value []byte
}

// BlobHeaders carries the content properties applied to a blob at write time.
type BlobHeaders struct {
	// ContentType is the MIME type stored with the blob
	ContentType string

	// ContentMD5 is the whole-content MD5 digest stored with the blob
	ContentMD5 []byte

	// Metadata contains user-defined name/value pairs
	Metadata map[string]string

	// Tier is the access tier applied at write time, if any
	Tier AccessTier
}

// BlobProperties contains the metadata of a blob as reported by the service.
type BlobProperties struct {
	// ContentType is the MIME type of the blob
	ContentType string

	// ContentLength is the committed size of the blob in bytes
	ContentLength int64

	// ContentMD5 is the stored whole-content MD5 digest, if any
	ContentMD5 []byte

	// ETag is the entity tag of the committed blob
	ETag string

	// LastModified is when the blob was last modified
	LastModified time.Time

	// AccessTier is the blob's current access tier
	AccessTier AccessTier

	// Metadata contains user-defined name/value pairs
	Metadata map[string]string

	// BlockCount is the number of committed blocks, when reported
	BlockCount int
}

// PutResult is the service acknowledgement of a mutating call.
type PutResult struct {
	// ETag is the entity tag assigned by the service
	ETag string

	// LastModified is the modification time assigned by the service
	LastModified time.Time

	// ContentMD5 is the digest echoed by the service, if any
	ContentMD5 []byte

	// RequestID is the service-assigned request identifier
	RequestID string
}

// UploadResult contains the result of an upload operation.
type UploadResult struct {
	// Container is the container the blob was uploaded to
	Container string

	// Blob is the blob name that was uploaded
	Blob string

	// Size is the number of bytes uploaded
	Size int64

	// ETag is the entity tag of the committed blob
	ETag string

	// ContentMD5 is the whole-content digest computed during upload, if enabled
	ContentMD5 []byte

	// BlockCount is the number of blocks staged (zero for single-shot uploads)
	BlockCount int

	// SingleShot reports whether the upload bypassed block splitting
	SingleShot bool

	// Duration is how long the upload took
	Duration time.Duration
}

// DownloadResult contains the result of a download operation.
type DownloadResult struct {
	// Container is the container the blob was downloaded from
	Container string

	// Blob is the blob name that was downloaded
	Blob string

	// Size is the number of bytes downloaded
	Size int64

	// ETag is the entity tag of the downloaded blob
	ETag string

	// ContentMD5 is the digest reported by the service, if any
	ContentMD5 []byte

	// Duration is how long the download took
	Duration time.Duration
}

// SubOperation is one independent request bundled inside a batch.
// It is immutable once added to a batch.
type SubOperation struct {
	// Index is the 0-based position assigned when the operation was added
	Index int

	// Method is the HTTP method of the embedded request
	Method string

	// Container is the target container
	Container string

	// Blob is the target blob
	Blob string

	// Query holds method-specific query parameters
	Query map[string]string

	// Headers holds method-specific request headers
	Headers map[string]string

	// Body is the embedded request body. Both built-in batchable
	// operations (delete, set-tier) are body-less, so it is usually nil.
	Body []byte

	// Credential optionally overrides the batch request's credential
	// for this sub-operation only (e.g. a SAS scoped to one blob).
	Credential Credential
}

// BatchResponse is the outcome of a sub-operation that succeeded.
type BatchResponse struct {
	// Index is the sub-operation index recovered from the response part
	Index int

	// Status is the HTTP status code of the embedded response
	Status int

	// Headers holds the embedded response headers
	Headers http.Header
}

// BatchFailure is the outcome of a sub-operation that failed.
// ErrorCode and Message are always populated; a response part missing
// either is treated as a protocol error by the parser.
type BatchFailure struct {
	// Index is the sub-operation index recovered from the response part
	Index int

	// Status is the HTTP status code of the embedded response
	Status int

	// ErrorCode is the symbolic service error code (e.g. "BlobNotFound")
	ErrorCode string

	// Message is the human-readable error detail
	Message string
}

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations can provide real-time progress updates during uploads and downloads.
type ProgressTracker interface {
	// Update is called periodically with transfer progress
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// Configuration types for functional options

// ClientConfig holds configuration for the blob client.
type ClientConfig struct {
	Endpoint            string
	Credential          Credential
	MaxRetries          int
	Timeout             time.Duration
	Concurrency         int
	BlockSize           int64
	SingleShotThreshold int64
	CustomHTTPClient    *http.Client
	Logger              log.Logger
	Filesystem          fs.Filesystem // Filesystem abstraction for file operations
}

// UploadOptionConfig holds configuration for upload operations via functional options.
type UploadOptionConfig struct {
	ContentType         string
	Metadata            map[string]string
	Tier                AccessTier
	Checksum            ChecksumAlgorithm
	BlockSize           int64
	Concurrency         int
	SingleShotThreshold int64
	Seekable            bool
	Conditions          *AccessConditions
	ProgressTracker     ProgressTracker
}

// DownloadOptionConfig holds configuration for download operations via functional options.
type DownloadOptionConfig struct {
	Offset          int64
	Length          int64
	Concurrency     int
	VerifyChecksum  bool
	Conditions      *AccessConditions
	ProgressTracker ProgressTracker
}

// WriteStreamOptionConfig holds configuration for buffered write streams via functional options.
type WriteStreamOptionConfig struct {
	BlockSize   int64
	Concurrency int
	ContentType string
	Metadata    map[string]string
	Tier        AccessTier
	Checksum    ChecksumAlgorithm
	Conditions  *AccessConditions
}

// SubOperationConfig holds per-sub-operation configuration via functional options.
type SubOperationConfig struct {
	Credential Credential
	Conditions *AccessConditions
}

// Option is a functional option for configuring the blob client.
type (
	Option func(*ClientConfig)
	// UploadOption is a functional option for configuring upload operations.
	UploadOption func(*UploadOptionConfig)
	// DownloadOption is a functional option for configuring download operations.
	DownloadOption func(*DownloadOptionConfig)
	// WriteStreamOption is a functional option for configuring buffered write streams.
	WriteStreamOption func(*WriteStreamOptionConfig)
	// SubOperationOption is a functional option for configuring batch sub-operations.
	SubOperationOption func(*SubOperationConfig)
)
