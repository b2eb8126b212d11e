package blobclient

import (
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/input-output-hk/catalyst-forge-libs/fs"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
)

// WithMaxRetries sets the maximum number of transport-level retry attempts.
// Default is 3 retries with exponential backoff.
func WithMaxRetries(maxRetries int) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.MaxRetries = maxRetries
	}
}

// WithTimeout sets the timeout for individual requests.
func WithTimeout(timeout time.Duration) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.Timeout = timeout
	}
}

// WithConcurrency sets the default number of parallel block transfers for
// uploads and downloads. Individual operations can override it.
func WithConcurrency(concurrency int) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.Concurrency = concurrency
	}
}

// WithBlockSize sets the default block size for chunked transfers.
// Individual operations can override it.
func WithBlockSize(blockSize int64) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.BlockSize = blockSize
	}
}

// WithSingleShotThreshold sets the payload size at or below which uploads
// bypass block splitting and go out as one request.
func WithSingleShotThreshold(threshold int64) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.SingleShotThreshold = threshold
	}
}

// WithCustomHTTPClient allows providing a custom HTTP client.
// Useful for custom TLS configuration or connection pooling.
func WithCustomHTTPClient(client *http.Client) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.CustomHTTPClient = client
	}
}

// WithLogger sets the logger that receives per-request debug output.
func WithLogger(logger log.Logger) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.Logger = logger
	}
}

// WithFilesystem sets a custom filesystem implementation for file
// operations. Useful for testing with in-memory filesystems.
func WithFilesystem(filesystem fs.Filesystem) blobtypes.Option {
	return func(cfg *blobtypes.ClientConfig) {
		cfg.Filesystem = filesystem
	}
}

// WithContentType sets the content type for upload operations.
func WithContentType(contentType string) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.ContentType = contentType
	}
}

// WithMetadata sets metadata for upload operations.
func WithMetadata(metadata map[string]string) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		if cfg.Metadata == nil {
			cfg.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			cfg.Metadata[k] = v
		}
	}
}

// WithTier sets the access tier applied when the blob is committed.
func WithTier(tier blobtypes.AccessTier) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.Tier = tier
	}
}

// WithChecksum selects the end-to-end checksum computed during upload.
// MD5 digests are computed per block and over the whole content; CRC64
// digests are computed per block.
func WithChecksum(alg blobtypes.ChecksumAlgorithm) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.Checksum = alg
	}
}

// WithUploadBlockSize overrides the client's block size for one upload.
func WithUploadBlockSize(blockSize int64) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.BlockSize = blockSize
	}
}

// WithUploadConcurrency overrides the client's concurrency for one upload.
func WithUploadConcurrency(concurrency int) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.Concurrency = concurrency
	}
}

// WithUploadSingleShotThreshold overrides the single-shot threshold for
// one upload.
func WithUploadSingleShotThreshold(threshold int64) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.SingleShotThreshold = threshold
	}
}

// WithSeekableSource declares that the upload source supports reads at
// independent offsets (it must implement io.ReaderAt). The capability is
// declared explicitly rather than sniffed so callers control the read
// strategy deterministically.
func WithSeekableSource() blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.Seekable = true
	}
}

// WithUploadConditions attaches access conditions evaluated when the
// upload is committed.
func WithUploadConditions(cond *blobtypes.AccessConditions) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.Conditions = cond
	}
}

// WithProgress sets a progress tracker for upload operations.
func WithProgress(tracker blobtypes.ProgressTracker) blobtypes.UploadOption {
	return func(cfg *blobtypes.UploadOptionConfig) {
		cfg.ProgressTracker = tracker
	}
}

// WithRange restricts a download to length bytes starting at offset.
// A zero length means the rest of the blob.
func WithRange(offset, length int64) blobtypes.DownloadOption {
	return func(cfg *blobtypes.DownloadOptionConfig) {
		cfg.Offset = offset
		cfg.Length = length
	}
}

// WithDownloadConcurrency overrides the client's concurrency for one
// download.
func WithDownloadConcurrency(concurrency int) blobtypes.DownloadOption {
	return func(cfg *blobtypes.DownloadOptionConfig) {
		cfg.Concurrency = concurrency
	}
}

// WithVerifyChecksum verifies the downloaded content against the blob's
// stored whole-content digest. Only full downloads of blobs that carry a
// digest can be verified.
func WithVerifyChecksum() blobtypes.DownloadOption {
	return func(cfg *blobtypes.DownloadOptionConfig) {
		cfg.VerifyChecksum = true
	}
}

// WithDownloadConditions attaches access conditions to a download.
func WithDownloadConditions(cond *blobtypes.AccessConditions) blobtypes.DownloadOption {
	return func(cfg *blobtypes.DownloadOptionConfig) {
		cfg.Conditions = cond
	}
}

// WithDownloadProgress sets a progress tracker for download operations.
func WithDownloadProgress(tracker blobtypes.ProgressTracker) blobtypes.DownloadOption {
	return func(cfg *blobtypes.DownloadOptionConfig) {
		cfg.ProgressTracker = tracker
	}
}

// WithStreamBlockSize sets the block size of a write stream.
func WithStreamBlockSize(blockSize int64) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		cfg.BlockSize = blockSize
	}
}

// WithStreamConcurrency sets the number of parallel staging requests a
// write stream keeps in flight.
func WithStreamConcurrency(concurrency int) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		cfg.Concurrency = concurrency
	}
}

// WithStreamContentType sets the content type committed with the stream.
func WithStreamContentType(contentType string) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		cfg.ContentType = contentType
	}
}

// WithStreamMetadata sets metadata committed with the stream.
func WithStreamMetadata(metadata map[string]string) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		if cfg.Metadata == nil {
			cfg.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			cfg.Metadata[k] = v
		}
	}
}

// WithStreamTier sets the access tier committed with the stream.
func WithStreamTier(tier blobtypes.AccessTier) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		cfg.Tier = tier
	}
}

// WithStreamChecksum selects the checksum computed over streamed blocks.
func WithStreamChecksum(alg blobtypes.ChecksumAlgorithm) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		cfg.Checksum = alg
	}
}

// WithStreamConditions attaches access conditions evaluated when the
// stream is committed at Close, not when it is opened.
func WithStreamConditions(cond *blobtypes.AccessConditions) blobtypes.WriteStreamOption {
	return func(cfg *blobtypes.WriteStreamOptionConfig) {
		cfg.Conditions = cond
	}
}

// WithSubCredential overrides the batch credential for one sub-operation,
// e.g. a token scoped to a single blob.
func WithSubCredential(cred blobtypes.Credential) blobtypes.SubOperationOption {
	return func(cfg *blobtypes.SubOperationConfig) {
		cfg.Credential = cred
	}
}

// WithSubConditions attaches access conditions to one sub-operation.
func WithSubConditions(cond *blobtypes.AccessConditions) blobtypes.SubOperationOption {
	return func(cfg *blobtypes.SubOperationConfig) {
		cfg.Conditions = cond
	}
}
