// Package validation provides centralized input validation logic.
// This includes container name validation, blob name validation, block
// identifier checks, and metadata checks.
//
// All user inputs are validated before any wire call is made.
package validation

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// maxBlobNameLength is the longest blob name the service accepts.
const maxBlobNameLength = 1024

// maxDecodedBlockIDLength bounds the decoded block identifier size.
const maxDecodedBlockIDLength = 64

// ValidateContainerName validates that a container name is DNS-compliant.
// Returns ErrInvalidContainerName if the name is invalid.
func ValidateContainerName(container string) error {
	if container == "" {
		return errors.NewError("validateContainerName", errors.ErrInvalidContainerName).
			WithContainer(container).
			WithMessage("container name cannot be empty")
	}

	if len(container) < 3 || len(container) > 63 {
		return errors.NewError("validateContainerName", errors.ErrInvalidContainerName).
			WithContainer(container).
			WithMessage("container name must be between 3 and 63 characters long")
	}

	for _, r := range container {
		if !(r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return errors.NewError("validateContainerName", errors.ErrInvalidContainerName).
				WithContainer(container).
				WithMessage("container name may only contain lowercase letters, digits and hyphens")
		}
	}

	if strings.HasPrefix(container, "-") || strings.HasSuffix(container, "-") {
		return errors.NewError("validateContainerName", errors.ErrInvalidContainerName).
			WithContainer(container).
			WithMessage("container name cannot begin or end with a hyphen")
	}

	if strings.Contains(container, "--") {
		return errors.NewError("validateContainerName", errors.ErrInvalidContainerName).
			WithContainer(container).
			WithMessage("container name cannot contain consecutive hyphens")
	}

	return nil
}

// ValidateBlobName validates that a blob name is acceptable to the service.
// This includes preventing path traversal and control characters.
func ValidateBlobName(blob string) error {
	if blob == "" {
		return errors.NewError("validateBlobName", errors.ErrInvalidBlobName).
			WithBlob(blob).
			WithMessage("blob name cannot be empty")
	}

	if len(blob) > maxBlobNameLength {
		return errors.NewError("validateBlobName", errors.ErrInvalidBlobName).
			WithBlob(blob).
			WithMessage(fmt.Sprintf("blob name cannot exceed %d characters", maxBlobNameLength))
	}

	if hasPathTraversal(blob) {
		return errors.NewError("validateBlobName", errors.ErrInvalidBlobName).
			WithBlob(blob).
			WithMessage("blob name cannot contain path traversal sequences")
	}

	if hasControlCharacters(blob) {
		return errors.NewError("validateBlobName", errors.ErrInvalidBlobName).
			WithBlob(blob).
			WithMessage("blob name cannot contain control characters")
	}

	return nil
}

// ValidateBlockID validates a block identifier: it must be valid base64
// and decode to at most 64 bytes. All blocks of one blob must use equal
// pre-encoding lengths; that uniformity is enforced at commit time.
func ValidateBlockID(blockID string) error {
	if blockID == "" {
		return errors.NewError("validateBlockID", errors.ErrInvalidBlockID).
			WithMessage("block id cannot be empty")
	}

	decoded, err := base64.StdEncoding.DecodeString(blockID)
	if err != nil {
		return errors.NewError("validateBlockID", errors.ErrInvalidBlockID).
			WithMessage("block id must be valid base64")
	}

	if len(decoded) > maxDecodedBlockIDLength {
		return errors.NewError("validateBlockID", errors.ErrInvalidBlockID).
			WithMessage(fmt.Sprintf("block id cannot exceed %d bytes before encoding", maxDecodedBlockIDLength))
	}

	return nil
}

// ValidateBlockRefs validates a commit manifest: every id well-formed,
// count within the service limit.
func ValidateBlockRefs(refs []blobtypes.BlockRef) error {
	if len(refs) > blobtypes.MaxBlockCount {
		return errors.NewError("validateBlockRefs", errors.ErrBlockLimitExceeded).
			WithMessage(fmt.Sprintf("manifest references %d blocks, limit is %d", len(refs), blobtypes.MaxBlockCount))
	}
	for _, ref := range refs {
		if err := ValidateBlockID(ref.ID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBlockSize validates a configured block size against service limits.
func ValidateBlockSize(size int64) error {
	if size <= 0 {
		return errors.NewError("validateBlockSize", errors.ErrInvalidInput).
			WithMessage("block size must be positive")
	}
	if size > blobtypes.MaxBlockSize {
		return errors.NewError("validateBlockSize", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("block size %d exceeds service maximum %d", size, blobtypes.MaxBlockSize))
	}
	return nil
}

// ValidateMetadata validates metadata keys and values.
// Empty values are rejected: some runtimes silently merge them with
// neighbouring values, so the client refuses them deterministically.
func ValidateMetadata(metadata map[string]string) error {
	for key, value := range metadata {
		if err := validateMetadataKey(key); err != nil {
			return err
		}
		if value == "" {
			return errors.NewError("validateMetadata", errors.ErrInvalidMetadata).
				WithMessage(fmt.Sprintf("metadata value for %q cannot be empty", key))
		}
		if hasControlCharacters(value) {
			return errors.NewError("validateMetadata", errors.ErrInvalidMetadata).
				WithMessage(fmt.Sprintf("metadata value for %q cannot contain control characters", key))
		}
	}
	return nil
}

// validateMetadataKey checks that a metadata key is a valid identifier
// (letters, digits, underscores, not starting with a digit).
func validateMetadataKey(key string) error {
	if key == "" {
		return errors.NewError("validateMetadata", errors.ErrInvalidMetadata).
			WithMessage("metadata key cannot be empty")
	}
	for i, r := range key {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case unicode.IsDigit(r):
			if i == 0 {
				return errors.NewError("validateMetadata", errors.ErrInvalidMetadata).
					WithMessage(fmt.Sprintf("metadata key %q cannot start with a digit", key))
			}
		default:
			return errors.NewError("validateMetadata", errors.ErrInvalidMetadata).
				WithMessage(fmt.Sprintf("metadata key %q contains invalid character %q", key, r))
		}
	}
	return nil
}

// hasPathTraversal checks for ".." sequences that would escape the blob namespace.
func hasPathTraversal(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// hasControlCharacters reports whether s contains ASCII control characters.
func hasControlCharacters(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
