// Package testutil provides shared test doubles and data helpers.
package testutil

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // test helper mirrors the protocol digest
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// MockAPI is a configurable test double for the wire API. Each method
// delegates to the corresponding func field when set and falls back to an
// in-memory blob store otherwise, so most tests only override the calls
// they care about.
type MockAPI struct {
	UploadFunc          func(ctx context.Context, container, blob string, body []byte, hdr blobtypes.BlobHeaders, cond *blobtypes.AccessConditions) (*blobtypes.PutResult, error)
	StageBlockFunc      func(ctx context.Context, container, blob, blockID string, body []byte, sum *blobtypes.Checksum) error
	CommitBlockListFunc func(ctx context.Context, container, blob string, refs []blobtypes.BlockRef, hdr blobtypes.BlobHeaders, cond *blobtypes.AccessConditions) (*blobtypes.PutResult, error)
	GetBlockListFunc    func(ctx context.Context, container, blob string, listType blobtypes.BlockListType) (*blobtypes.BlockList, error)
	DownloadFunc        func(ctx context.Context, container, blob string, offset, length int64, cond *blobtypes.AccessConditions) (io.ReadCloser, *blobtypes.BlobProperties, error)
	GetPropertiesFunc   func(ctx context.Context, container, blob string, cond *blobtypes.AccessConditions) (*blobtypes.BlobProperties, error)
	DeleteFunc          func(ctx context.Context, container, blob string, cond *blobtypes.AccessConditions) error
	SetAccessTierFunc   func(ctx context.Context, container, blob string, tier blobtypes.AccessTier) error
	SubmitBatchFunc     func(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error)

	mu         sync.Mutex
	blobs      map[string]*storedBlob
	staged     map[string]map[string][]byte
	calls      map[string]int
	etagSerial int
}

type storedBlob struct {
	data       []byte
	blocks     []storedBlock
	headers    blobtypes.BlobHeaders
	etag       string
	tier       blobtypes.AccessTier
	modified   time.Time
	blockCount int
}

// storedBlock is one entry of a committed blob's block manifest. Content
// is retained per block so a later commit can reference committed blocks
// again, in any order.
type storedBlock struct {
	id   string
	data []byte
}

func (b *storedBlob) block(id string) ([]byte, bool) {
	if b == nil {
		return nil, false
	}
	for _, blk := range b.blocks {
		if blk.id == id {
			return blk.data, true
		}
	}
	return nil, false
}

// NewMockAPI creates a mock with an empty in-memory store.
func NewMockAPI() *MockAPI {
	return &MockAPI{
		blobs:  map[string]*storedBlob{},
		staged: map[string]map[string][]byte{},
		calls:  map[string]int{},
	}
}

func key(container, blob string) string {
	return container + "/" + blob
}

// Calls returns how many times the named method was invoked.
func (m *MockAPI) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// StagedBlocks returns the number of uncommitted blocks held for a blob.
func (m *MockAPI) StagedBlocks(container, blob string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged[key(container, blob)])
}

// Blob returns the committed content of a stored blob, or nil.
func (m *MockAPI) Blob(container, blob string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.blobs[key(container, blob)]; ok {
		return append([]byte(nil), b.data...)
	}
	return nil
}

// SeedBlob installs committed content directly, bypassing the upload path.
func (m *MockAPI) SeedBlob(container, blob string, data []byte, hdr blobtypes.BlobHeaders) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etagSerial++
	m.blobs[key(container, blob)] = &storedBlob{
		data:     append([]byte(nil), data...),
		headers:  hdr,
		etag:     fmt.Sprintf("\"etag-%d\"", m.etagSerial),
		tier:     blobtypes.TierHot,
		modified: time.Now().UTC(),
	}
}

func (m *MockAPI) record(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

func (m *MockAPI) checkConditions(b *storedBlob, cond *blobtypes.AccessConditions) error {
	if cond.IsZero() {
		return nil
	}
	if cond.IfMatch != "" && cond.IfMatch != blobtypes.ETagAny {
		if b == nil || b.etag != cond.IfMatch {
			return errors.ErrPreconditionFailed
		}
	}
	if cond.IfNoneMatch == blobtypes.ETagAny && b != nil {
		return errors.ErrConflict
	}
	return nil
}

// Upload implements the single-shot put against the in-memory store.
func (m *MockAPI) Upload(ctx context.Context, container, blob string, body []byte, hdr blobtypes.BlobHeaders, cond *blobtypes.AccessConditions) (*blobtypes.PutResult, error) {
	m.record("Upload")
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, container, blob, body, hdr, cond)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkConditions(m.blobs[key(container, blob)], cond); err != nil {
		return nil, errors.NewBlobError("upload", container, blob, err)
	}
	m.etagSerial++
	b := &storedBlob{
		data:     append([]byte(nil), body...),
		headers:  hdr,
		etag:     fmt.Sprintf("\"etag-%d\"", m.etagSerial),
		tier:     hdr.Tier,
		modified: time.Now().UTC(),
	}
	m.blobs[key(container, blob)] = b
	return &blobtypes.PutResult{ETag: b.etag, LastModified: b.modified, ContentMD5: hdr.ContentMD5}, nil
}

// StageBlock stores an uncommitted block.
func (m *MockAPI) StageBlock(ctx context.Context, container, blob, blockID string, body []byte, sum *blobtypes.Checksum) error {
	m.record("StageBlock")
	if m.StageBlockFunc != nil {
		return m.StageBlockFunc(ctx, container, blob, blockID, body, sum)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(container, blob)
	if m.staged[k] == nil {
		m.staged[k] = map[string][]byte{}
	}
	m.staged[k][blockID] = append([]byte(nil), body...)
	return nil
}

// CommitBlockList assembles the referenced blocks in manifest order into
// committed content. Each ref resolves against the staged set, the
// previously committed set, or both, per its status; the staged set is
// cleared afterward and committed blocks remain reusable by later commits.
func (m *MockAPI) CommitBlockList(ctx context.Context, container, blob string, refs []blobtypes.BlockRef, hdr blobtypes.BlobHeaders, cond *blobtypes.AccessConditions) (*blobtypes.PutResult, error) {
	m.record("CommitBlockList")
	if m.CommitBlockListFunc != nil {
		return m.CommitBlockListFunc(ctx, container, blob, refs, hdr, cond)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(container, blob)
	existing := m.blobs[k]
	if err := m.checkConditions(existing, cond); err != nil {
		return nil, errors.NewBlobError("commitBlockList", container, blob, err)
	}
	var (
		buf    bytes.Buffer
		blocks []storedBlock
	)
	for _, ref := range refs {
		var (
			data []byte
			ok   bool
		)
		switch ref.Status {
		case blobtypes.BlockUncommitted:
			data, ok = m.staged[k][ref.ID]
		case blobtypes.BlockCommitted:
			data, ok = existing.block(ref.ID)
		default:
			if data, ok = m.staged[k][ref.ID]; !ok {
				data, ok = existing.block(ref.ID)
			}
		}
		if !ok {
			return nil, errors.NewBlobError("commitBlockList", container, blob, errors.ErrInvalidBlockID).
				WithMessage("unknown block " + ref.ID)
		}
		blocks = append(blocks, storedBlock{id: ref.ID, data: data})
		buf.Write(data)
	}
	m.etagSerial++
	b := &storedBlob{
		data:       buf.Bytes(),
		blocks:     blocks,
		headers:    hdr,
		etag:       fmt.Sprintf("\"etag-%d\"", m.etagSerial),
		tier:       hdr.Tier,
		modified:   time.Now().UTC(),
		blockCount: len(refs),
	}
	m.blobs[k] = b
	delete(m.staged, k)
	return &blobtypes.PutResult{ETag: b.etag, LastModified: b.modified, ContentMD5: hdr.ContentMD5}, nil
}

// GetBlockList reports committed and staged blocks.
func (m *MockAPI) GetBlockList(ctx context.Context, container, blob string, listType blobtypes.BlockListType) (*blobtypes.BlockList, error) {
	m.record("GetBlockList")
	if m.GetBlockListFunc != nil {
		return m.GetBlockListFunc(ctx, container, blob, listType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &blobtypes.BlockList{}
	if listType != blobtypes.BlockListUncommitted {
		if b := m.blobs[key(container, blob)]; b != nil {
			for _, blk := range b.blocks {
				out.Committed = append(out.Committed, blobtypes.Block{ID: blk.id, Size: int64(len(blk.data))})
			}
		}
	}
	if listType != blobtypes.BlockListCommitted {
		for id, data := range m.staged[key(container, blob)] {
			out.Uncommitted = append(out.Uncommitted, blobtypes.Block{ID: id, Size: int64(len(data))})
		}
	}
	return out, nil
}

// Download serves a byte range of committed content.
func (m *MockAPI) Download(ctx context.Context, container, blob string, offset, length int64, cond *blobtypes.AccessConditions) (io.ReadCloser, *blobtypes.BlobProperties, error) {
	m.record("Download")
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, container, blob, offset, length, cond)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key(container, blob)]
	if !ok {
		return nil, nil, errors.NewBlobError("download", container, blob, errors.ErrBlobNotFound)
	}
	if err := m.checkConditions(b, cond); err != nil {
		return nil, nil, errors.NewBlobError("download", container, blob, err)
	}
	end := int64(len(b.data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	if offset > int64(len(b.data)) {
		return nil, nil, errors.NewBlobError("download", container, blob, errors.ErrInvalidRange)
	}
	props := m.propsLocked(b)
	return io.NopCloser(bytes.NewReader(b.data[offset:end])), props, nil
}

// GetProperties reports stored blob properties.
func (m *MockAPI) GetProperties(ctx context.Context, container, blob string, cond *blobtypes.AccessConditions) (*blobtypes.BlobProperties, error) {
	m.record("GetProperties")
	if m.GetPropertiesFunc != nil {
		return m.GetPropertiesFunc(ctx, container, blob, cond)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key(container, blob)]
	if !ok {
		return nil, errors.NewBlobError("getProperties", container, blob, errors.ErrBlobNotFound)
	}
	if err := m.checkConditions(b, cond); err != nil {
		return nil, errors.NewBlobError("getProperties", container, blob, err)
	}
	return m.propsLocked(b), nil
}

func (m *MockAPI) propsLocked(b *storedBlob) *blobtypes.BlobProperties {
	return &blobtypes.BlobProperties{
		ContentType:   b.headers.ContentType,
		ContentLength: int64(len(b.data)),
		ContentMD5:    b.headers.ContentMD5,
		ETag:          b.etag,
		LastModified:  b.modified,
		AccessTier:    b.tier,
		Metadata:      b.headers.Metadata,
		BlockCount:    b.blockCount,
	}
}

// Delete removes a blob.
func (m *MockAPI) Delete(ctx context.Context, container, blob string, cond *blobtypes.AccessConditions) error {
	m.record("Delete")
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, container, blob, cond)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(container, blob)
	b, ok := m.blobs[k]
	if !ok {
		return errors.NewBlobError("delete", container, blob, errors.ErrBlobNotFound)
	}
	if err := m.checkConditions(b, cond); err != nil {
		return errors.NewBlobError("delete", container, blob, err)
	}
	delete(m.blobs, k)
	return nil
}

// SetAccessTier changes a blob's tier.
func (m *MockAPI) SetAccessTier(ctx context.Context, container, blob string, tier blobtypes.AccessTier) error {
	m.record("SetAccessTier")
	if m.SetAccessTierFunc != nil {
		return m.SetAccessTierFunc(ctx, container, blob, tier)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key(container, blob)]
	if !ok {
		return errors.NewBlobError("setAccessTier", container, blob, errors.ErrBlobNotFound)
	}
	b.tier = tier
	return nil
}

// SubmitBatch delegates to SubmitBatchFunc; there is no in-memory default.
func (m *MockAPI) SubmitBatch(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error) {
	m.record("SubmitBatch")
	if m.SubmitBatchFunc != nil {
		return m.SubmitBatchFunc(ctx, contentType, body)
	}
	return "", nil, errors.NewError("executeBatch", errors.ErrNotSupported).
		WithMessage("mock has no SubmitBatchFunc configured")
}

// MD5 computes the protocol content digest of data, for assertions.
func MD5(data []byte) []byte {
	sum := md5.Sum(data) //nolint:gosec
	return sum[:]
}
