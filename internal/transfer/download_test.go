package transfer

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/testutil"
)

// writerAtBuffer is a test assembly target for parallel downloads.
type writerAtBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (w *writerAtBuffer) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if need := off + int64(len(p)); need > int64(len(w.data)) {
		grown := make([]byte, need)
		copy(grown, w.data)
		w.data = grown
	}
	return copy(w.data[off:], p), nil
}

func (w *writerAtBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func TestScheduler_Download_Sequential(t *testing.T) {
	mock := testutil.NewMockAPI()
	data := testutil.GenerateRandomData(2048)
	mock.SeedBlob("media", "clip.bin", data, blobtypes.BlobHeaders{})

	s := NewScheduler(mock, nil)
	var out bytes.Buffer

	result, err := s.Download(context.Background(), &DownloadSpec{
		Container: "media",
		Blob:      "clip.bin",
		BlockSize: 1024,
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, int64(len(data)), result.Size)
	assert.NotEmpty(t, result.ETag)
}

func TestScheduler_Download_Range(t *testing.T) {
	mock := testutil.NewMockAPI()
	data := testutil.PatternData(4096)
	mock.SeedBlob("media", "clip.bin", data, blobtypes.BlobHeaders{})

	s := NewScheduler(mock, nil)
	var out bytes.Buffer

	result, err := s.Download(context.Background(), &DownloadSpec{
		Container: "media",
		Blob:      "clip.bin",
		Offset:    100,
		Length:    500,
		BlockSize: 1024,
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, data[100:600], out.Bytes())
	assert.Equal(t, int64(500), result.Size)
}

func TestScheduler_Download_Parallel(t *testing.T) {
	mock := testutil.NewMockAPI()
	data := testutil.GenerateRandomData(10*1024 + 333)
	mock.SeedBlob("media", "big.bin", data, blobtypes.BlobHeaders{})

	s := NewScheduler(mock, nil)
	out := &writerAtBuffer{}

	result, err := s.Download(context.Background(), &DownloadSpec{
		Container:   "media",
		Blob:        "big.bin",
		BlockSize:   1024,
		Concurrency: 4,
	}, out)
	require.NoError(t, err)

	assert.Equal(t, data, out.data)
	assert.Equal(t, int64(len(data)), result.Size)
	// One probe plus one ranged request per segment.
	assert.Equal(t, 11, mock.Calls("Download"))
	assert.Equal(t, 1, mock.Calls("GetProperties"))
}

func TestScheduler_Download_ParallelPinsVersion(t *testing.T) {
	mock := testutil.NewMockAPI()
	data := testutil.GenerateRandomData(4 * 1024)
	mock.SeedBlob("media", "pinned.bin", data, blobtypes.BlobHeaders{})

	var (
		mu    sync.Mutex
		etags []string
	)
	mock.DownloadFunc = func(ctx context.Context, container, blob string, offset, length int64, cond *blobtypes.AccessConditions) (io.ReadCloser, *blobtypes.BlobProperties, error) {
		mu.Lock()
		require.NotNil(t, cond)
		etags = append(etags, cond.IfMatch)
		mu.Unlock()
		end := offset + length
		return io.NopCloser(bytes.NewReader(data[offset:end])), nil, nil
	}

	s := NewScheduler(mock, nil)
	out := &writerAtBuffer{}

	_, err := s.Download(context.Background(), &DownloadSpec{
		Container:   "media",
		Blob:        "pinned.bin",
		BlockSize:   1024,
		Concurrency: 4,
	}, out)
	require.NoError(t, err)

	// Every ranged request carries the etag observed by the probe.
	require.NotEmpty(t, etags)
	for _, etag := range etags {
		assert.NotEmpty(t, etag)
		assert.Equal(t, etags[0], etag)
	}
}

func TestScheduler_Download_InvalidRange(t *testing.T) {
	mock := testutil.NewMockAPI()
	mock.SeedBlob("media", "small.bin", testutil.PatternData(100), blobtypes.BlobHeaders{})

	s := NewScheduler(mock, nil)

	tests := []struct {
		name   string
		offset int64
		length int64
	}{
		{name: "offset past end", offset: 200, length: 0},
		{name: "length past end", offset: 50, length: 100},
		{name: "negative offset", offset: -1, length: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := s.Download(context.Background(), &DownloadSpec{
				Container: "media",
				Blob:      "small.bin",
				Offset:    tt.offset,
				Length:    tt.length,
			}, &out)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidRange)
		})
	}
}

func TestScheduler_Download_VerifyChecksum(t *testing.T) {
	data := testutil.GenerateRandomData(1500)

	t.Run("digest matches", func(t *testing.T) {
		mock := testutil.NewMockAPI()
		mock.SeedBlob("media", "ok.bin", data, blobtypes.BlobHeaders{ContentMD5: testutil.MD5(data)})

		s := NewScheduler(mock, nil)
		var out bytes.Buffer
		_, err := s.Download(context.Background(), &DownloadSpec{
			Container:      "media",
			Blob:           "ok.bin",
			BlockSize:      4096,
			VerifyChecksum: true,
		}, &out)
		require.NoError(t, err)
		assert.Equal(t, data, out.Bytes())
	})

	t.Run("digest mismatch", func(t *testing.T) {
		mock := testutil.NewMockAPI()
		mock.SeedBlob("media", "bad.bin", data, blobtypes.BlobHeaders{ContentMD5: testutil.MD5([]byte("other content"))})

		s := NewScheduler(mock, nil)
		var out bytes.Buffer
		_, err := s.Download(context.Background(), &DownloadSpec{
			Container:      "media",
			Blob:           "bad.bin",
			BlockSize:      4096,
			VerifyChecksum: true,
		}, &out)
		require.Error(t, err)
		assert.True(t, errors.IsChecksumMismatch(err))
	})
}

func TestScheduler_Download_NotFound(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)

	var out bytes.Buffer
	_, err := s.Download(context.Background(), &DownloadSpec{
		Container: "media",
		Blob:      "missing.bin",
	}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsBlobNotFound(err))
}
