package transfer

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/pool"
	"github.com/PositiveExperienceLLC/blobclient/internal/testutil"
)

func TestScheduler_Upload_SingleShotKnownSize(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)
	data := testutil.PatternData(512)

	result, err := s.Upload(context.Background(), &UploadSpec{
		Container:           "photos",
		Blob:                "small.bin",
		Source:              bytes.NewReader(data),
		Size:                int64(len(data)),
		BlockSize:           1024,
		SingleShotThreshold: 1024,
	})
	require.NoError(t, err)

	assert.True(t, result.SingleShot)
	assert.Equal(t, 0, result.BlockCount)
	assert.Equal(t, int64(512), result.Size)
	assert.Equal(t, 1, mock.Calls("Upload"))
	assert.Equal(t, 0, mock.Calls("StageBlock"))
	assert.Equal(t, data, mock.Blob("photos", "small.bin"))
}

func TestScheduler_Upload_SingleShotProbeUnknownSize(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)
	data := testutil.PatternData(700)

	result, err := s.Upload(context.Background(), &UploadSpec{
		Container:           "photos",
		Blob:                "probe.bin",
		Source:              bytes.NewReader(data),
		Size:                -1,
		BlockSize:           1024,
		SingleShotThreshold: 1024,
	})
	require.NoError(t, err)

	assert.True(t, result.SingleShot)
	assert.Equal(t, 1, mock.Calls("Upload"))
	assert.Equal(t, 0, mock.Calls("StageBlock"))
	assert.Equal(t, data, mock.Blob("photos", "probe.bin"))
}

func TestScheduler_Upload_EmptyStream(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)

	result, err := s.Upload(context.Background(), &UploadSpec{
		Container: "photos",
		Blob:      "empty.bin",
		Source:    bytes.NewReader(nil),
		Size:      -1,
		BlockSize: 1024,
	})
	require.NoError(t, err)

	assert.True(t, result.SingleShot)
	assert.Equal(t, int64(0), result.Size)
	assert.Equal(t, 1, mock.Calls("Upload"))
	assert.Equal(t, 0, mock.Calls("StageBlock"))
}

func TestScheduler_Upload_BlockPath(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		blockSize  int64
		wantBlocks int
	}{
		{name: "one partial block over threshold", size: 1500, blockSize: 1024, wantBlocks: 2},
		{name: "three full blocks", size: 3 * 1024, blockSize: 1024, wantBlocks: 3},
		{name: "ten blocks with tail", size: 9*1024 + 700, blockSize: 1024, wantBlocks: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAPI()
			s := NewScheduler(mock, nil)
			data := testutil.GenerateRandomData(tt.size)
			p := pool.New(tt.blockSize, 5)

			result, err := s.Upload(context.Background(), &UploadSpec{
				Container:           "media",
				Blob:                "chunked.bin",
				Source:              bytes.NewReader(data),
				Size:                -1,
				BlockSize:           tt.blockSize,
				Concurrency:         4,
				SingleShotThreshold: tt.blockSize,
				Pool:                p,
			})
			require.NoError(t, err)

			assert.False(t, result.SingleShot)
			assert.Equal(t, tt.wantBlocks, result.BlockCount)
			assert.Equal(t, int64(tt.size), result.Size)
			assert.Equal(t, tt.wantBlocks, mock.Calls("StageBlock"))
			assert.Equal(t, 1, mock.Calls("CommitBlockList"))
			assert.Equal(t, 0, mock.Calls("Upload"))
			assert.Equal(t, data, mock.Blob("media", "chunked.bin"))

			// Every buffer must be back in the pool at idle.
			assert.Equal(t, int64(0), p.Outstanding())
		})
	}
}

func TestScheduler_Upload_SeekableParallelReads(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)
	data := testutil.GenerateRandomData(10*1024 + 123)
	p := pool.New(1024, 5)

	result, err := s.Upload(context.Background(), &UploadSpec{
		Container:           "media",
		Blob:                "parallel.bin",
		Source:              bytes.NewReader(data),
		Size:                int64(len(data)),
		Seekable:            true,
		BlockSize:           1024,
		Concurrency:         4,
		SingleShotThreshold: 1024,
		Pool:                p,
	})
	require.NoError(t, err)

	assert.Equal(t, 11, result.BlockCount)
	assert.Equal(t, data, mock.Blob("media", "parallel.bin"))
	assert.Equal(t, int64(0), p.Outstanding())
}

func TestScheduler_Upload_SeekableRequiresReaderAt(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)

	// A plain reader that does not implement io.ReaderAt.
	src := struct{ *bytes.Buffer }{bytes.NewBufferString("data")}

	_, err := s.Upload(context.Background(), &UploadSpec{
		Container: "media",
		Blob:      "bad.bin",
		Source:    src,
		Size:      4,
		Seekable:  true,
		// Force the block path so the capability check is reached.
		SingleShotThreshold: 1,
		BlockSize:           2,
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestScheduler_Upload_WholeContentMD5(t *testing.T) {
	mock := testutil.NewMockAPI()
	var (
		mu           sync.Mutex
		committedMD5 []byte
	)
	mock.CommitBlockListFunc = func(ctx context.Context, container, blob string, refs []blobtypes.BlockRef, hdr blobtypes.BlobHeaders, cond *blobtypes.AccessConditions) (*blobtypes.PutResult, error) {
		mu.Lock()
		committedMD5 = hdr.ContentMD5
		mu.Unlock()
		return &blobtypes.PutResult{ETag: `"e"`}, nil
	}

	s := NewScheduler(mock, nil)
	data := testutil.GenerateRandomData(5 * 1024)

	result, err := s.Upload(context.Background(), &UploadSpec{
		Container:           "media",
		Blob:                "sum.bin",
		Source:              bytes.NewReader(data),
		Size:                -1,
		BlockSize:           1024,
		Concurrency:         3,
		SingleShotThreshold: 1024,
		Checksum:            blobtypes.ChecksumMD5,
	})
	require.NoError(t, err)

	// The committed digest covers the whole content in payload order, even
	// though blocks were staged in parallel.
	assert.Equal(t, testutil.MD5(data), committedMD5)
	assert.Equal(t, testutil.MD5(data), result.ContentMD5)
}

func TestScheduler_Upload_StageFailureLeavesBlobUntouched(t *testing.T) {
	mock := testutil.NewMockAPI()
	var calls int
	var mu sync.Mutex
	mock.StageBlockFunc = func(ctx context.Context, container, blob, blockID string, body []byte, sum *blobtypes.Checksum) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			return errors.NewBlobError("stageBlock", container, blob, errors.ErrAccessDenied)
		}
		return nil
	}

	s := NewScheduler(mock, nil)
	data := testutil.GenerateRandomData(4 * 1024)
	p := pool.New(1024, 3)

	_, err := s.Upload(context.Background(), &UploadSpec{
		Container:           "media",
		Blob:                "fail.bin",
		Source:              bytes.NewReader(data),
		Size:                -1,
		BlockSize:           1024,
		Concurrency:         2,
		SingleShotThreshold: 1024,
		Pool:                p,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAccessDenied)

	// Nothing committed, no blob created, buffers drained.
	assert.Equal(t, 0, mock.Calls("CommitBlockList"))
	assert.Nil(t, mock.Blob("media", "fail.bin"))
	assert.Equal(t, int64(0), p.Outstanding())
}

func TestScheduler_Upload_BlockCountLimit(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)

	_, err := s.Upload(context.Background(), &UploadSpec{
		Container: "media",
		Blob:      "huge.bin",
		Source:    bytes.NewReader(nil),
		Size:      int64(blobtypes.MaxBlockCount+1) * 16,
		BlockSize: 16,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBlockLimitExceeded)
	assert.Equal(t, 0, mock.Calls("Upload"))
	assert.Equal(t, 0, mock.Calls("StageBlock"))
}

func TestScheduler_Upload_ProgressTracking(t *testing.T) {
	mock := testutil.NewMockAPI()
	s := NewScheduler(mock, nil)
	tracker := &testutil.MockProgressTracker{}
	data := testutil.GenerateRandomData(3 * 1024)

	_, err := s.Upload(context.Background(), &UploadSpec{
		Container:           "media",
		Blob:                "tracked.bin",
		Source:              bytes.NewReader(data),
		Size:                int64(len(data)),
		BlockSize:           1024,
		Concurrency:         2,
		SingleShotThreshold: 1024,
		Progress:            tracker,
	})
	require.NoError(t, err)

	assert.True(t, tracker.Completed())
	assert.Equal(t, int64(len(data)), tracker.Transferred())
	assert.NoError(t, tracker.Err())
}

func TestBlockIDNamer_UniformLength(t *testing.T) {
	namer := newBlockIDNamer()

	first := namer.Next()
	for i := 0; i < 100; i++ {
		id := namer.Next()
		assert.Len(t, id, len(first))
	}
	assert.NotEqual(t, first, namer.Next())
}
