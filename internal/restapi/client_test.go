package restapi

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/checksum"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Endpoint: srv.URL, MaxRetries: 0})
	require.NoError(t, err)
	return client, srv
}

func blockID(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestNewClient_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "empty", endpoint: ""},
		{name: "relative", endpoint: "/just/a/path"},
		{name: "no host", endpoint: "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(Config{Endpoint: tt.endpoint})
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err))
		})
	}
}

func TestClient_Upload(t *testing.T) {
	var got *http.Request
	var body []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"0x1F"`)
		w.Header().Set("Last-Modified", "Tue, 25 Aug 2026 10:00:00 GMT")
		w.WriteHeader(http.StatusCreated)
	}))

	data := []byte("hello blob")
	result, err := client.Upload(context.Background(), "photos", "cat.jpg", data, blobtypes.BlobHeaders{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"author": "ops"},
		Tier:        blobtypes.TierCool,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/photos/cat.jpg", got.URL.Path)
	assert.Equal(t, "BlockBlob", got.Header.Get("x-ms-blob-type"))
	assert.Equal(t, serviceVersion, got.Header.Get("x-ms-version"))
	assert.Equal(t, "image/jpeg", got.Header.Get("Content-Type"))
	assert.Equal(t, "ops", got.Header.Get("x-ms-meta-author"))
	assert.Equal(t, "Cool", got.Header.Get("x-ms-access-tier"))
	assert.Equal(t, data, body)

	assert.Equal(t, `"0x1F"`, result.ETag)
	assert.False(t, result.LastModified.IsZero())
	assert.Equal(t, int64(1), client.RequestCount())
}

func TestClient_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		sentinel error
	}{
		{name: "blob not found", status: 404, code: "BlobNotFound", sentinel: errors.ErrBlobNotFound},
		{name: "container not found", status: 404, code: "ContainerNotFound", sentinel: errors.ErrContainerNotFound},
		{name: "access denied", status: 403, code: "AuthorizationFailure", sentinel: errors.ErrAccessDenied},
		{name: "precondition failed", status: 412, code: "ConditionNotMet", sentinel: errors.ErrPreconditionFailed},
		{name: "conflict", status: 409, code: "BlobAlreadyExists", sentinel: errors.ErrConflict},
		{name: "invalid range", status: 416, code: "InvalidRange", sentinel: errors.ErrInvalidRange},
		{name: "bad request", status: 400, code: "InvalidInput", sentinel: errors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("x-ms-error-code", tt.code)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>` + tt.code + `</Code><Message>detail text</Message></Error>`))
			}))

			_, err := client.GetProperties(context.Background(), "photos", "cat.jpg", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestClient_StageBlock(t *testing.T) {
	data := []byte("block content")
	sum, err := checksum.Sum(blobtypes.ChecksumCRC64, data)
	require.NoError(t, err)

	t.Run("digest echoed back", func(t *testing.T) {
		var got *http.Request
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Clone(context.Background())
			w.Header().Set("x-ms-content-crc64", r.Header.Get("x-ms-content-crc64"))
			w.WriteHeader(http.StatusCreated)
		}))

		err := client.StageBlock(context.Background(), "media", "clip.bin", blockID("0001"), data,
			&blobtypes.Checksum{Algorithm: blobtypes.ChecksumCRC64, Value: sum})
		require.NoError(t, err)

		assert.Equal(t, "block", got.URL.Query().Get("comp"))
		assert.Equal(t, blockID("0001"), got.URL.Query().Get("blockid"))
		assert.Equal(t, checksum.Encode(sum), got.Header.Get("x-ms-content-crc64"))
	})

	t.Run("digest disagreement is a checksum mismatch", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("x-ms-content-crc64", "AAAAAAAAAAA=")
			w.WriteHeader(http.StatusCreated)
		}))

		err := client.StageBlock(context.Background(), "media", "clip.bin", blockID("0001"), data,
			&blobtypes.Checksum{Algorithm: blobtypes.ChecksumCRC64, Value: sum})
		require.Error(t, err)
		assert.True(t, errors.IsChecksumMismatch(err))
	})
}

func TestClient_CommitBlockList(t *testing.T) {
	var got *http.Request
	var body []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"0x2A"`)
		w.WriteHeader(http.StatusCreated)
	}))

	result, err := client.CommitBlockList(context.Background(), "media", "clip.bin",
		[]blobtypes.BlockRef{
			{ID: blockID("a"), Status: blobtypes.BlockLatest},
			{ID: blockID("b"), Status: blobtypes.BlockCommitted},
		},
		blobtypes.BlobHeaders{ContentType: "video/mp4", Metadata: map[string]string{"kind": "clip"}},
		&blobtypes.AccessConditions{IfNoneMatch: blobtypes.ETagAny},
	)
	require.NoError(t, err)

	assert.Equal(t, "blocklist", got.URL.Query().Get("comp"))
	assert.Contains(t, string(body), "<Latest>"+blockID("a")+"</Latest>")
	assert.Contains(t, string(body), "<Committed>"+blockID("b")+"</Committed>")
	assert.Equal(t, "video/mp4", got.Header.Get("x-ms-blob-content-type"))
	assert.Equal(t, "clip", got.Header.Get("x-ms-meta-kind"))
	assert.Equal(t, "*", got.Header.Get("If-None-Match"))
	assert.Equal(t, `"0x2A"`, result.ETag)
}

func TestClient_GetBlockList(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<?xml version="1.0"?><BlockList>
			<CommittedBlocks><Block><Name>` + blockID("a") + `</Name><Size>1024</Size></Block></CommittedBlocks>
			<UncommittedBlocks><Block><Name>` + blockID("b") + `</Name><Size>512</Size></Block></UncommittedBlocks>
		</BlockList>`))
	}))

	list, err := client.GetBlockList(context.Background(), "media", "clip.bin", blobtypes.BlockListAll)
	require.NoError(t, err)

	assert.Equal(t, "blocklist", got.URL.Query().Get("comp"))
	assert.Equal(t, "all", got.URL.Query().Get("blocklisttype"))
	require.Len(t, list.Committed, 1)
	assert.Equal(t, int64(1024), list.Committed[0].Size)
	require.Len(t, list.Uncommitted, 1)
	assert.Equal(t, blockID("b"), list.Uncommitted[0].ID)
}

func TestClient_Download_Range(t *testing.T) {
	content := []byte("0123456789")
	var got *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Range", "bytes 2-5/10")
		w.Header().Set("ETag", `"0x3B"`)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(content[2:6])
	}))

	body, props, err := client.Download(context.Background(), "media", "clip.bin", 2, 4, nil)
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, "bytes=2-5", got.Header.Get("Range"))

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content[2:6], data)

	// Total size comes from Content-Range for ranged responses.
	assert.Equal(t, int64(10), props.ContentLength)
	assert.Equal(t, `"0x3B"`, props.ETag)
}

func TestClient_GetProperties(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", "2048")
		w.Header().Set("ETag", `"0x4C"`)
		w.Header().Set("Last-Modified", "Tue, 25 Aug 2026 10:00:00 GMT")
		w.Header().Set("x-ms-access-tier", "Cool")
		w.Header().Set("x-ms-meta-author", "ops")
		w.Header().Set("x-ms-meta-Release-Tag", "v1.2")
		w.Header().Set("x-ms-blob-committed-block-count", "3")
		w.WriteHeader(http.StatusOK)
	}))

	props, err := client.GetProperties(context.Background(), "docs", "report.pdf", nil)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", props.ContentType)
	assert.Equal(t, int64(2048), props.ContentLength)
	assert.Equal(t, blobtypes.TierCool, props.AccessTier)
	assert.Equal(t, 3, props.BlockCount)

	// Metadata keys survive header canonicalization as lowercase.
	assert.Equal(t, "ops", props.Metadata["author"])
	assert.Equal(t, "v1.2", props.Metadata["release-tag"])
}

func TestClient_Delete(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusAccepted)
	}))

	err := client.Delete(context.Background(), "docs", "old.pdf", &blobtypes.AccessConditions{IfMatch: `"0x5D"`})
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, `"0x5D"`, got.Header.Get("If-Match"))
}

func TestClient_SetAccessTier(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusAccepted)
	}))

	err := client.SetAccessTier(context.Background(), "docs", "cold.pdf", blobtypes.TierArchive)
	require.NoError(t, err)

	assert.Equal(t, "tier", got.URL.Query().Get("comp"))
	assert.Equal(t, "Archive", got.Header.Get("x-ms-access-tier"))
}

func TestClient_SubmitBatch(t *testing.T) {
	var got *http.Request
	var body []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "multipart/mixed; boundary=resp_boundary")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("--resp_boundary--\r\n"))
	}))

	contentType, respBody, err := client.SubmitBatch(context.Background(),
		"multipart/mixed; boundary=batch_x", []byte("payload"))
	require.NoError(t, err)
	defer respBody.Close()

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "batch", got.URL.Query().Get("comp"))
	assert.Equal(t, "multipart/mixed; boundary=batch_x", got.Header.Get("Content-Type"))
	assert.Equal(t, []byte("payload"), body)
	assert.Equal(t, "multipart/mixed; boundary=resp_boundary", contentType)
}

func TestClient_SASCredentialSignsRequests(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	cred, err := blobtypes.NewSASCredential("?sv=2021&sig=abc")
	require.NoError(t, err)
	client, err := NewClient(Config{Endpoint: srv.URL, Credential: cred})
	require.NoError(t, err)

	require.NoError(t, client.Delete(context.Background(), "docs", "x", nil))
	assert.Equal(t, "abc", got.URL.Query().Get("sig"))
	assert.Equal(t, "2021", got.URL.Query().Get("sv"))
}
