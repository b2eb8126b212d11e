package blobclient

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/testutil"
)

const respBoundary = "batch_response_1"

// batchResponse assembles a canned multipart batch response.
func batchResponse(parts ...string) (string, io.ReadCloser, error) {
	body := strings.Join(parts, "") + "--" + respBoundary + "--\r\n"
	return "multipart/mixed; boundary=" + respBoundary, io.NopCloser(strings.NewReader(body)), nil
}

func respSuccess(index, status string) string {
	return "--" + respBoundary + "\r\n" +
		"Content-Type: application/http\r\n" +
		"Content-ID: " + index + "\r\n" +
		"\r\n" +
		"HTTP/1.1 " + status + "\r\n" +
		"\r\n"
}

func respFailure(index, status, code, message string) string {
	return "--" + respBoundary + "\r\n" +
		"Content-Type: application/http\r\n" +
		"Content-ID: " + index + "\r\n" +
		"\r\n" +
		"HTTP/1.1 " + status + "\r\n" +
		"x-ms-error-code: " + code + "\r\n" +
		"\r\n" +
		"<Error><Code>" + code + "</Code><Message>" + message + "</Message></Error>\r\n"
}

func TestBatch_Execute_AllSuccess(t *testing.T) {
	mock := testutil.NewMockAPI()
	var sentBody string
	mock.SubmitBatchFunc = func(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error) {
		sentBody = string(body)
		assert.True(t, strings.HasPrefix(contentType, "multipart/mixed; boundary=batch_"))
		return batchResponse(
			respSuccess("0", "202 Accepted"),
			respSuccess("1", "200 OK"),
		)
	}

	client := newMockClient(t, mock)
	b := client.NewBatch()

	assert.Equal(t, 0, b.Delete("logs", "old.log"))
	assert.Equal(t, 1, b.SetAccessTier("logs", "cold.log", blobtypes.TierArchive))
	assert.Equal(t, 2, b.Len())

	results, err := b.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 202, results[0].Status)
	assert.Equal(t, 1, results[1].Index)

	// The request body embeds one HTTP request per sub-operation.
	assert.Contains(t, sentBody, "DELETE /logs/old.log HTTP/1.1")
	assert.Contains(t, sentBody, "PUT /logs/cold.log?comp=tier HTTP/1.1")
	assert.Contains(t, sentBody, "X-Ms-Access-Tier: Archive")
	assert.Contains(t, sentBody, "Content-ID: 0")
	assert.Contains(t, sentBody, "Content-ID: 1")
}

func TestBatch_Execute_PartialFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	mock.SubmitBatchFunc = func(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error) {
		return batchResponse(
			respSuccess("0", "202 Accepted"),
			respFailure("1", "404 Not Found", "BlobNotFound", "gone"),
			respSuccess("2", "202 Accepted"),
		)
	}

	client := newMockClient(t, mock)
	b := client.NewBatch()
	b.Delete("logs", "a.log")
	b.Delete("logs", "b.log")
	b.Delete("logs", "c.log")

	results, err := b.Execute(context.Background())
	require.Error(t, err)
	assert.Nil(t, results)

	batchErr, ok := errors.AsBatchError(err)
	require.True(t, ok)
	require.Len(t, batchErr.Successes, 2)
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, 1, batchErr.Failures[0].Index)
	assert.Equal(t, "BlobNotFound", batchErr.Failures[0].ErrorCode)
	assert.Equal(t, "gone", batchErr.Failures[0].Message)
}

func TestBatch_HeldValidationError(t *testing.T) {
	mock := testutil.NewMockAPI()
	client := newMockClient(t, mock)
	b := client.NewBatch()

	// The invalid addition still consumes its index, so later operations
	// keep their positions.
	assert.Equal(t, 0, b.Delete("logs", "fine.log"))
	assert.Equal(t, 1, b.Delete("NO", "bad-container.log"))
	assert.Equal(t, 2, b.Delete("logs", "also-fine.log"))

	_, err := b.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidContainerName)

	// A rejected batch never reaches the wire.
	assert.Equal(t, 0, mock.Calls("SubmitBatch"))
}

func TestBatch_Execute_Empty(t *testing.T) {
	client := newMockClient(t, testutil.NewMockAPI())

	_, err := client.NewBatch().Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))

	_, ok := errors.AsBatchError(err)
	assert.False(t, ok)
}

func TestBatch_SubConditions(t *testing.T) {
	mock := testutil.NewMockAPI()
	var sentBody string
	mock.SubmitBatchFunc = func(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error) {
		sentBody = string(body)
		return batchResponse(respSuccess("0", "202 Accepted"))
	}

	client := newMockClient(t, mock)
	b := client.NewBatch()
	b.Delete("logs", "guarded.log", WithSubConditions(&blobtypes.AccessConditions{IfMatch: `"0x1F"`}))

	_, err := b.Execute(context.Background())
	require.NoError(t, err)
	assert.Contains(t, sentBody, `If-Match: "0x1F"`)
}

func TestClient_ExecuteBatch_PrebuiltOperations(t *testing.T) {
	mock := testutil.NewMockAPI()
	mock.SubmitBatchFunc = func(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error) {
		return batchResponse(respSuccess("0", "202 Accepted"))
	}

	client := newMockClient(t, mock)

	results, err := client.ExecuteBatch(context.Background(), []blobtypes.SubOperation{
		{Index: 0, Method: "DELETE", Container: "logs", Blob: "x.log"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 202, results[0].Status)
}

func TestBatch_TransportFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	mock.SubmitBatchFunc = func(ctx context.Context, contentType string, body []byte) (string, io.ReadCloser, error) {
		return "", nil, errors.NewError("executeBatch", errors.ErrAccessDenied)
	}

	client := newMockClient(t, mock)
	b := client.NewBatch()
	b.Delete("logs", "x.log")

	_, err := b.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAccessDenied)

	// Transport failures carry no per-operation results.
	_, ok := errors.AsBatchError(err)
	assert.False(t, ok)
}
