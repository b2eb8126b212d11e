// Package batch implements the batch execution pipeline: serializing
// independent sub-operations into one multipart request, demultiplexing
// the multipart response, and aggregating per-operation outcomes.
//
// The pipeline shares nothing with the transfer engine except the wire
// transport: one batch is exactly one request and one response.
package batch

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// Builder serializes sub-operations into a single multipart/mixed body.
// Each sub-operation becomes one part holding a fully formed embedded HTTP
// request, signed with its own credential when one is set.
type Builder struct {
	endpoint  *url.URL
	outerCred blobtypes.Credential
	boundary  string
}

// NewBuilder creates a builder for the given service endpoint. outerCred
// is the fallback credential for sub-operations that carry none.
func NewBuilder(endpoint *url.URL, outerCred blobtypes.Credential) *Builder {
	if outerCred == nil {
		outerCred = blobtypes.AnonymousCredential{}
	}
	return &Builder{
		endpoint:  endpoint,
		outerCred: outerCred,
		boundary:  "batch_" + uuid.NewString(),
	}
}

// ContentType returns the multipart content type of the built body,
// including the boundary token.
func (b *Builder) ContentType() string {
	return "multipart/mixed; boundary=" + b.boundary
}

// Build serializes the sub-operations in index order. An empty batch is
// rejected with a plain (non-aggregate) error: the service would reject
// the uber request itself, and no sub-operation indices exist to report.
func (b *Builder) Build(subs []blobtypes.SubOperation) ([]byte, error) {
	if len(subs) == 0 {
		return nil, errors.NewError("executeBatch", errors.ErrInvalidInput).
			WithMessage("batch must contain at least one sub-operation")
	}
	if len(subs) > blobtypes.MaxBatchOperations {
		return nil, errors.NewError("executeBatch", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("batch holds %d sub-operations, limit is %d", len(subs), blobtypes.MaxBatchOperations))
	}

	ordered := make([]blobtypes.SubOperation, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var buf bytes.Buffer
	for _, op := range ordered {
		if err := b.writePart(&buf, op); err != nil {
			return nil, err
		}
	}
	buf.WriteString("--" + b.boundary + "--\r\n")
	return buf.Bytes(), nil
}

// writePart appends one boundary-delimited part containing the embedded
// sub-request.
func (b *Builder) writePart(buf *bytes.Buffer, op blobtypes.SubOperation) error {
	req, err := b.buildSubRequest(op)
	if err != nil {
		return err
	}

	buf.WriteString("--" + b.boundary + "\r\n")
	buf.WriteString("Content-Type: application/http\r\n")
	buf.WriteString("Content-Transfer-Encoding: binary\r\n")
	fmt.Fprintf(buf, "Content-ID: %d\r\n", op.Index)
	buf.WriteString("\r\n")

	fmt.Fprintf(buf, "%s %s HTTP/1.1\r\n", req.Method, req.URL.RequestURI())
	fmt.Fprintf(buf, "Host: %s\r\n", req.URL.Host)
	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range req.Header[k] {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	fmt.Fprintf(buf, "Content-Length: %d\r\n", len(op.Body))
	buf.WriteString("\r\n")
	if len(op.Body) > 0 {
		buf.Write(op.Body)
		buf.WriteString("\r\n")
	}
	return nil
}

// buildSubRequest constructs and signs the embedded request for one
// sub-operation. The per-operation credential, when present, is applied
// here at build time, independent of the uber request's credential.
func (b *Builder) buildSubRequest(op blobtypes.SubOperation) (*http.Request, error) {
	u := b.subURL(op)
	req, err := http.NewRequest(op.Method, u.String(), nil)
	if err != nil {
		return nil, errors.NewBlobError("executeBatch", op.Container, op.Blob, err)
	}
	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	for k, v := range op.Headers {
		req.Header.Set(k, v)
	}

	cred := op.Credential
	if cred == nil {
		cred = b.outerCred
	}
	if err := cred.Sign(req); err != nil {
		return nil, errors.NewBlobError("executeBatch", op.Container, op.Blob, err).
			WithMessage(fmt.Sprintf("signing sub-operation %d", op.Index))
	}
	return req, nil
}

func (b *Builder) subURL(op blobtypes.SubOperation) *url.URL {
	u := *b.endpoint
	p := strings.TrimSuffix(u.Path, "/")
	if op.Container != "" {
		p += "/" + op.Container
	}
	if op.Blob != "" {
		p += "/" + op.Blob
	}
	if p == "" {
		p = "/"
	}
	u.Path = p
	if len(op.Query) > 0 {
		q := url.Values{}
		for k, v := range op.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return &u
}
