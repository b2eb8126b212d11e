package restapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/checksum"
	"github.com/PositiveExperienceLLC/blobclient/internal/manifest"
)

// serviceVersion is the protocol version sent with every request.
const serviceVersion = "2021-12-02"

// Config holds the wiring for the default wire client.
type Config struct {
	// Endpoint is the service base URL, e.g. "https://acct.example.net".
	Endpoint string

	// Credential signs outgoing requests. Nil means anonymous.
	Credential blobtypes.Credential

	// MaxRetries bounds transport-level retries for retriable failures.
	MaxRetries int

	// Timeout applies per request. Zero means no timeout.
	Timeout time.Duration

	// HTTPClient optionally overrides the underlying HTTP client.
	HTTPClient *http.Client

	// Logger receives debug logs for every wire request.
	Logger log.Logger
}

// Client is the retryablehttp-backed implementation of API.
//
// Retries are delegated entirely to retryablehttp: transport and 5xx
// failures are retried with backoff, everything the client can classify
// (4xx, protocol errors, checksum mismatches) is surfaced immediately.
type Client struct {
	base     *url.URL
	cred     blobtypes.Credential
	http     *retryablehttp.Client
	logger   log.Logger
	requests atomic.Int64
}

// NewClient creates a wire client for the given endpoint.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.NewError("newClient", errors.ErrInvalidInput).
			WithMessage("invalid endpoint: " + err.Error())
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.NewError("newClient", errors.ErrInvalidInput).
			WithMessage("endpoint must be an absolute URL")
	}

	cred := cfg.Credential
	if cred == nil {
		cred = blobtypes.AnonymousCredential{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = cfg.MaxRetries
	if cfg.HTTPClient != nil {
		rc.HTTPClient = cfg.HTTPClient
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}

	return &Client{
		base:   base,
		cred:   cred,
		http:   rc,
		logger: logger,
	}, nil
}

// RequestCount returns the number of wire requests issued so far.
func (c *Client) RequestCount() int64 {
	return c.requests.Load()
}

// BuildURL constructs the absolute URL for a container/blob pair. Exposed
// for the batch builder, which embeds fully formed sub-request URLs.
func (c *Client) BuildURL(container, blob string, query url.Values) *url.URL {
	u := *c.base
	p := strings.TrimSuffix(u.Path, "/")
	if container != "" {
		p += "/" + container
	}
	if blob != "" {
		p += "/" + blob
	}
	if p == "" {
		p = "/"
	}
	u.Path = p
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return &u
}

// Credential returns the client's outer credential.
func (c *Client) Credential() blobtypes.Credential {
	return c.cred
}

func (c *Client) newRequest(
	ctx context.Context,
	method, container, blob string,
	query url.Values,
	body []byte,
) (*retryablehttp.Request, error) {
	u := c.BuildURL(container, blob, query)

	var rdr io.ReadSeeker
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, errors.NewError("newRequest", err)
	}
	req.Header.Set("x-ms-version", serviceVersion)
	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	return req, nil
}

func (c *Client) do(op string, req *retryablehttp.Request, want ...int) (*http.Response, error) {
	if err := c.cred.Sign(req.Request); err != nil {
		return nil, errors.NewError(op, err).WithMessage("signing request")
	}

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewError(op, err)
	}

	c.logger.Debugf("blob: %s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)

	for _, w := range want {
		if resp.StatusCode == w {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	return nil, c.serviceError(op, resp)
}

// serviceErrorXML mirrors the service's error body.
type serviceErrorXML struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// serviceError decodes a non-success response into a sentinel-wrapped error.
func (c *Client) serviceError(op string, resp *http.Response) error {
	code := resp.Header.Get("x-ms-error-code")
	message := ""

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed serviceErrorXML
	if err := xml.Unmarshal(body, &parsed); err == nil {
		if code == "" {
			code = parsed.Code
		}
		message = parsed.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	sentinel := mapServiceError(resp.StatusCode, code)
	return errors.NewError(op, sentinel).
		WithMessage(fmt.Sprintf("%s (status %d): %s", code, resp.StatusCode, message))
}

// mapServiceError maps a status code and symbolic error code to a sentinel.
func mapServiceError(status int, code string) error {
	switch code {
	case "ContainerNotFound":
		return errors.ErrContainerNotFound
	case "BlobNotFound":
		return errors.ErrBlobNotFound
	}
	switch status {
	case http.StatusNotFound:
		return errors.ErrBlobNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return errors.ErrAccessDenied
	case http.StatusPreconditionFailed, http.StatusNotModified:
		return errors.ErrPreconditionFailed
	case http.StatusConflict:
		return errors.ErrConflict
	case http.StatusRequestedRangeNotSatisfiable:
		return errors.ErrInvalidRange
	case http.StatusTooManyRequests:
		return errors.ErrTooManyRequests
	case http.StatusBadRequest:
		return errors.ErrInvalidInput
	default:
		return fmt.Errorf("blob: unexpected status %d", status)
	}
}

// applyConditions translates access conditions into conditional headers.
func applyConditions(h http.Header, cond *blobtypes.AccessConditions) {
	if cond.IsZero() {
		return
	}
	if cond.IfMatch != "" {
		h.Set("If-Match", cond.IfMatch)
	}
	if cond.IfNoneMatch != "" {
		h.Set("If-None-Match", cond.IfNoneMatch)
	}
	if !cond.IfModifiedSince.IsZero() {
		h.Set("If-Modified-Since", cond.IfModifiedSince.UTC().Format(http.TimeFormat))
	}
	if !cond.IfUnmodifiedSince.IsZero() {
		h.Set("If-Unmodified-Since", cond.IfUnmodifiedSince.UTC().Format(http.TimeFormat))
	}
	if cond.MaxSize > 0 {
		h.Set("x-ms-blob-condition-maxsize", strconv.FormatInt(cond.MaxSize, 10))
	}
}

// applyBlobHeaders sets the content property headers for a write.
func applyBlobHeaders(h http.Header, hdr blobtypes.BlobHeaders) {
	if hdr.ContentType != "" {
		h.Set("x-ms-blob-content-type", hdr.ContentType)
	}
	if len(hdr.ContentMD5) > 0 {
		h.Set("x-ms-blob-content-md5", checksum.Encode(hdr.ContentMD5))
	}
	if hdr.Tier != "" {
		h.Set("x-ms-access-tier", string(hdr.Tier))
	}
	for k, v := range hdr.Metadata {
		h.Set("x-ms-meta-"+k, v)
	}
}

// propsFromHeaders decodes blob properties from response headers.
func propsFromHeaders(h http.Header) *blobtypes.BlobProperties {
	props := &blobtypes.BlobProperties{
		ContentType: h.Get("Content-Type"),
		ETag:        h.Get("ETag"),
		AccessTier:  blobtypes.AccessTier(h.Get("x-ms-access-tier")),
	}

	// For ranged responses the total size travels in Content-Range.
	if cr := h.Get("Content-Range"); cr != "" {
		if i := strings.LastIndex(cr, "/"); i >= 0 {
			props.ContentLength, _ = strconv.ParseInt(cr[i+1:], 10, 64)
		}
	} else if cl := h.Get("Content-Length"); cl != "" {
		props.ContentLength, _ = strconv.ParseInt(cl, 10, 64)
	}

	if lm := h.Get("Last-Modified"); lm != "" {
		props.LastModified, _ = time.Parse(http.TimeFormat, lm)
	}
	if md5 := h.Get("Content-MD5"); md5 != "" {
		props.ContentMD5, _ = base64.StdEncoding.DecodeString(md5)
	}
	if bc := h.Get("x-ms-blob-committed-block-count"); bc != "" {
		props.BlockCount, _ = strconv.Atoi(bc)
	}

	// Header canonicalization mangles metadata key case in transit
	// (x-ms-meta-author arrives as X-Ms-Meta-Author), so keys are
	// recovered lowercase.
	for k, vals := range h {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "x-ms-meta-") && len(vals) > 0 {
			if props.Metadata == nil {
				props.Metadata = make(map[string]string)
			}
			props.Metadata[lower[len("x-ms-meta-"):]] = vals[0]
		}
	}
	return props
}

func putResultFromResponse(resp *http.Response) *blobtypes.PutResult {
	result := &blobtypes.PutResult{
		ETag:      resp.Header.Get("ETag"),
		RequestID: resp.Header.Get("x-ms-request-id"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		result.LastModified, _ = time.Parse(http.TimeFormat, lm)
	}
	if md5 := resp.Header.Get("Content-MD5"); md5 != "" {
		result.ContentMD5, _ = base64.StdEncoding.DecodeString(md5)
	}
	return result
}

// Upload implements API.
func (c *Client) Upload(
	ctx context.Context,
	container, blob string,
	body []byte,
	hdr blobtypes.BlobHeaders,
	cond *blobtypes.AccessConditions,
) (*blobtypes.PutResult, error) {
	req, err := c.newRequest(ctx, http.MethodPut, container, blob, nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	if hdr.ContentType != "" {
		req.Header.Set("Content-Type", hdr.ContentType)
	}
	if len(hdr.ContentMD5) > 0 {
		req.Header.Set("Content-MD5", checksum.Encode(hdr.ContentMD5))
	}
	if hdr.Tier != "" {
		req.Header.Set("x-ms-access-tier", string(hdr.Tier))
	}
	for k, v := range hdr.Metadata {
		req.Header.Set("x-ms-meta-"+k, v)
	}
	applyConditions(req.Header, cond)

	resp, err := c.do("upload", req, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return putResultFromResponse(resp), nil
}

// StageBlock implements API. When a checksum is supplied it is transmitted
// with the block, and an echoed digest that disagrees with the transmitted
// one is a data-integrity error surfaced immediately, never retried.
func (c *Client) StageBlock(
	ctx context.Context,
	container, blob, blockID string,
	body []byte,
	sum *blobtypes.Checksum,
) error {
	query := url.Values{}
	query.Set("comp", "block")
	query.Set("blockid", blockID)

	req, err := c.newRequest(ctx, http.MethodPut, container, blob, query, body)
	if err != nil {
		return err
	}
	var sentDigest string
	if sum != nil && len(sum.Value) > 0 {
		sentDigest = checksum.Encode(sum.Value)
		req.Header.Set(checksum.HeaderName(sum.Algorithm), sentDigest)
	}

	resp, err := c.do("stageBlock", req, http.StatusCreated)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if sum != nil {
		if echoed := resp.Header.Get(checksum.HeaderName(sum.Algorithm)); echoed != "" && echoed != sentDigest {
			return errors.NewBlobError("stageBlock", container, blob, errors.ErrChecksumMismatch).
				WithMessage(fmt.Sprintf("block %s: sent %s, service echoed %s", blockID, sentDigest, echoed))
		}
	}
	return nil
}

// CommitBlockList implements API.
func (c *Client) CommitBlockList(
	ctx context.Context,
	container, blob string,
	refs []blobtypes.BlockRef,
	hdr blobtypes.BlobHeaders,
	cond *blobtypes.AccessConditions,
) (*blobtypes.PutResult, error) {
	body, err := manifest.MarshalRefs(refs)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("comp", "blocklist")

	req, err := c.newRequest(ctx, http.MethodPut, container, blob, query, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml")
	applyBlobHeaders(req.Header, hdr)
	applyConditions(req.Header, cond)

	resp, err := c.do("commitBlockList", req, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return putResultFromResponse(resp), nil
}

// GetBlockList implements API.
func (c *Client) GetBlockList(
	ctx context.Context,
	container, blob string,
	listType blobtypes.BlockListType,
) (*blobtypes.BlockList, error) {
	query := url.Values{}
	query.Set("comp", "blocklist")
	query.Set("blocklisttype", string(listType))

	req, err := c.newRequest(ctx, http.MethodGet, container, blob, query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do("getBlockList", req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return manifest.ParseBlockList(resp.Body)
}

// Download implements API.
func (c *Client) Download(
	ctx context.Context,
	container, blob string,
	offset, length int64,
	cond *blobtypes.AccessConditions,
) (io.ReadCloser, *blobtypes.BlobProperties, error) {
	req, err := c.newRequest(ctx, http.MethodGet, container, blob, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if offset > 0 || length > 0 {
		if length > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
	}
	applyConditions(req.Header, cond)

	resp, err := c.do("download", req, http.StatusOK, http.StatusPartialContent)
	if err != nil {
		return nil, nil, err
	}
	return resp.Body, propsFromHeaders(resp.Header), nil
}

// GetProperties implements API.
func (c *Client) GetProperties(
	ctx context.Context,
	container, blob string,
	cond *blobtypes.AccessConditions,
) (*blobtypes.BlobProperties, error) {
	req, err := c.newRequest(ctx, http.MethodHead, container, blob, nil, nil)
	if err != nil {
		return nil, err
	}
	applyConditions(req.Header, cond)

	resp, err := c.do("getProperties", req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return propsFromHeaders(resp.Header), nil
}

// Delete implements API.
func (c *Client) Delete(
	ctx context.Context,
	container, blob string,
	cond *blobtypes.AccessConditions,
) error {
	req, err := c.newRequest(ctx, http.MethodDelete, container, blob, nil, nil)
	if err != nil {
		return err
	}
	applyConditions(req.Header, cond)

	resp, err := c.do("delete", req, http.StatusAccepted)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// SetAccessTier implements API.
func (c *Client) SetAccessTier(
	ctx context.Context,
	container, blob string,
	tier blobtypes.AccessTier,
) error {
	query := url.Values{}
	query.Set("comp", "tier")

	req, err := c.newRequest(ctx, http.MethodPut, container, blob, query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-ms-access-tier", string(tier))

	// Archive rehydration is acknowledged with 202 instead of 200.
	resp, err := c.do("setAccessTier", req, http.StatusOK, http.StatusAccepted)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// SubmitBatch implements API. The uber request itself can fail
// independently of any sub-operation; such failures surface here as plain
// service errors because no sub-operation indices exist to report.
func (c *Client) SubmitBatch(
	ctx context.Context,
	contentType string,
	body []byte,
) (string, io.ReadCloser, error) {
	query := url.Values{}
	query.Set("comp", "batch")

	req, err := c.newRequest(ctx, http.MethodPost, "", "", query, body)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do("executeBatch", req, http.StatusAccepted)
	if err != nil {
		return "", nil, err
	}
	return resp.Header.Get("Content-Type"), resp.Body, nil
}
