package blobclient

import (
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
	"github.com/PositiveExperienceLLC/blobclient/internal/restapi"
	"github.com/PositiveExperienceLLC/blobclient/internal/transfer"
	"github.com/PositiveExperienceLLC/blobclient/internal/validation"
)

// DefaultContentType is applied when no content type is set or detected.
const DefaultContentType = "application/octet-stream"

// defaultMaxRetries bounds transport-level retries unless overridden.
const defaultMaxRetries = 3

// Client is the entry point for blob operations. It wraps the wire client
// with the chunked transfer engine and the batch pipeline.
//
// A Client is safe for concurrent use.
type Client struct {
	api      restapi.API
	wire     *restapi.Client
	endpoint *url.URL
	cred     blobtypes.Credential
	cfg      blobtypes.ClientConfig
	sched    *transfer.Scheduler
	fs       fs.Filesystem
	logger   log.Logger
}

// New creates a Client for the given service endpoint. The credential may
// be nil for anonymous access.
//
// Example:
//
//	client, err := blobclient.New("https://acct.blob.example.net",
//	    blobclient.MustSASCredential(token),
//	    blobclient.WithConcurrency(4),
//	    blobclient.WithMaxRetries(5),
//	)
func New(endpoint string, cred blobtypes.Credential, opts ...blobtypes.Option) (*Client, error) {
	cfg := blobtypes.ClientConfig{
		Endpoint:   endpoint,
		Credential: cred,
		MaxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	wire, err := restapi.NewClient(restapi.Config{
		Endpoint:   cfg.Endpoint,
		Credential: cfg.Credential,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.CustomHTTPClient,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	// Endpoint was validated by the wire client.
	base, _ := url.Parse(cfg.Endpoint)
	return newClient(wire, wire, base, cfg), nil
}

// newClient wires a Client around an API implementation. Tests inject a
// mock API here; production traffic goes through the wire client.
func newClient(api restapi.API, wire *restapi.Client, endpoint *url.URL, cfg blobtypes.ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = billy.NewOSFS("/")
	}
	cred := cfg.Credential
	if cred == nil {
		cred = blobtypes.AnonymousCredential{}
	}

	return &Client{
		api:      api,
		wire:     wire,
		endpoint: endpoint,
		cred:     cred,
		cfg:      cfg,
		sched:    transfer.NewScheduler(api, logger),
		fs:       filesystem,
		logger:   logger,
	}
}

// SetFilesystem replaces the filesystem used for file operations.
func (c *Client) SetFilesystem(filesystem fs.Filesystem) {
	c.fs = filesystem
}

// RequestCount returns the number of wire requests issued by this client.
// Zero when a custom API implementation is injected.
func (c *Client) RequestCount() int64 {
	if c.wire == nil {
		return 0
	}
	return c.wire.RequestCount()
}

// MustSASCredential creates a shared-access-signature credential and
// panics on an invalid token. For the error-returning form use
// blobtypes.NewSASCredential.
func MustSASCredential(token string) *blobtypes.SASCredential {
	cred, err := blobtypes.NewSASCredential(token)
	if err != nil {
		panic(err)
	}
	return cred
}

// validateTarget checks a container/blob pair before any network call.
func validateTarget(op, container, blob string) error {
	if err := validation.ValidateContainerName(container); err != nil {
		return errors.NewBlobError(op, container, blob, err)
	}
	if err := validation.ValidateBlobName(blob); err != nil {
		return errors.NewBlobError(op, container, blob, err)
	}
	return nil
}

// detectContentType determines the content type of a local file, sniffing
// its leading bytes where possible and falling back to extension lookup.
func (c *Client) detectContentType(path string) string {
	info, err := c.fs.Stat(path)
	if err != nil || info.IsDir() {
		return detectContentTypeFromExtension(path)
	}

	file, err := c.fs.Open(path)
	if err != nil {
		return detectContentTypeFromExtension(path)
	}
	defer file.Close() //nolint:errcheck

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil {
			return mt.String()
		}
	}
	return detectContentTypeFromExtension(path)
}

func detectContentTypeFromExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return DefaultContentType
}
