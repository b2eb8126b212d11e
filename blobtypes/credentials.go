package blobtypes

import (
	"errors"
	"net/http"
	"strings"
)

// Credential signs an outgoing request. The signing subsystem itself
// (shared-key signature math, token issuance) lives outside this module;
// the client only needs a way to apply a credential to a request, and a
// batch sub-operation may carry a credential distinct from the outer
// request's.
type Credential interface {
	// Sign applies authentication to the request, mutating its headers
	// and/or query string.
	Sign(req *http.Request) error
}

// AnonymousCredential performs no signing. Useful against public
// containers and in tests.
type AnonymousCredential struct{}

// Sign implements Credential as a no-op.
func (AnonymousCredential) Sign(*http.Request) error { return nil }

// SASCredential authenticates requests with a shared-access-signature
// token appended to the query string.
type SASCredential struct {
	token string
}

// NewSASCredential creates a credential from a SAS token. A leading "?"
// is tolerated and stripped.
func NewSASCredential(token string) (*SASCredential, error) {
	token = strings.TrimPrefix(token, "?")
	if token == "" {
		return nil, errors.New("blobtypes: SAS token cannot be empty")
	}
	return &SASCredential{token: token}, nil
}

// Sign appends the SAS token to the request's query string.
func (c *SASCredential) Sign(req *http.Request) error {
	if req.URL.RawQuery == "" {
		req.URL.RawQuery = c.token
	} else {
		req.URL.RawQuery += "&" + c.token
	}
	return nil
}
