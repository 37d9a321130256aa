package oauthclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pardot/oauthclient/discovery"
	xoauth2 "golang.org/x/oauth2"
)

var (
	// ErrMissingAuthorizeURL indicates no authorization endpoint was
	// configured statically, and none was found in the server metadata.
	ErrMissingAuthorizeURL = errors.New("oauthclient: missing authorization endpoint")
	// ErrMissingTokenEndpoint indicates no token endpoint was configured
	// statically, and none was found in the server metadata.
	ErrMissingTokenEndpoint = errors.New("oauthclient: missing token endpoint")
	// ErrMissingRequestToken indicates an OAuth 1 access token exchange was
	// attempted without the request token issued when the authorization URL
	// was created.
	ErrMissingRequestToken = errors.New("oauthclient: missing request token")
	// ErrMissingToken indicates an authenticated request was attempted, but
	// no token was passed explicitly and none could be resolved.
	ErrMissingToken = errors.New("oauthclient: missing token")
	// ErrMissingUserinfoEndpoint indicates the server metadata has no
	// userinfo_endpoint.
	ErrMissingUserinfoEndpoint = errors.New("oauthclient: metadata has no userinfo_endpoint")

	// ErrMissingJWKSURI indicates keys were needed, but the server metadata
	// has neither an inline key set nor a jwks_uri.
	ErrMissingJWKSURI = discovery.ErrMissingJWKSURI
)

// StateMismatchError indicates the state parameter echoed on the callback
// did not match the state persisted when the authorization URL was created.
type StateMismatchError struct {
	Expected string
	Got      string
}

func (s *StateMismatchError) Error() string {
	return fmt.Sprintf("oauthclient: state mismatch, expected %q got %q", s.Expected, s.Got)
}

// InvalidIDTokenError indicates an ID token failed verification. This covers
// signature failures, disallowed signing algorithms and claim validation
// failures alike.
type InvalidIDTokenError struct {
	Reason string
	Cause  error
}

func (e *InvalidIDTokenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oauthclient: invalid id_token: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("oauthclient: invalid id_token: %s", e.Reason)
}

func (e *InvalidIDTokenError) Unwrap() error {
	return e.Cause
}

// HTTPError indicates a generic HTTP error occurred during an interaction. It
// exposes details about the returned response, as well as the original error
type HTTPError struct {
	Response *http.Response
	Body     []byte
	Cause    error
}

func (h *HTTPError) Error() string {
	return fmt.Sprintf("http status %s: %s", h.Response.Status, string(h.Body))
}

func (h *HTTPError) Unwrap() error {
	return h.Cause
}

// TokenError is an error response from a token endpoint, as described in
// https://tools.ietf.org/html/rfc6749#section-5.2
type TokenError struct {
	ErrorCode       string `json:"error"`
	Description     string `json:"error_description,omitempty"`
	ErrorURI        string `json:"error_uri,omitempty"`
	WWWAuthenticate string `json:"-"`
}

func (t *TokenError) Error() string {
	if t.Description != "" {
		return fmt.Sprintf("%s: %s", t.ErrorCode, t.Description)
	}
	return t.ErrorCode
}

// parseExchangeError takes an error returned from an oauth2 Exchange call,
// and returns the first match of:
// * a TokenError if the response was 400 or 401, and contains a correctly
// formatted response in the body
// * a HTTPError if a general HTTP error response was returned
// * A generic error for all other errors
func parseExchangeError(err error) error {
	var rerr *xoauth2.RetrieveError
	if errors.As(err, &rerr) {
		// set this up as the default case if we can't handle the error more intelligently
		herr := HTTPError{
			Response: rerr.Response,
			Body:     rerr.Body,
			// ignore cause to not make x/oauth2 part of the contract
		}

		if rerr.Response.StatusCode == 400 || rerr.Response.StatusCode == 401 {
			// this should be a token error. Try and parse, else fall back to a http error
			terr := TokenError{}
			if err := json.Unmarshal(rerr.Body, &terr); err != nil {
				// not formatted correctly/non-standard, treat as HTTP
				return &herr
			}
			terr.WWWAuthenticate = rerr.Response.Header.Get("www-authenticate")
			return &terr
		}
		return &herr
	}
	return fmt.Errorf("error exchanging token: %v", err)
}
