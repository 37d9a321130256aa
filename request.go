package oauthclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type requestCfg struct {
	token         *Token
	inbound       *http.Request
	withholdToken bool
	header        http.Header
}

// RequestOption customizes a single request made through the client.
type RequestOption func(*requestCfg)

// WithToken authenticates the request with an explicit token, skipping the
// FetchToken hook.
func WithToken(t *Token) RequestOption {
	return func(cfg *requestCfg) {
		cfg.token = t
	}
}

// WithInboundRequest passes the request currently being served to the
// FetchToken hook, for frameworks that resolve tokens from the session.
func WithInboundRequest(r *http.Request) RequestOption {
	return func(cfg *requestCfg) {
		cfg.inbound = r
	}
}

// WithholdToken performs the call with no token at all. No resolution is
// attempted, for public endpoints like discovery documents.
func WithholdToken() RequestOption {
	return func(cfg *requestCfg) {
		cfg.withholdToken = true
	}
}

// WithHeader adds a header to the outgoing request.
func WithHeader(key, value string) RequestOption {
	return func(cfg *requestCfg) {
		cfg.header.Add(key, value)
	}
}

// Request performs an HTTP call against the provider's API, attaching the
// current token. Relative URLs are resolved against the configured
// APIBaseURL. The token is taken from WithToken if given, otherwise from the
// FetchToken hook; if neither yields one the call fails with ErrMissingToken
// before anything is sent.
func (c *Client) Request(ctx context.Context, method, rawurl string, body io.Reader, opts ...RequestOption) (*http.Response, error) {
	cfg := &requestCfg{header: http.Header{}}
	for _, o := range opts {
		o(cfg)
	}

	u := c.resolveURL(rawurl)

	if cfg.withholdToken {
		return c.send(ctx, method, u, body, cfg.header, nil)
	}

	token := cfg.token
	if token == nil && c.cfg.FetchToken != nil {
		t, err := c.cfg.FetchToken(ctx, cfg.inbound)
		if err != nil {
			return nil, fmt.Errorf("resolving token: %w", err)
		}
		token = t
	}
	if token == nil {
		return nil, ErrMissingToken
	}

	return c.send(ctx, method, u, body, cfg.header, token)
}

// Get performs an authenticated GET through Request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, url, nil, opts...)
}

// Post performs an authenticated POST through Request.
func (c *Client) Post(ctx context.Context, url string, body io.Reader, opts ...RequestOption) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, url, body, opts...)
}

func (c *Client) send(ctx context.Context, method, u string, body io.Reader, header http.Header, token *Token) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}

	hc := c.hc
	if token != nil {
		if c.isOAuth1() {
			// OAuth 1 credentials can't ride in a bearer header, the
			// request has to be signed.
			hc = c.oauth1HTTPClient(ctx, token)
		} else {
			req.Header.Set("Authorization", token.Type()+" "+token.AccessToken)
		}
	}

	return hc.Do(req)
}

// resolveURL resolves rawurl against APIBaseURL, unless it is already
// absolute.
func (c *Client) resolveURL(rawurl string) string {
	if c.cfg.APIBaseURL == "" ||
		strings.HasPrefix(rawurl, "https://") || strings.HasPrefix(rawurl, "http://") {
		return rawurl
	}

	base, err := url.Parse(c.cfg.APIBaseURL)
	if err != nil {
		return rawurl
	}
	ref, err := url.Parse(rawurl)
	if err != nil {
		return rawurl
	}
	return base.ResolveReference(ref).String()
}
