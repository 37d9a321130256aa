// Package discovery resolves and caches OAuth 2.0 / OIDC authorization
// server metadata, from either static configuration or a one-time fetch of
// the server's discovery document.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	jose "github.com/go-jose/go-jose/v3"
)

// ErrMissingJWKSURI is returned when keys are requested but the metadata
// carries neither an inline key set nor a jwks_uri to fetch one from.
var ErrMissingJWKSURI = errors.New("metadata has no jwks_uri, cannot fetch keys")

// Resolver lazily resolves the metadata for a single authorization server.
//
// If a metadata URL is configured, the discovery document is fetched at most
// once, on first use, and merged into the cached metadata. Static
// configuration alone is also valid; the fetch is skipped entirely. The
// resolver also owns the server's key set, fetching it from jwks_uri on
// demand.
//
// A Resolver is safe for concurrent use.
type Resolver struct {
	mu sync.Mutex

	// metadataURL is cleared after one successful fetch.
	metadataURL string
	md          *ServerMetadata

	hc *http.Client
}

// ResolverOpt is an option that can configure a Resolver.
type ResolverOpt func(r *Resolver)

// WithHTTPClient sets the http.Client used for the discovery and key
// fetches. These calls are always unauthenticated. If not set,
// http.DefaultClient is used.
func WithHTTPClient(hc *http.Client) ResolverOpt {
	return func(r *Resolver) {
		r.hc = hc
	}
}

// WithStaticMetadata seeds the resolver with statically configured metadata.
// Fetched values are merged over it.
func WithStaticMetadata(md *ServerMetadata) ResolverOpt {
	return func(r *Resolver) {
		if md != nil {
			r.md.merge(md)
		}
	}
}

// NewResolver returns a Resolver for the given metadata URL. An empty URL
// means the metadata is entirely static.
func NewResolver(metadataURL string, opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		metadataURL: metadataURL,
		md:          &ServerMetadata{},
		hc:          http.DefaultClient,
	}

	for _, o := range opts {
		o(r)
	}

	return r
}

// Metadata returns the server metadata, performing the one-time discovery
// fetch if one is configured and has not happened yet. The returned value is
// the live cache, shared with later calls.
func (r *Resolver) Metadata(ctx context.Context) (*ServerMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	return r.md, nil
}

// loadLocked performs the discovery fetch once. r.mu must be held.
func (r *Resolver) loadLocked(ctx context.Context) error {
	if r.metadataURL == "" {
		return nil
	}

	fetched := &ServerMetadata{}
	if err := r.getJSON(ctx, r.metadataURL, fetched); err != nil {
		return fmt.Errorf("fetching %s: %w", r.metadataURL, err)
	}

	r.md.merge(fetched)
	// only load once
	r.metadataURL = ""

	return nil
}

// Keys returns the server's key set, fetching it from jwks_uri if it is not
// already cached.
func (r *Resolver) Keys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}

	if r.md.JWKS == nil {
		if err := r.fetchKeysLocked(ctx); err != nil {
			return nil, err
		}
	}
	return r.md.JWKS, nil
}

// Key returns the key with the given kid from the cached key set. If the kid
// is unknown, the key set is re-fetched from jwks_uri exactly once before
// giving up; rotated keys are picked up without hammering the endpoint.
func (r *Resolver) Key(ctx context.Context, kid string) (*jose.JSONWebKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}

	if r.md.JWKS != nil {
		if k := keyByID(r.md.JWKS, kid); k != nil {
			return k, nil
		}
	}

	if err := r.fetchKeysLocked(ctx); err != nil {
		return nil, err
	}

	if k := keyByID(r.md.JWKS, kid); k != nil {
		return k, nil
	}
	return nil, fmt.Errorf("key %s not found", kid)
}

// fetchKeysLocked fetches jwks_uri and replaces the cached key set. r.mu
// must be held.
func (r *Resolver) fetchKeysLocked(ctx context.Context) error {
	if r.md.JWKSURI == "" {
		return ErrMissingJWKSURI
	}

	ks := &jose.JSONWebKeySet{}
	if err := r.getJSON(ctx, r.md.JWKSURI, ks); err != nil {
		return fmt.Errorf("fetching keys from %s: %w", r.md.JWKSURI, err)
	}

	r.md.JWKS = ks
	return nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %s", res.Status)
	}

	return json.NewDecoder(res.Body).Decode(into)
}

func keyByID(ks *jose.JSONWebKeySet, kid string) *jose.JSONWebKey {
	for i, k := range ks.Keys {
		if k.KeyID == kid {
			return &ks.Keys[i]
		}
	}
	return nil
}
