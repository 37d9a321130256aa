package oauthclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
)

// AuthorizationRequestState is the per-flow state persisted across the
// redirect round trip. It is created when the authorization URL is built and
// consumed when the callback is processed.
type AuthorizationRequestState struct {
	State        string
	Nonce        string
	RedirectURI  string
	RequestToken *RequestToken
}

// StateStore persists AuthorizationRequestState across the redirect round
// trip, keyed by an opaque per-flow identifier. Implementations typically
// back onto the framework's session.
type StateStore interface {
	Save(ctx context.Context, key string, state *AuthorizationRequestState) error
	// Load returns (nil, nil) when no state exists for key.
	Load(ctx context.Context, key string) (*AuthorizationRequestState, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStateStore is an in-process StateStore, suitable for tests and
// single-instance servers.
type MemoryStateStore struct {
	mu sync.Mutex
	m  map[string]*AuthorizationRequestState
}

var _ StateStore = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{m: map[string]*AuthorizationRequestState{}}
}

func (s *MemoryStateStore) Save(_ context.Context, key string, state *AuthorizationRequestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = state
	return nil
}

func (s *MemoryStateStore) Load(_ context.Context, key string) (*AuthorizationRequestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *MemoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// stateKey is the per-flow identifier state is stored under: the request
// token for OAuth 1, the state parameter for OAuth 2. Both come back on the
// provider's callback.
func stateKey(ar *AuthorizationRequest) string {
	if ar.RequestToken != nil {
		return ar.RequestToken.Token
	}
	return ar.State
}

// AuthorizeRedirect creates the authorization URL, persists the round-trip
// state in store, and redirects the user to the provider.
func (c *Client) AuthorizeRedirect(w http.ResponseWriter, r *http.Request, store StateStore, redirectURI string, params url.Values) error {
	ctx := r.Context()

	ar, err := c.CreateAuthorizationURL(ctx, redirectURI, params)
	if err != nil {
		return err
	}

	st := &AuthorizationRequestState{
		State:        ar.State,
		Nonce:        ar.Nonce,
		RedirectURI:  ar.RedirectURI,
		RequestToken: ar.RequestToken,
	}
	if err := store.Save(ctx, stateKey(ar), st); err != nil {
		return err
	}

	http.Redirect(w, r, ar.URL, http.StatusFound)
	return nil
}

// AuthorizeAccessToken processes the provider's callback request: it loads
// and invalidates the persisted round-trip state, exchanges the callback
// parameters for a token, and verifies the ID token when one was issued.
// The returned claims are nil for non-OIDC providers.
func (c *Client) AuthorizeAccessToken(r *http.Request, store StateStore) (*Token, *Claims, error) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		return nil, nil, &TokenError{ErrorCode: e, Description: q.Get("error_description")}
	}

	key := q.Get("state")
	if c.isOAuth1() {
		key = q.Get("oauth_token")
	}

	st, err := store.Load(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if st == nil {
		if c.isOAuth1() {
			return nil, nil, ErrMissingRequestToken
		}
		return nil, nil, &StateMismatchError{Got: q.Get("state")}
	}
	// state is single use
	_ = store.Delete(ctx, key)

	tok, err := c.FetchAccessToken(ctx, &TokenRequest{
		RedirectURI:  st.RedirectURI,
		Params:       q,
		State:        st.State,
		RequestToken: st.RequestToken,
	})
	if err != nil {
		return nil, nil, err
	}

	claims, err := c.ParseIDToken(ctx, tok, WithNonce(st.Nonce))
	if err != nil {
		return nil, nil, err
	}

	return tok, claims, nil
}
