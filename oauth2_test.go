package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestCreateAuthorizationURL(t *testing.T) {
	ctx := context.Background()

	c := New(Config{
		ClientID:     "cid",
		AuthorizeURL: "https://idp/authorize",
	})

	ar, err := c.CreateAuthorizationURL(ctx, "https://app/cb", nil)
	if err != nil {
		t.Fatalf("creating authorization url: %v", err)
	}

	u, err := url.Parse(ar.URL)
	if err != nil {
		t.Fatal(err)
	}

	q := u.Query()
	if got := q.Get("client_id"); got != "cid" {
		t.Errorf("want client_id cid, got: %s", got)
	}
	if got := q.Get("redirect_uri"); got != "https://app/cb" {
		t.Errorf("want redirect_uri https://app/cb, got: %s", got)
	}
	if ar.State == "" || q.Get("state") != ar.State {
		t.Errorf("want generated state %q in url, got: %s", ar.State, q.Get("state"))
	}
}

func TestCreateAuthorizationURLNonce(t *testing.T) {
	ctx := context.Background()

	c := New(Config{
		ClientID:     "cid",
		AuthorizeURL: "https://idp/authorize",
		Scopes:       []string{"openid"},
	})

	ar, err := c.CreateAuthorizationURL(ctx, "https://app/cb", nil)
	if err != nil {
		t.Fatalf("creating authorization url: %v", err)
	}

	u, err := url.Parse(ar.URL)
	if err != nil {
		t.Fatal(err)
	}
	if ar.Nonce == "" || u.Query().Get("nonce") != ar.Nonce {
		t.Errorf("want generated nonce %q in url, got: %s", ar.Nonce, u.Query().Get("nonce"))
	}
}

func TestCreateAuthorizationURLParamsMerged(t *testing.T) {
	ctx := context.Background()

	c := New(Config{
		ClientID:        "cid",
		AuthorizeURL:    "https://idp/authorize",
		AuthorizeParams: url.Values{"audience": []string{"api"}, "prompt": []string{"none"}},
	})

	ar, err := c.CreateAuthorizationURL(ctx, "https://app/cb", url.Values{"prompt": []string{"login"}})
	if err != nil {
		t.Fatalf("creating authorization url: %v", err)
	}

	u, err := url.Parse(ar.URL)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if got := q.Get("audience"); got != "api" {
		t.Errorf("want configured audience api, got: %s", got)
	}
	// caller params win over configured defaults
	if got := q.Get("prompt"); got != "login" {
		t.Errorf("want prompt login, got: %s", got)
	}
}

func TestCreateAuthorizationURLMissingEndpoint(t *testing.T) {
	ctx := context.Background()

	c := New(Config{ClientID: "cid"})

	_, err := c.CreateAuthorizationURL(ctx, "https://app/cb", nil)
	if !errors.Is(err, ErrMissingAuthorizeURL) {
		t.Fatalf("wanted ErrMissingAuthorizeURL, got: %v", err)
	}
}

func TestFetchAccessToken(t *testing.T) {
	ctx := context.Background()

	var gotCode, gotGrantType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotCode = r.Form.Get("code")
		gotGrantType = r.Form.Get("grant_type")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer ts.Close()

	c := New(Config{
		ClientID:       "cid",
		ClientSecret:   "secret",
		AccessTokenURL: ts.URL,
	})

	tok, err := c.FetchAccessToken(ctx, &TokenRequest{
		RedirectURI: "https://app/cb",
		Params:      url.Values{"code": []string{"abc"}, "state": []string{"s1"}},
		State:       "s1",
	})
	if err != nil {
		t.Fatalf("fetching access token: %v", err)
	}

	if gotCode != "abc" {
		t.Errorf("want code abc in exchange, got: %s", gotCode)
	}
	if gotGrantType != "authorization_code" {
		t.Errorf("want grant_type authorization_code, got: %s", gotGrantType)
	}
	if tok.AccessToken != "at-123" {
		t.Errorf("want access token at-123, got: %s", tok.AccessToken)
	}
}

func TestFetchAccessTokenStateMismatch(t *testing.T) {
	ctx := context.Background()

	// any network call is a test failure
	c := New(Config{
		ClientID:       "cid",
		AccessTokenURL: "https://idp/token",
		HTTPClient:     &http.Client{Transport: failingTransport{t}},
	})

	_, err := c.FetchAccessToken(ctx, &TokenRequest{
		Params: url.Values{"code": []string{"abc"}, "state": []string{"evil"}},
		State:  "s1",
	})

	var smErr *StateMismatchError
	if !errors.As(err, &smErr) {
		t.Fatalf("wanted StateMismatchError, got: %v", err)
	}
	if smErr.Expected != "s1" || smErr.Got != "evil" {
		t.Errorf("unexpected mismatch detail: %+v", smErr)
	}
}

func TestFetchAccessTokenMissingEndpoint(t *testing.T) {
	ctx := context.Background()

	c := New(Config{ClientID: "cid"})

	_, err := c.FetchAccessToken(ctx, &TokenRequest{
		Params: url.Values{"code": []string{"abc"}},
	})
	if !errors.Is(err, ErrMissingTokenEndpoint) {
		t.Fatalf("wanted ErrMissingTokenEndpoint, got: %v", err)
	}
}

func TestFetchAccessTokenErrorResponse(t *testing.T) {
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "code expired",
		})
	}))
	defer ts.Close()

	c := New(Config{
		ClientID:       "cid",
		AccessTokenURL: ts.URL,
	})

	_, err := c.FetchAccessToken(ctx, &TokenRequest{
		Params: url.Values{"code": []string{"abc"}},
	})

	var terr *TokenError
	if !errors.As(err, &terr) {
		t.Fatalf("wanted TokenError, got: %v", err)
	}
	if terr.ErrorCode != "invalid_grant" {
		t.Errorf("want error code invalid_grant, got: %s", terr.ErrorCode)
	}
}

func TestFetchAccessTokenUpdateHook(t *testing.T) {
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-123",
			"token_type":    "Bearer",
			"refresh_token": "rt-456",
		})
	}))
	defer ts.Close()

	var updated *Token
	c := New(Config{
		ClientID:       "cid",
		AccessTokenURL: ts.URL,
		UpdateToken: func(_ context.Context, token *Token, _, _ string) error {
			updated = token
			return nil
		},
	})

	if _, err := c.FetchAccessToken(ctx, &TokenRequest{Params: url.Values{"code": []string{"abc"}}}); err != nil {
		t.Fatalf("fetching access token: %v", err)
	}

	if updated == nil || updated.AccessToken != "at-123" {
		t.Errorf("want update hook called with new token, got: %+v", updated)
	}
}

// failingTransport fails the test if any request is made through it.
type failingTransport struct {
	t *testing.T
}

func (f failingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.t.Errorf("unexpected network call to %s", r.URL)
	return nil, errors.New("unexpected network call")
}
