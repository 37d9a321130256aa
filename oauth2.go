package oauthclient

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// stateLength is the number of random bytes behind a generated state or
// nonce value.
const stateLength = 16

func (c *Client) createOAuth2AuthorizationURL(ctx context.Context, redirectURI string, params url.Values) (*AuthorizationRequest, error) {
	endpoint := c.cfg.AuthorizeURL
	if endpoint == "" {
		md, err := c.resolver.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		endpoint = md.AuthorizationEndpoint
	}
	if endpoint == "" {
		return nil, ErrMissingAuthorizeURL
	}

	merged := mergeValues(c.cfg.AuthorizeParams, params)

	state := merged.Get("state")
	if state == "" {
		var err error
		if state, err = randomString(stateLength); err != nil {
			return nil, fmt.Errorf("generating state: %v", err)
		}
	}
	merged.Del("state")

	// OIDC requests get a nonce, bound into the ID token for replay
	// protection.
	nonce := merged.Get("nonce")
	if nonce == "" && containsString(c.cfg.Scopes, "openid") {
		var err error
		if nonce, err = randomString(stateLength); err != nil {
			return nil, fmt.Errorf("generating nonce: %v", err)
		}
		merged.Set("nonce", nonce)
	}

	o2cfg := oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: endpoint},
		RedirectURL:  redirectURI,
		Scopes:       c.cfg.Scopes,
	}

	var aopts []oauth2.AuthCodeOption
	for k := range merged {
		aopts = append(aopts, oauth2.SetAuthURLParam(k, merged.Get(k)))
	}

	return &AuthorizationRequest{
		URL:         o2cfg.AuthCodeURL(state, aopts...),
		State:       state,
		Nonce:       nonce,
		RedirectURI: redirectURI,
	}, nil
}

func (c *Client) fetchOAuth2AccessToken(ctx context.Context, req *TokenRequest) (*Token, error) {
	params := req.Params
	if params == nil {
		params = url.Values{}
	}

	// The state echo must match what was persisted at authorization time.
	// Checked before anything goes over the wire.
	if req.State != "" || params.Get("state") != "" {
		if params.Get("state") != req.State {
			return nil, &StateMismatchError{Expected: req.State, Got: params.Get("state")}
		}
	}

	endpoint := c.cfg.AccessTokenURL
	if endpoint == "" {
		md, err := c.resolver.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		endpoint = md.TokenEndpoint
	}
	if endpoint == "" {
		return nil, ErrMissingTokenEndpoint
	}

	merged := mergeValues(c.cfg.AccessTokenParams, params)
	code := merged.Get("code")

	var eopts []oauth2.AuthCodeOption
	for k := range merged {
		if k == "code" || k == "state" {
			continue
		}
		eopts = append(eopts, oauth2.SetAuthURLParam(k, merged.Get(k)))
	}

	o2cfg := oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: endpoint},
		RedirectURL:  req.RedirectURI,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.hc)

	t, err := o2cfg.Exchange(ctx, code, eopts...)
	if err != nil {
		return nil, parseExchangeError(err)
	}

	return tokenFromOAuth2(t), nil
}

// RefreshToken obtains a fresh token with a refresh token grant, and
// notifies the UpdateToken hook on success.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	endpoint := c.cfg.AccessTokenURL
	if endpoint == "" {
		md, err := c.resolver.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		endpoint = md.TokenEndpoint
	}
	if endpoint == "" {
		return nil, ErrMissingTokenEndpoint
	}

	o2cfg := oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: endpoint},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.hc)

	t, err := o2cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, parseExchangeError(err)
	}

	tok := tokenFromOAuth2(t)
	if tok.RefreshToken == "" {
		// providers are free to not rotate the refresh token
		tok.RefreshToken = refreshToken
	}

	if err := c.sendTokenUpdate(ctx, tok, refreshToken, ""); err != nil {
		return nil, err
	}

	return tok, nil
}
