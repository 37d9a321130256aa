package oauthclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dghubble/oauth1"
)

// oauth1Config builds the signing configuration for the OAuth 1
// request-token handshake and exchange. The configured default parameter
// sets ride along on the endpoint query strings; they are covered by the
// request signature either way.
func (c *Client) oauth1Config(redirectURI string) *oauth1.Config {
	return &oauth1.Config{
		ConsumerKey:    c.cfg.ClientID,
		ConsumerSecret: c.cfg.ClientSecret,
		CallbackURL:    redirectURI,
		Endpoint: oauth1.Endpoint{
			RequestTokenURL: urlWithParams(c.cfg.RequestTokenURL, c.cfg.RequestTokenParams),
			AuthorizeURL:    c.cfg.AuthorizeURL,
			AccessTokenURL:  urlWithParams(c.cfg.AccessTokenURL, c.cfg.AccessTokenParams),
		},
	}
}

func (c *Client) createOAuth1AuthorizationURL(ctx context.Context, redirectURI string, params url.Values) (*AuthorizationRequest, error) {
	// OAuth 1 providers have no discovery document, the authorization
	// endpoint must be configured statically.
	if c.cfg.AuthorizeURL == "" {
		return nil, ErrMissingAuthorizeURL
	}

	cfg := c.oauth1Config(redirectURI)

	rt, rts, err := cfg.RequestToken()
	if err != nil {
		return nil, fmt.Errorf("fetching request token: %v", err)
	}
	c.logger.WithField("request_token", rt).Debug("fetched request token")

	u, err := cfg.AuthorizationURL(rt)
	if err != nil {
		return nil, fmt.Errorf("building authorization url: %v", err)
	}

	if len(params) > 0 {
		q := u.Query()
		for k := range params {
			q.Set(k, params.Get(k))
		}
		u.RawQuery = q.Encode()
	}

	return &AuthorizationRequest{
		URL:          u.String(),
		RedirectURI:  redirectURI,
		RequestToken: &RequestToken{Token: rt, Secret: rts},
	}, nil
}

func (c *Client) fetchOAuth1AccessToken(ctx context.Context, req *TokenRequest) (*Token, error) {
	if req.RequestToken == nil || req.RequestToken.Token == "" {
		return nil, ErrMissingRequestToken
	}

	var verifier string
	if req.Params != nil {
		verifier = req.Params.Get("oauth_verifier")
	}

	cfg := c.oauth1Config(req.RedirectURI)

	at, ats, err := cfg.AccessToken(req.RequestToken.Token, req.RequestToken.Secret, verifier)
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %v", err)
	}

	return &Token{
		AccessToken: at,
		TokenType:   "oauth1",
		Raw: map[string]interface{}{
			"oauth_token":        at,
			"oauth_token_secret": ats,
		},
	}, nil
}

// oauth1HTTPClient returns an http.Client that signs requests with the given
// token, for calls to OAuth 1 protected resources.
func (c *Client) oauth1HTTPClient(ctx context.Context, token *Token) *http.Client {
	secret, _ := token.Extra("oauth_token_secret").(string)
	ctx = context.WithValue(ctx, oauth1.HTTPClient, c.hc)
	return c.oauth1Config("").Client(ctx, oauth1.NewToken(token.AccessToken, secret))
}
