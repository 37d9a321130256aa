package oauthclient

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// Token encapsulates the credentials returned from a token endpoint.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	// IDToken is the raw OIDC ID token, if the provider returned one. Use
	// Client.ParseIDToken to verify it and extract its claims.
	IDToken string
	// Expiry is the absolute expiry time of the access token. Zero means
	// the provider did not report one.
	Expiry time.Time
	// Raw holds any additional fields from the token response, such as
	// scope or the oauth_token_secret of an OAuth 1 credential.
	Raw map[string]interface{}
}

// Type returns the token type, defaulting to Bearer.
func (t *Token) Type() string {
	if t.TokenType == "" {
		return "Bearer"
	}
	return t.TokenType
}

// Valid reports whether the token exists and has not expired.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || t.Expiry.After(time.Now())
}

// Extra returns a field from the raw token response.
func (t *Token) Extra(key string) interface{} {
	if t.Raw == nil {
		return nil
	}
	return t.Raw[key]
}

func (t *Token) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{}
	for k, v := range t.Raw {
		m[k] = v
	}
	m["access_token"] = t.AccessToken
	m["token_type"] = t.Type()
	if t.RefreshToken != "" {
		m["refresh_token"] = t.RefreshToken
	}
	if t.IDToken != "" {
		m["id_token"] = t.IDToken
	}
	if !t.Expiry.IsZero() {
		m["expiry"] = t.Expiry.Format(time.RFC3339)
	}
	return json.Marshal(m)
}

func (t *Token) UnmarshalJSON(b []byte) error {
	s := struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		Expiry       string `json:"expiry"`
	}{}
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for _, f := range []string{"access_token", "token_type", "refresh_token", "id_token", "expiry"} {
		delete(m, f)
	}

	t.AccessToken = s.AccessToken
	t.TokenType = s.TokenType
	t.RefreshToken = s.RefreshToken
	t.IDToken = s.IDToken
	t.Expiry = time.Time{}
	if s.Expiry != "" {
		exp, err := time.Parse(time.RFC3339, s.Expiry)
		if err != nil {
			return err
		}
		t.Expiry = exp
	}
	t.Raw = nil
	if len(m) > 0 {
		t.Raw = m
	}

	return nil
}

// tokenFromOAuth2 converts an x/oauth2 token to our Token, preserving the
// extra response fields we care about.
func tokenFromOAuth2(t *oauth2.Token) *Token {
	tok := &Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}

	raw := map[string]interface{}{}
	if idt, ok := t.Extra("id_token").(string); ok && idt != "" {
		tok.IDToken = idt
	}
	for _, f := range []string{"scope", "expires_in"} {
		if v := t.Extra(f); v != nil {
			raw[f] = v
		}
	}
	if len(raw) > 0 {
		tok.Raw = raw
	}

	return tok
}
