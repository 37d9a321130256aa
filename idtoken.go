package oauthclient

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
)

// IDTokenLeeway is the clock skew tolerated when validating the time-based
// claims of an ID token.
const IDTokenLeeway = 120 * time.Second

// Claims is the verified payload of an ID token.
//
// https://openid.net/specs/openid-connect-core-1_0.html#IDToken
type Claims struct {
	// Issuer Identifier for the Issuer of the response.
	Issuer string `json:"iss,omitempty"`
	// Subject Identifier, locally unique and never reassigned within the
	// Issuer for the End-User.
	Subject string `json:"sub,omitempty"`
	// Audience(s) this ID Token is intended for. Contains the client_id of
	// the relying party as one value.
	Audience Audience `json:"aud,omitempty"`
	// Expiration time on or after which the ID Token must not be accepted.
	Expiry UnixTime `json:"exp,omitempty"`
	// Time at which the JWT was issued.
	IssuedAt UnixTime `json:"iat,omitempty"`
	// Time when the End-User authentication occurred.
	AuthTime UnixTime `json:"auth_time,omitempty"`
	// Nonce binds this token to the authorization request it answered.
	Nonce string `json:"nonce,omitempty"`
	// Authentication Context Class Reference.
	ACR string `json:"acr,omitempty"`
	// Authentication Methods References.
	AMR []string `json:"amr,omitempty"`
	// Authorized party the token was issued to.
	AZP string `json:"azp,omitempty"`
	// Access token hash, binding an access token to this ID token in the
	// code flow.
	AtHash string `json:"at_hash,omitempty"`

	// Extra holds any claims beyond the standard set.
	Extra map[string]interface{} `json:"-"`
}

func (c Claims) MarshalJSON() ([]byte, error) {
	// avoid recursing on this method
	type claims Claims
	cl := claims(c)

	sj, err := json.Marshal(&cl)
	if err != nil {
		return nil, err
	}

	sm := map[string]interface{}{}
	if err := json.Unmarshal(sj, &sm); err != nil {
		return nil, err
	}

	om := map[string]interface{}{}
	for k, v := range c.Extra {
		om[k] = v
	}
	for k, v := range sm {
		om[k] = v
	}

	return json.Marshal(om)
}

func (c *Claims) UnmarshalJSON(b []byte) error {
	type claims Claims
	cl := claims{}
	if err := json.Unmarshal(b, &cl); err != nil {
		return err
	}

	em := map[string]interface{}{}
	if err := json.Unmarshal(b, &em); err != nil {
		return err
	}
	for _, f := range []string{
		"iss", "sub", "aud", "exp", "iat", "auth_time", "nonce", "acr", "amr", "azp", "at_hash",
	} {
		delete(em, f)
	}
	if len(em) > 0 {
		cl.Extra = em
	}

	*c = Claims(cl)
	return nil
}

// Audience represents an ID token's aud claim, which may be encoded as a
// string or a list of strings.
type Audience []string

// Contains returns true if a passed audience is found in the token's set
func (a Audience) Contains(aud string) bool {
	for _, ia := range a {
		if ia == aud {
			return true
		}
	}
	return false
}

func (a Audience) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

func (a *Audience) UnmarshalJSON(b []byte) error {
	var ua interface{}
	if err := json.Unmarshal(b, &ua); err != nil {
		return err
	}

	switch ja := ua.(type) {
	case string:
		*a = []string{ja}
	case []interface{}:
		aa := make([]string, len(ja))
		for i, ia := range ja {
			sa, ok := ia.(string)
			if !ok {
				return fmt.Errorf("failed to unmarshal audience, expected []string but found %T", ia)
			}
			aa[i] = sa
		}
		*a = aa
	default:
		return fmt.Errorf("failed to unmarshal audience, expected string or []string but found %T", ua)
	}

	return nil
}

// UnixTime represents the number of seconds from 1970-01-01T0:0:0Z as
// measured in UTC until the date/time. This is the type ID tokens use to
// represent dates.
type UnixTime int64

// NewUnixTime creates a UnixTime from the given Time, t
func NewUnixTime(t time.Time) UnixTime {
	return UnixTime(t.Unix())
}

// Time returns the time.Time this represents
func (u UnixTime) Time() time.Time {
	return time.Unix(int64(u), 0)
}

func (u UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(u), 10)), nil
}

func (u *UnixTime) UnmarshalJSON(b []byte) error {
	p, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("failed to parse UnixTime: %v", err)
	}
	*u = UnixTime(p)
	return nil
}

type idTokenCfg struct {
	nonce    string
	issuer   string
	audience string
	clock    func() time.Time
}

// ParseIDTokenOpt customizes ID token verification.
type ParseIDTokenOpt func(*idTokenCfg)

// WithNonce supplies the nonce persisted when the authorization URL was
// created. The token's nonce claim must match it.
func WithNonce(nonce string) ParseIDTokenOpt {
	return func(cfg *idTokenCfg) {
		cfg.nonce = nonce
	}
}

// WithIssuer overrides the expected issuer. By default the issuer from the
// server metadata is used, when known.
func WithIssuer(issuer string) ParseIDTokenOpt {
	return func(cfg *idTokenCfg) {
		cfg.issuer = issuer
	}
}

// WithAudience overrides the expected audience, which defaults to the
// configured client ID.
func WithAudience(audience string) ParseIDTokenOpt {
	return func(cfg *idTokenCfg) {
		cfg.audience = audience
	}
}

// WithClock provides a custom clock that is used to determine the current
// time when validating tokens.
func WithClock(clock func() time.Time) ParseIDTokenOpt {
	return func(cfg *idTokenCfg) {
		cfg.clock = clock
	}
}

// ParseIDToken verifies the ID token carried in a token response and returns
// its claims.
//
// A token response without an id_token returns (nil, nil); plain OAuth 2
// providers are not an error. The token's signing algorithm must be in the
// provider's advertised id_token_signing_alg_values_supported set (RS256
// when the provider doesn't advertise one), its signature must verify
// against the provider's key set, and issuer, audience, nonce and the
// time-based claims must all check out, with IDTokenLeeway of skew
// tolerated. When the response also carries an access token and the ID
// token has an at_hash claim, the hash must match the access token. Every
// verification failure is an *InvalidIDTokenError.
func (c *Client) ParseIDToken(ctx context.Context, token *Token, opts ...ParseIDTokenOpt) (*Claims, error) {
	if token == nil || token.IDToken == "" {
		return nil, nil
	}

	cfg := &idTokenCfg{clock: time.Now}
	for _, o := range opts {
		o(cfg)
	}

	md, err := c.resolver.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	algValues := md.IDTokenSigningAlgValuesSupported
	if len(algValues) == 0 {
		algValues = []string{"RS256"}
	}

	tok, err := jwt.ParseSigned(token.IDToken)
	if err != nil {
		return nil, &InvalidIDTokenError{Reason: "malformed token", Cause: err}
	}

	if len(tok.Headers) != 1 {
		return nil, &InvalidIDTokenError{Reason: fmt.Sprintf("expected 1 signature header, found %d", len(tok.Headers))}
	}
	hdr := tok.Headers[0]

	// The allow-list gate runs before any key handling, a token can't talk
	// us into verifying with an algorithm the provider never uses.
	if !containsString(algValues, hdr.Algorithm) {
		return nil, &InvalidIDTokenError{Reason: fmt.Sprintf("signing algorithm %q not allowed", hdr.Algorithm)}
	}

	key, err := c.signingKey(ctx, hdr.KeyID)
	if err != nil {
		return nil, &InvalidIDTokenError{Reason: "resolving signing key", Cause: err}
	}

	std := jwt.Claims{}
	idc := Claims{}
	if err := tok.Claims(key, &std, &idc); err != nil {
		return nil, &InvalidIDTokenError{Reason: "signature verification failed", Cause: err}
	}

	expected := jwt.Expected{Time: cfg.clock()}
	issuer := cfg.issuer
	if issuer == "" {
		issuer = md.Issuer
	}
	expected.Issuer = issuer

	audience := cfg.audience
	if audience == "" {
		audience = c.cfg.ClientID
	}
	if audience != "" {
		expected.Audience = jwt.Audience{audience}
	}

	if err := std.ValidateWithLeeway(expected, IDTokenLeeway); err != nil {
		return nil, &InvalidIDTokenError{Reason: "claim validation failed", Cause: err}
	}

	if cfg.nonce != "" {
		if idc.Nonce == "" {
			return nil, &InvalidIDTokenError{Reason: "missing nonce claim"}
		}
		if idc.Nonce != cfg.nonce {
			return nil, &InvalidIDTokenError{Reason: "nonce mismatch"}
		}
	}

	// code flow: the at_hash claim binds the access token to this ID token
	if token.AccessToken != "" && idc.AtHash != "" {
		if err := verifyAtHash(hdr.Algorithm, token.AccessToken, idc.AtHash); err != nil {
			return nil, &InvalidIDTokenError{Reason: "at_hash validation failed", Cause: err}
		}
	}

	return &idc, nil
}

// signingKey resolves the verification key for a token header. Tokens
// without a kid are accepted only when the provider publishes a single key.
func (c *Client) signingKey(ctx context.Context, kid string) (interface{}, error) {
	if kid == "" {
		ks, err := c.resolver.Keys(ctx)
		if err != nil {
			return nil, err
		}
		if len(ks.Keys) != 1 {
			return nil, fmt.Errorf("token has no kid and provider has %d keys", len(ks.Keys))
		}
		return &ks.Keys[0], nil
	}
	return c.resolver.Key(ctx, kid)
}

// verifyAtHash checks an at_hash claim: the base64url encoding of the left
// half of the access token hashed with the hash behind the token's signing
// algorithm.
func verifyAtHash(alg, accessToken, atHash string) error {
	var h hash.Hash
	switch {
	case strings.HasSuffix(alg, "256"):
		h = sha256.New()
	case strings.HasSuffix(alg, "384"):
		h = sha512.New384()
	case strings.HasSuffix(alg, "512"):
		h = sha512.New()
	default:
		return fmt.Errorf("no hash for algorithm %q", alg)
	}

	h.Write([]byte(accessToken))
	sum := h.Sum(nil)
	want := base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])

	if atHash != want {
		return fmt.Errorf("at_hash %q does not match access token", atHash)
	}
	return nil
}
