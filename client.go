// Package oauthclient implements the consumer ("relying party") side of the
// OAuth 1.0a, OAuth 2.0 and OpenID Connect authorization flows. A Client is
// configured once per provider, resolves the provider's metadata lazily, and
// drives the redirect round trip: building the authorization URL, exchanging
// the callback parameters for a token, verifying ID tokens against the
// provider's key set, and making authenticated API calls.
package oauthclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pardot/oauthclient/discovery"
	"github.com/sirupsen/logrus"
)

// UpdateTokenFunc is invoked with every token issued by a successful
// exchange or refresh, so the caller can persist it. refreshToken and
// accessToken identify the credential being replaced, when known.
type UpdateTokenFunc func(ctx context.Context, token *Token, refreshToken, accessToken string) error

// FetchTokenFunc resolves the current token for a request when none was
// passed explicitly. r is the inbound request being served, and may be nil.
type FetchTokenFunc func(ctx context.Context, r *http.Request) (*Token, error)

// ComplianceFixFunc normalizes a provider's non-standard userinfo response
// before it is wrapped as a UserInfo.
type ComplianceFixFunc func(ctx context.Context, raw map[string]interface{}) (map[string]interface{}, error)

// Config describes one remote OAuth / OIDC provider.
type Config struct {
	ClientID     string
	ClientSecret string

	// Static endpoint overrides. These take precedence over anything found
	// in the server metadata. A non-empty RequestTokenURL marks the
	// provider as OAuth 1.
	AuthorizeURL    string
	AccessTokenURL  string
	RequestTokenURL string

	// Default parameter sets merged into the corresponding calls.
	AuthorizeParams    url.Values
	AccessTokenParams  url.Values
	RequestTokenParams url.Values

	// APIBaseURL resolves relative URLs passed to Request.
	APIBaseURL string
	// Scopes requested on authorization URLs. Include "openid" for OIDC.
	Scopes []string

	// ServerMetadataURL is the provider's discovery document, fetched at
	// most once, on first use. ServerMetadata seeds the metadata cache
	// statically; fetched values are merged over it.
	ServerMetadataURL string
	ServerMetadata    *discovery.ServerMetadata

	// UpdateToken is called with every token produced by an exchange.
	UpdateToken UpdateTokenFunc
	// FetchToken resolves tokens for authenticated requests when none is
	// passed explicitly.
	FetchToken FetchTokenFunc
	// UserinfoComplianceFix normalizes userinfo responses for providers
	// that deviate from the standard response format.
	UserinfoComplianceFix ComplianceFixFunc

	// HTTPClient is used for all calls this client makes. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client drives the authorization flows for a single provider.
//
// Methods on Client are safe for concurrent use; the metadata cache is
// guarded by the resolver.
type Client struct {
	cfg Config

	resolver *discovery.Resolver
	hc       *http.Client
	logger   logrus.FieldLogger
}

// New builds a Client for the given provider configuration.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	resolver := discovery.NewResolver(cfg.ServerMetadataURL,
		discovery.WithHTTPClient(hc),
		discovery.WithStaticMetadata(cfg.ServerMetadata),
	)

	return &Client{
		cfg:      cfg,
		resolver: resolver,
		hc:       hc,
		logger:   logger,
	}
}

// Metadata returns the provider's metadata, triggering the one-time
// discovery fetch if one is configured.
func (c *Client) Metadata(ctx context.Context) (*discovery.ServerMetadata, error) {
	return c.resolver.Metadata(ctx)
}

// isOAuth1 reports whether this provider uses the OAuth 1 request-token
// handshake.
func (c *Client) isOAuth1() bool {
	return c.cfg.RequestTokenURL != ""
}

// RequestToken is the temporary OAuth 1 credential issued before the user is
// redirected. It must be persisted by the caller and passed back when the
// access token is fetched.
type RequestToken struct {
	Token  string
	Secret string
}

// AuthorizationRequest is the result of CreateAuthorizationURL. The caller
// must persist State, Nonce and RequestToken (whichever are set) across the
// redirect round trip.
type AuthorizationRequest struct {
	// URL the user should be redirected to.
	URL string
	// State is the OAuth 2 state parameter bound into URL.
	State string
	// Nonce is the OIDC nonce bound into URL, when the openid scope is
	// requested.
	Nonce string
	// RedirectURI the flow was created with.
	RedirectURI string
	// RequestToken is set for OAuth 1 providers.
	RequestToken *RequestToken
}

// TokenRequest carries the callback parameters and the persisted round-trip
// state into FetchAccessToken.
type TokenRequest struct {
	// RedirectURI used when the authorization URL was created.
	RedirectURI string
	// Params are the parameters from the provider's callback, such as code
	// and state, or oauth_verifier.
	Params url.Values
	// State is the persisted OAuth 2 state, checked against Params before
	// any exchange happens.
	State string
	// RequestToken is the persisted OAuth 1 request token.
	RequestToken *RequestToken
}

// CreateAuthorizationURL builds the URL the user should be sent to in order
// to authorize this client. params are merged over the configured
// AuthorizeParams.
func (c *Client) CreateAuthorizationURL(ctx context.Context, redirectURI string, params url.Values) (*AuthorizationRequest, error) {
	if c.isOAuth1() {
		return c.createOAuth1AuthorizationURL(ctx, redirectURI, params)
	}
	return c.createOAuth2AuthorizationURL(ctx, redirectURI, params)
}

// FetchAccessToken exchanges the callback result for a token, and notifies
// the UpdateToken hook on success.
func (c *Client) FetchAccessToken(ctx context.Context, req *TokenRequest) (*Token, error) {
	if req == nil {
		req = &TokenRequest{}
	}

	var (
		tok *Token
		err error
	)
	if c.isOAuth1() {
		tok, err = c.fetchOAuth1AccessToken(ctx, req)
	} else {
		tok, err = c.fetchOAuth2AccessToken(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if err := c.sendTokenUpdate(ctx, tok, "", ""); err != nil {
		return nil, err
	}

	return tok, nil
}

// sendTokenUpdate notifies the persistence hook of a newly issued token.
// refreshToken and accessToken name the credential the new token replaces,
// when this was a refresh.
func (c *Client) sendTokenUpdate(ctx context.Context, tok *Token, refreshToken, accessToken string) error {
	if c.cfg.UpdateToken == nil {
		return nil
	}
	return c.cfg.UpdateToken(ctx, tok, refreshToken, accessToken)
}
