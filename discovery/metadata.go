package discovery

import (
	jose "github.com/go-jose/go-jose/v3"
)

// ServerMetadata describes the configuration of an OAuth 2.0 / OIDC
// authorization server, as published in its discovery document.
//
// https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
type ServerMetadata struct {
	// URL the server asserts as its Issuer Identifier. This must be
	// identical to the iss claim in ID Tokens issued by the server.
	Issuer string `json:"issuer,omitempty"`
	// URL of the server's authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	// URL of the server's token endpoint. Required unless only the implicit
	// flow is used.
	TokenEndpoint string `json:"token_endpoint,omitempty"`
	// URL of the server's UserInfo endpoint.
	UserinfoEndpoint string `json:"userinfo_endpoint,omitempty"`
	// URL of the server's JSON Web Key Set document, holding the signing
	// keys clients use to validate signatures from the server.
	JWKSURI string `json:"jwks_uri,omitempty"`
	// URL of the server's dynamic client registration endpoint.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`
	// OAuth 2.0 scope values the server supports.
	ScopesSupported []string `json:"scopes_supported,omitempty"`
	// OAuth 2.0 response_type values the server supports.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`
	// OAuth 2.0 grant_type values the server supports.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`
	// Subject identifier types the server supports.
	SubjectTypesSupported []string `json:"subject_types_supported,omitempty"`
	// JWS algorithms the server may sign ID Tokens with. Used as the
	// verification allow-list; RS256 is assumed when empty.
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported,omitempty"`
	// Claim names the server may be able to supply values for.
	ClaimsSupported []string `json:"claims_supported,omitempty"`

	// JWKS is the cached key set for this server. It can be seeded
	// statically for providers that hand keys out-of-band, otherwise it is
	// populated from JWKSURI on first use.
	JWKS *jose.JSONWebKeySet `json:"jwks,omitempty"`
}

// merge copies the non-zero fields of in over m. Merging the same document
// twice yields the same result, which keeps a duplicate discovery fetch
// harmless.
func (m *ServerMetadata) merge(in *ServerMetadata) {
	if in.Issuer != "" {
		m.Issuer = in.Issuer
	}
	if in.AuthorizationEndpoint != "" {
		m.AuthorizationEndpoint = in.AuthorizationEndpoint
	}
	if in.TokenEndpoint != "" {
		m.TokenEndpoint = in.TokenEndpoint
	}
	if in.UserinfoEndpoint != "" {
		m.UserinfoEndpoint = in.UserinfoEndpoint
	}
	if in.JWKSURI != "" {
		m.JWKSURI = in.JWKSURI
	}
	if in.RegistrationEndpoint != "" {
		m.RegistrationEndpoint = in.RegistrationEndpoint
	}
	if len(in.ScopesSupported) > 0 {
		m.ScopesSupported = in.ScopesSupported
	}
	if len(in.ResponseTypesSupported) > 0 {
		m.ResponseTypesSupported = in.ResponseTypesSupported
	}
	if len(in.GrantTypesSupported) > 0 {
		m.GrantTypesSupported = in.GrantTypesSupported
	}
	if len(in.SubjectTypesSupported) > 0 {
		m.SubjectTypesSupported = in.SubjectTypesSupported
	}
	if len(in.IDTokenSigningAlgValuesSupported) > 0 {
		m.IDTokenSigningAlgValuesSupported = in.IDTokenSigningAlgValuesSupported
	}
	if len(in.ClaimsSupported) > 0 {
		m.ClaimsSupported = in.ClaimsSupported
	}
	if in.JWKS != nil {
		m.JWKS = in.JWKS
	}
}
