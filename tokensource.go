package oauthclient

import "context"

// TokenSource fetches tokens for authenticated requests.
type TokenSource interface {
	// Token returns a token or an error.
	// The returned Token must not be modified
	Token(ctx context.Context) (*Token, error)
}

// StaticTokenSource returns a TokenSource that always yields the given
// token.
func StaticTokenSource(t *Token) TokenSource {
	return staticTokenSource{t: t}
}

type staticTokenSource struct {
	t *Token
}

func (s staticTokenSource) Token(_ context.Context) (*Token, error) {
	if s.t == nil {
		return nil, ErrMissingToken
	}
	return s.t, nil
}
