// Package tokenstore provides pluggable persistence for tokens issued to a
// session or user: the "get current token / save updated token" half of the
// client's collaborator surface. Stores are keyed by an opaque identifier
// chosen by the caller, such as a session ID or a provider/user pair.
package tokenstore

import (
	"context"

	"github.com/pardot/oauthclient"
)

// PassphrasePromptFunc prompts the user for the passphrase protecting an
// encrypted store.
type PassphrasePromptFunc func(prompt string) (passphrase string, err error)

// Store is capable of persisting and retrieving tokens. At this time, Store
// implementations are not required to be goroutine safe, except for
// MemoryStore. Code that shares a store across goroutines should synchronize
// access.
type Store interface {
	// Get returns the token stored under key. Misses are _not_ an error,
	// they are returned as (nil, nil).
	Get(ctx context.Context, key string) (*oauthclient.Token, error)
	// Set stores a token under key, replacing any existing one.
	Set(ctx context.Context, key string, token *oauthclient.Token) error
	// Delete removes the token stored under key, if any.
	Delete(ctx context.Context, key string) error
	// Available returns true if the store is usable in this environment.
	Available() bool
}

// UpdateTokenHook returns an oauthclient.UpdateTokenFunc that persists every
// issued token into store under key.
func UpdateTokenHook(store Store, key string) oauthclient.UpdateTokenFunc {
	return func(ctx context.Context, token *oauthclient.Token, _, _ string) error {
		return store.Set(ctx, key, token)
	}
}

// TokenSource adapts a store entry to the client's TokenSource interface.
func TokenSource(store Store, key string) oauthclient.TokenSource {
	return &storeTokenSource{store: store, key: key}
}

type storeTokenSource struct {
	store Store
	key   string
}

func (s *storeTokenSource) Token(ctx context.Context) (*oauthclient.Token, error) {
	t, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, oauthclient.ErrMissingToken
	}
	return t, nil
}
