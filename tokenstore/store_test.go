package tokenstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pardot/oauthclient"
)

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestEncryptedFileStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "storetest")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store := &EncryptedFileStore{
		Dir: dir,
		PassphrasePromptFunc: func(prompt string) (passphrase string, err error) {
			return "passphrase", nil
		},
	}

	testStore(t, store)
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		run  func(store Store) (*oauthclient.Token, error)
		want *oauthclient.Token
	}{
		{
			name: "happy path",
			run: func(store Store) (*oauthclient.Token, error) {
				token := &oauthclient.Token{AccessToken: "abc123", TokenType: "Bearer", IDToken: "zyx987"}

				if err := store.Set(ctx, "session1", token); err != nil {
					return nil, err
				}

				return store.Get(ctx, "session1")
			},
			want: &oauthclient.Token{AccessToken: "abc123", TokenType: "Bearer", IDToken: "zyx987"},
		},
		{
			name: "miss by key",
			run: func(store Store) (*oauthclient.Token, error) {
				token := &oauthclient.Token{AccessToken: "abc123", TokenType: "Bearer"}

				if err := store.Set(ctx, "session2", token); err != nil {
					return nil, err
				}

				return store.Get(ctx, "session3")
			},
			want: nil,
		},
		{
			name: "overwrite",
			run: func(store Store) (*oauthclient.Token, error) {
				if err := store.Set(ctx, "session4", &oauthclient.Token{AccessToken: "old", TokenType: "Bearer"}); err != nil {
					return nil, err
				}
				if err := store.Set(ctx, "session4", &oauthclient.Token{AccessToken: "new", TokenType: "Bearer"}); err != nil {
					return nil, err
				}

				return store.Get(ctx, "session4")
			},
			want: &oauthclient.Token{AccessToken: "new", TokenType: "Bearer"},
		},
		{
			name: "delete",
			run: func(store Store) (*oauthclient.Token, error) {
				if err := store.Set(ctx, "session5", &oauthclient.Token{AccessToken: "abc123", TokenType: "Bearer"}); err != nil {
					return nil, err
				}
				if err := store.Delete(ctx, "session5"); err != nil {
					return nil, err
				}

				return store.Get(ctx, "session5")
			},
			want: nil,
		},
		{
			name: "delete non-existent",
			run: func(store Store) (*oauthclient.Token, error) {
				return nil, store.Delete(ctx, "never-stored")
			},
			want: nil,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.run(store)
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("want: %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestUpdateTokenHook(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	hook := UpdateTokenHook(store, "session1")
	if err := hook(ctx, &oauthclient.Token{AccessToken: "abc123", TokenType: "Bearer"}, "", ""); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "session1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.AccessToken != "abc123" {
		t.Errorf("want persisted token abc123, got: %+v", got)
	}
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ts := TokenSource(store, "session1")

	// empty store is a hard failure, not a silent nil
	if _, err := ts.Token(ctx); !errors.Is(err, oauthclient.ErrMissingToken) {
		t.Fatalf("wanted ErrMissingToken, got: %v", err)
	}

	if err := store.Set(ctx, "session1", &oauthclient.Token{AccessToken: "abc123", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}

	tok, err := ts.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "abc123" {
		t.Errorf("want access token abc123, got: %s", tok.AccessToken)
	}
}
