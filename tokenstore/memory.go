package tokenstore

import (
	"context"
	"sync"

	"github.com/pardot/oauthclient"
)

// MemoryStore keeps tokens in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]*oauthclient.Token
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]*oauthclient.Token{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*oauthclient.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *MemoryStore) Set(_ context.Context, key string, token *oauthclient.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = token
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemoryStore) Available() bool {
	return true
}
