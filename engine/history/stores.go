package history

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stores hands out one Store per session, each persisted under
// "<DefaultKey>.<session>" in a shared Backend. Stores are loaded once on
// first use and kept in an LRU; an evicted store is reloaded from the backend.
type Stores struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *Store]
}

// NewStores creates a Stores keeping at most size sessions in memory.
func NewStores(backend Backend, size int, logger *slog.Logger) (*Stores, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, *Store](size)
	if err != nil {
		return nil, err
	}
	return &Stores{backend: backend, logger: logger, cache: cache}, nil
}

// KeyFor returns the storage key for a session.
func KeyFor(session string) string {
	if session == "" {
		return DefaultKey
	}
	return DefaultKey + "." + session
}

// For returns the loaded Store for session.
func (s *Stores) For(ctx context.Context, session string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.cache.Get(session); ok {
		return st
	}
	st := NewStore(s.backend, KeyFor(session), s.logger)
	st.Load(ctx)
	s.cache.Add(session, st)
	return st
}
