package view

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Sessions maps session IDs to their Session, keeping the most recently
// used ones.
type Sessions struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Session]
}

func NewSessions(size int) (*Sessions, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, *Session](size)
	if err != nil {
		return nil, err
	}
	return &Sessions{cache: cache}, nil
}

// Get returns the Session for id, creating it if needed.
func (s *Sessions) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.cache.Get(id); ok {
		return sess
	}
	sess := NewSession()
	s.cache.Add(id, sess)
	return sess
}

func (s *Sessions) Len() int { return s.cache.Len() }
