// Package history keeps the bounded most-recently-used list of VIN lookups
// and persists it through a pluggable key-value Backend.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/WessleyAI/vinwizard/engine/domain"
)

const (
	// DefaultKey is the storage key holding the JSON-encoded list.
	DefaultKey = "searchHistory"
	// MaxEntries caps the list length.
	MaxEntries = 10
)

// ErrNotFound is returned by a Backend when the key has never been written.
var ErrNotFound = errors.New("history: key not found")

// Backend persists opaque values under string keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Push returns a new list with e first, any older entry for the same VIN
// removed, truncated to limit. list is not modified.
func Push(list []domain.HistoryEntry, e domain.HistoryEntry, limit int) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, min(len(list)+1, limit))
	out = append(out, e)
	for _, old := range list {
		if len(out) >= limit {
			break
		}
		if old.VIN == e.VIN {
			continue
		}
		out = append(out, old)
	}
	return out
}

// Decode parses a persisted list. The result has no empty or duplicate VINs
// and at most MaxEntries entries.
func Decode(data []byte) ([]domain.HistoryEntry, error) {
	var raw []domain.HistoryEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	out := make([]domain.HistoryEntry, 0, min(len(raw), MaxEntries))
	seen := make(map[string]bool, len(raw))
	for _, e := range raw {
		if e.VIN == "" || seen[e.VIN] {
			continue
		}
		seen[e.VIN] = true
		out = append(out, e)
		if len(out) == MaxEntries {
			break
		}
	}
	return out, nil
}

// Store is the history of one user. All methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	backend Backend
	key     string
	limit   int
	entries []domain.HistoryEntry
	logger  *slog.Logger
}

// NewStore creates an empty Store persisting under key. Call Load to rehydrate.
func NewStore(backend Backend, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, key: key, limit: MaxEntries, logger: logger}
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// Load reads the persisted list into memory and returns it. Missing or
// corrupt data yields an empty list.
func (s *Store) Load(ctx context.Context) []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	data, err := s.backend.Get(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.copyLocked()
	case err != nil:
		s.logger.Warn("history load failed", "key", s.key, "err", err)
		return s.copyLocked()
	}

	entries, err := Decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt history", "key", s.key, "err", err)
		return s.copyLocked()
	}
	s.entries = entries
	return s.copyLocked()
}

// Record moves e to the front of the persisted list, persists the result
// and returns it. Entries written under the same key by another Store are
// kept. On a persistence error the in-memory list is left unchanged.
func (s *Store) Record(ctx context.Context, e domain.HistoryEntry) ([]domain.HistoryEntry, error) {
	if e.VIN == "" {
		return nil, domain.NewValidationError("vin", e.VIN, domain.ErrEmptyVIN)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := Push(s.currentLocked(ctx), e, s.limit)
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("history: encode: %w", err)
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		return nil, fmt.Errorf("history: persist %s: %w", s.key, err)
	}
	s.entries = next
	return s.copyLocked(), nil
}

// currentLocked returns the persisted list, or the in-memory one when the
// backend has nothing readable.
func (s *Store) currentLocked(ctx context.Context) []domain.HistoryEntry {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("history reload failed", "key", s.key, "err", err)
		}
		return s.entries
	}
	entries, err := Decode(data)
	if err != nil {
		return s.entries
	}
	return entries
}

// Select returns the VIN to look up again for e.
func (s *Store) Select(e domain.HistoryEntry) string {
	return e.VIN
}

// Entries returns a copy of the in-memory list.
func (s *Store) Entries() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
