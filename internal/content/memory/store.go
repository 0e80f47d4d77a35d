// Package memory provides an in-memory content store, used in tests and
// single-process development setups.
package memory

import (
	"context"
	"sync"

	"github.com/passagehq/passage/internal/content"
)

// Store is an in-memory implementation of content.Store. Safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Resolve(ctx context.Context, id string) ([]byte, bool, error) {
	if err := content.ValidateID(id); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[id]
	if !ok {
		return nil, false, nil
	}

	// Copy so callers can't mutate stored content.
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true, nil
}

func (s *Store) Put(ctx context.Context, blob []byte) (string, error) {
	cid := content.CID(blob)

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[cid] = stored
	return cid, nil
}

var _ content.Store = (*Store)(nil)
