package session

import (
	"context"
	"errors"
	"sync"
)

// MemStore is an in-memory Store for tests and ephemeral installs that opt
// out of persistence.
type MemStore struct {
	mu   sync.Mutex
	sess *Session
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore { return &MemStore{} }

// Load implements Store.
func (s *MemStore) Load(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, ErrNotFound
	}
	return s.sess.Clone(), nil
}

// Save implements Store.
func (s *MemStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess == nil {
		return errors.New("nil session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess.Clone()
	return nil
}

// Clear implements Store.
func (s *MemStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = nil
	return nil
}
