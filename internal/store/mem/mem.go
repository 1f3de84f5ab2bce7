// Package mem provides an in-process session store, used by tests and by
// server-side embedding where durability is not wanted.
package mem

import (
	"sync"

	"opsdesk.org/internal/session"
)

// Store keeps the session record in memory behind a mutex.
type Store struct {
	mu  sync.Mutex
	rec *session.Record
}

var _ session.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) Load() (*session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, session.ErrNoSession
	}
	return s.rec.Clone(), nil
}

func (s *Store) Save(rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec.Clone()
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
