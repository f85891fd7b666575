package otp

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store with the same semantics as PostgresStore.
// It backs the unit tests.
type MemStore struct {
	mu    sync.Mutex
	codes map[string]*Code
}

func NewMemStore() *MemStore {
	return &MemStore{codes: make(map[string]*Code)}
}

func (s *MemStore) ReplaceActive(_ context.Context, code Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.codes {
		if existing.PrincipalID == code.PrincipalID && existing.Kind == code.Kind &&
			!existing.Used && !existing.Expired {
			existing.Expired = true
		}
	}

	inserted := code
	s.codes[inserted.ID] = &inserted
	return nil
}

func (s *MemStore) FindActive(_ context.Context, email string, kind Kind) (Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *Code
	for _, c := range s.codes {
		if c.Email != email || c.Kind != kind || c.Used || c.Expired {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}

	if newest == nil {
		return Code{}, ErrCodeNotFound
	}

	return *newest, nil
}

func (s *MemStore) Update(_ context.Context, code Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.codes[code.ID]; ok {
		existing.Used = code.Used
		existing.Expired = code.Expired
		existing.Attempts = code.Attempts
	}

	return nil
}

func (s *MemStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, c := range s.codes {
		if !c.Expired && !c.ExpiresAt.After(now) {
			c.Expired = true
			affected++
		}
	}

	return affected, nil
}

func (s *MemStore) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for id, c := range s.codes {
		if !c.CreatedAt.After(cutoff) {
			delete(s.codes, id)
			affected++
		}
	}

	return affected, nil
}

// Get returns a stored code by id. Test helper.
func (s *MemStore) Get(id string) (Code, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[id]
	if !ok {
		return Code{}, false
	}
	return *c, true
}

// Len reports how many rows are physically present. Test helper.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}
