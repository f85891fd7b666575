package account

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store with PostgresStore semantics. It backs
// the unit tests.
type MemStore struct {
	mu   sync.Mutex
	byID map[string]*Principal

	// onDelete mimics the FK cascade: tests register session/OTP cleanup.
	onDelete func(principalID string)
}

func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Principal)}
}

// OnDelete registers a cascade hook invoked after a successful Delete.
func (s *MemStore) OnDelete(fn func(principalID string)) {
	s.onDelete = fn
}

func (s *MemStore) Create(_ context.Context, p Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.Username == p.Username || strings.EqualFold(existing.Email, p.Email) {
			return ErrConflict
		}
	}

	stored := p
	s.byID[stored.ID] = &stored
	return nil
}

func (s *MemStore) FindByID(_ context.Context, id string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.byID[id]; ok {
		return *p, nil
	}
	return Principal{}, ErrNotFound
}

func (s *MemStore) FindByEmail(_ context.Context, email string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.byID {
		if strings.EqualFold(p.Email, email) {
			return *p, nil
		}
	}
	return Principal{}, ErrNotFound
}

func (s *MemStore) FindByUsernameOrEmail(_ context.Context, identifier string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.byID {
		if p.Username == identifier || strings.EqualFold(p.Email, identifier) {
			return *p, nil
		}
	}
	return Principal{}, ErrNotFound
}

func (s *MemStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	p.PasswordHash = passwordHash
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	p.Enabled = true
	p.EmailVerified = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) UpdateProfile(_ context.Context, id, username, firstName, lastName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	for otherID, other := range s.byID {
		if otherID != id && other.Username == username {
			return ErrConflict
		}
	}

	p.Username = username
	p.FirstName = firstName
	p.LastName = lastName
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) LinkProvider(_ context.Context, id, provider, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	p.Provider = provider
	p.ProviderID = providerID
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.byID, id)
	cascade := s.onDelete
	s.mu.Unlock()

	if cascade != nil {
		cascade(id)
	}
	return nil
}
