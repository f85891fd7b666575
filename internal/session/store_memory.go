package session

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store with the same semantics as PostgresStore,
// including linearizable rotation. It backs the unit tests.
type MemStore struct {
	mu       sync.Mutex
	byHash   map[string]*RefreshSession
	inserted int
}

func NewMemStore() *MemStore {
	return &MemStore{byHash: make(map[string]*RefreshSession)}
}

func (s *MemStore) Create(_ context.Context, sess RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := sess
	s.byHash[stored.TokenHash] = &stored
	s.inserted++
	return nil
}

func (s *MemStore) FindActive(_ context.Context, tokenHash string) (RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byHash[tokenHash]
	if !ok || sess.Revoked {
		return RefreshSession{}, ErrInvalidRefreshToken
	}

	return *sess, nil
}

func (s *MemStore) Rotate(_ context.Context, oldTokenHash, newID, newTokenHash string, newExpiresAt, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byHash[oldTokenHash]
	if !ok || old.Revoked {
		return "", ErrInvalidRefreshToken
	}
	if !old.ExpiresAt.After(now) {
		return "", ErrRefreshExpired
	}

	old.Revoked = true
	s.byHash[newTokenHash] = &RefreshSession{
		ID:          newID,
		PrincipalID: old.PrincipalID,
		TokenHash:   newTokenHash,
		ExpiresAt:   newExpiresAt,
		CreatedAt:   now,
	}
	s.inserted++

	return old.PrincipalID, nil
}

func (s *MemStore) Revoke(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.byHash[tokenHash]; ok {
		sess.Revoked = true
	}

	return nil
}

func (s *MemStore) RevokeAllForPrincipal(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.byHash {
		if sess.PrincipalID == principalID {
			sess.Revoked = true
		}
	}

	return nil
}

func (s *MemStore) CountActive(_ context.Context, principalID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sess := range s.byHash {
		if sess.PrincipalID == principalID && !sess.Revoked && sess.ExpiresAt.After(now) {
			count++
		}
	}

	return count, nil
}

func (s *MemStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for hash, sess := range s.byHash {
		if !sess.ExpiresAt.After(now) {
			delete(s.byHash, hash)
			affected++
		}
	}

	return affected, nil
}

// ActiveCount is CountActive without a context. Test helper.
func (s *MemStore) ActiveCount(principalID string, now time.Time) int {
	n, _ := s.CountActive(context.Background(), principalID, now)
	return n
}

// Len reports how many rows are physically present. Test helper.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}
