package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshExpired      = errors.New("refresh token expired")
)

// Store persists refresh sessions.
type Store interface {
	Create(ctx context.Context, s RefreshSession) error

	// FindActive returns the non-revoked session for the token hash, or
	// ErrInvalidRefreshToken. Callers must still check expiry.
	FindActive(ctx context.Context, tokenHash string) (RefreshSession, error)

	// Rotate atomically revokes the old session and inserts its
	// replacement for the same principal, returning the principal id.
	// Linearizable per token: of two concurrent calls with the same
	// token, exactly one succeeds and the other gets
	// ErrInvalidRefreshToken. An expired session is inert: Rotate fails
	// with ErrRefreshExpired and writes nothing.
	Rotate(ctx context.Context, oldTokenHash, newID, newTokenHash string, newExpiresAt, now time.Time) (string, error)

	// Revoke marks the session revoked. Unknown or already-revoked
	// tokens are a no-op.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllForPrincipal revokes every non-revoked session the
	// principal owns.
	RevokeAllForPrincipal(ctx context.Context, principalID string) error

	// CountActive counts non-revoked, non-expired sessions.
	CountActive(ctx context.Context, principalID string, now time.Time) (int, error)

	// DeleteExpired hard-deletes sessions past expiry. A liveness
	// optimization only: expired rows already fail validation.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
