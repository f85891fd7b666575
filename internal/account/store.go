package account

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("principal not found")

	// ErrConflict means the username or email is already taken.
	ErrConflict = errors.New("username or email already exists")
)

// Store persists principals. Email matching is case-insensitive
// everywhere; callers pass identifiers already trimmed and lowercased.
type Store interface {
	Create(ctx context.Context, p Principal) error
	FindByID(ctx context.Context, id string) (Principal, error)
	FindByEmail(ctx context.Context, email string) (Principal, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (Principal, error)

	// UpdatePassword replaces the hash. Passing an empty hash is invalid.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// MarkVerified flips enabled and email_verified on.
	MarkVerified(ctx context.Context, id string) error

	UpdateProfile(ctx context.Context, id, username, firstName, lastName string) error
	LinkProvider(ctx context.Context, id, provider, providerID string) error

	// Delete removes the principal. Refresh sessions and OTP codes are
	// removed with it (FK cascade in Postgres).
	Delete(ctx context.Context, id string) error
}
