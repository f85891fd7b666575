package otp

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCodeNotFound    = errors.New("invalid or expired code")
	ErrCodeExpired     = errors.New("code has expired")
	ErrTooManyAttempts = errors.New("maximum verification attempts exceeded")
)

// Store persists issued codes.
type Store interface {
	// ReplaceActive invalidates every unused, unexpired code for the
	// (principal, kind) pair and inserts the replacement, atomically.
	// After it returns, the new row is the sole active code.
	ReplaceActive(ctx context.Context, code Code) error

	// FindActive returns the single active (unused, unexpired) code for
	// the email and kind, or ErrCodeNotFound.
	FindActive(ctx context.Context, email string, kind Kind) (Code, error)

	// Update persists used/expired/attempt mutations by id.
	Update(ctx context.Context, code Code) error

	// MarkExpired flags every code with ExpiresAt <= now. Idempotent.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteCreatedBefore hard-deletes codes past the retention window,
	// regardless of outcome.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
