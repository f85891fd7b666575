package otp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shop-auth/internal/observability"
)

const (
	defaultTTL         = 10 * time.Minute
	defaultMaxAttempts = 5
	defaultRetention   = 24 * time.Hour
)

// Ledger issues and verifies one-time codes and enforces the single-active,
// single-use, attempt-capped policy.
type Ledger struct {
	store       Store
	logger      *observability.Logger
	ttl         time.Duration
	maxAttempts int
	retention   time.Duration

	now func() time.Time
}

func NewLedger(store Store, logger *observability.Logger) *Ledger {
	return &Ledger{
		store:       store,
		logger:      logger,
		ttl:         defaultTTL,
		maxAttempts: defaultMaxAttempts,
		retention:   defaultRetention,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithPolicy overrides the defaults. Zero values keep the current setting.
func (l *Ledger) WithPolicy(ttl time.Duration, maxAttempts int, retention time.Duration) {
	if ttl > 0 {
		l.ttl = ttl
	}
	if maxAttempts > 0 {
		l.maxAttempts = maxAttempts
	}
	if retention > 0 {
		l.retention = retention
	}
}

// Issue invalidates every prior active code for the (principal, kind) pair
// and persists a fresh one. Returns the plaintext code for delivery.
func (l *Ledger) Issue(ctx context.Context, principalID, email string, kind Kind) (string, error) {
	code, err := Generate()
	if err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate otp id: %w", err)
	}

	now := l.now()
	row := Code{
		ID:          id.String(),
		Code:        code,
		Email:       normalizeEmail(email),
		Kind:        kind,
		PrincipalID: principalID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(l.ttl),
	}

	if err := l.store.ReplaceActive(ctx, row); err != nil {
		return "", err
	}

	return code, nil
}

// Verify consumes the active code for (email, kind).
//
// Every attempt against the active code counts toward the attempt cap,
// including attempts with the wrong code string. A correct code is
// single-use: the used flag blocks replay even before time expiry.
func (l *Ledger) Verify(ctx context.Context, email, submitted string, kind Kind) error {
	submitted = strings.ToUpper(strings.TrimSpace(submitted))
	if !IsWellFormed(submitted) {
		return ErrCodeNotFound
	}

	row, err := l.store.FindActive(ctx, normalizeEmail(email), kind)
	if err != nil {
		return err
	}

	now := l.now()
	if !now.Before(row.ExpiresAt) {
		row.Expired = true
		if err := l.store.Update(ctx, row); err != nil {
			return err
		}
		return ErrCodeExpired
	}

	if row.Attempts >= l.maxAttempts {
		row.Expired = true
		if err := l.store.Update(ctx, row); err != nil {
			return err
		}
		return ErrTooManyAttempts
	}

	row.Attempts++

	if row.Code != submitted {
		if row.Attempts >= l.maxAttempts {
			row.Expired = true
		}
		if err := l.store.Update(ctx, row); err != nil {
			return err
		}
		if row.Expired {
			return ErrTooManyAttempts
		}
		return ErrCodeNotFound
	}

	row.Used = true
	if err := l.store.Update(ctx, row); err != nil {
		return err
	}

	return nil
}

// Sweep marks time-expired codes and hard-deletes rows past the retention
// window. Best-effort: the first failure is returned but the sweep never
// panics, and the caller is expected to log and move on.
func (l *Ledger) Sweep(ctx context.Context, now time.Time) error {
	marked, err := l.store.MarkExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("mark expired otps: %w", err)
	}

	deleted, err := l.store.DeleteCreatedBefore(ctx, now.Add(-l.retention))
	if err != nil {
		return fmt.Errorf("purge old otps: %w", err)
	}

	if marked > 0 || deleted > 0 {
		l.logger.Info("otp_sweep", map[string]any{"marked_expired": marked, "deleted": deleted})
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
