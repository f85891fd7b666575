package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists refresh sessions in the refresh_sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sess RefreshSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, principal_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.PrincipalID, sess.TokenHash, sess.ExpiresAt.UTC(), sess.Revoked, sess.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh session: %w", err)
	}

	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, tokenHash string) (RefreshSession, error) {
	var sess RefreshSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, principal_id, token_hash, expires_at, revoked, created_at
		FROM refresh_sessions
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash).Scan(&sess.ID, &sess.PrincipalID, &sess.TokenHash, &sess.ExpiresAt, &sess.Revoked, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshSession{}, ErrInvalidRefreshToken
		}
		return RefreshSession{}, fmt.Errorf("query refresh session: %w", err)
	}

	return sess, nil
}

func (s *PostgresStore) Rotate(ctx context.Context, oldTokenHash, newID, newTokenHash string, newExpiresAt, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin rotation tx: %w", err)
	}
	defer tx.Rollback()

	var oldID string
	var principalID string
	var expiresAt time.Time
	var revoked bool
	err = tx.QueryRowContext(ctx, `
		SELECT id, principal_id, expires_at, revoked
		FROM refresh_sessions
		WHERE token_hash = $1
		FOR UPDATE
	`, oldTokenHash).Scan(&oldID, &principalID, &expiresAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("read refresh session: %w", err)
	}

	if revoked {
		return "", ErrInvalidRefreshToken
	}
	if !expiresAt.After(now.UTC()) {
		return "", ErrRefreshExpired
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE
		WHERE id = $1
	`, oldID)
	if err != nil {
		return "", fmt.Errorf("revoke rotated session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_sessions (id, principal_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`, newID, principalID, newTokenHash, newExpiresAt.UTC(), now.UTC())
	if err != nil {
		return "", fmt.Errorf("insert replacement session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit rotation tx: %w", err)
	}

	return principalID, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}

	return nil
}

func (s *PostgresStore) RevokeAllForPrincipal(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE
		WHERE principal_id = $1 AND revoked = FALSE
	`, principalID)
	if err != nil {
		return fmt.Errorf("revoke principal sessions: %w", err)
	}

	return nil
}

func (s *PostgresStore) CountActive(ctx context.Context, principalID string, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM refresh_sessions
		WHERE principal_id = $1 AND revoked = FALSE AND expires_at > $2
	`, principalID, now.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}

	return count, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM refresh_sessions
		WHERE expires_at < $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}

	return affected, nil
}
