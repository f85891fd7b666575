package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists codes in the otp_codes table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ReplaceActive(ctx context.Context, code Code) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin otp replace tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE otp_codes
		SET expired = TRUE
		WHERE principal_id = $1 AND kind = $2 AND used = FALSE AND expired = FALSE
	`, code.PrincipalID, code.Kind)
	if err != nil {
		return fmt.Errorf("invalidate prior codes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO otp_codes (id, code, email, kind, principal_id, created_at, expires_at, used, expired, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, code.ID, code.Code, code.Email, code.Kind, code.PrincipalID,
		code.CreatedAt.UTC(), code.ExpiresAt.UTC(), code.Used, code.Expired, code.Attempts)
	if err != nil {
		return fmt.Errorf("insert otp code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit otp replace tx: %w", err)
	}

	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, email string, kind Kind) (Code, error) {
	var c Code
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, email, kind, principal_id, created_at, expires_at, used, expired, attempts
		FROM otp_codes
		WHERE email = $1 AND kind = $2 AND used = FALSE AND expired = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, email, kind).Scan(&c.ID, &c.Code, &c.Email, &c.Kind, &c.PrincipalID,
		&c.CreatedAt, &c.ExpiresAt, &c.Used, &c.Expired, &c.Attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Code{}, ErrCodeNotFound
		}
		return Code{}, fmt.Errorf("query active otp: %w", err)
	}

	return c, nil
}

func (s *PostgresStore) Update(ctx context.Context, code Code) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE otp_codes
		SET used = $2, expired = $3, attempts = $4
		WHERE id = $1
	`, code.ID, code.Used, code.Expired, code.Attempts)
	if err != nil {
		return fmt.Errorf("update otp code: %w", err)
	}

	return nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE otp_codes
		SET expired = TRUE
		WHERE expires_at <= $1 AND expired = FALSE
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("mark expired otps: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark expired otps rows affected: %w", err)
	}

	return affected, nil
}

func (s *PostgresStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM otp_codes
		WHERE created_at <= $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old otps: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old otps rows affected: %w", err)
	}

	return affected, nil
}
