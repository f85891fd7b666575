package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const principalColumns = `
	id, username, email, first_name, last_name,
	COALESCE(password_hash, ''), enabled, email_verified,
	COALESCE(provider, ''), COALESCE(provider_id, ''), created_at, updated_at
`

// PostgresStore persists principals in the principals table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p Principal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO principals (id, username, email, first_name, last_name, password_hash,
			enabled, email_verified, provider, provider_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
	`, p.ID, p.Username, p.Email, p.FirstName, p.LastName, p.PasswordHash,
		p.Enabled, p.EmailVerified, p.Provider, p.ProviderID, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert principal: %w", err)
	}

	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Principal, error) {
	return s.queryOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Principal, error) {
	return s.queryOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *PostgresStore) FindByUsernameOrEmail(ctx context.Context, identifier string) (Principal, error) {
	return s.queryOne(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE username = $1 OR LOWER(email) = LOWER($1)
	`, identifier)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx, `
		UPDATE principals
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, "update password", id, passwordHash, time.Now().UTC())
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string) error {
	return s.exec(ctx, `
		UPDATE principals
		SET enabled = TRUE, email_verified = TRUE, updated_at = $2
		WHERE id = $1
	`, "mark verified", id, time.Now().UTC())
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id, username, firstName, lastName string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE principals
		SET username = $2, first_name = $3, last_name = $4, updated_at = $5
		WHERE id = $1
	`, id, username, firstName, lastName, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update profile: %w", err)
	}

	return nil
}

func (s *PostgresStore) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	return s.exec(ctx, `
		UPDATE principals
		SET provider = $2, provider_id = $3, updated_at = $4
		WHERE id = $1
	`, "link provider", id, provider, providerID, time.Now().UTC())
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete principal rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...any) (Principal, error) {
	var p Principal
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.Username, &p.Email, &p.FirstName, &p.LastName,
		&p.PasswordHash, &p.Enabled, &p.EmailVerified,
		&p.Provider, &p.ProviderID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, fmt.Errorf("query principal: %w", err)
	}

	return p, nil
}

func (s *PostgresStore) exec(ctx context.Context, query, op string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
