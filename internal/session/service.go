package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shop-auth/internal/observability"
	"shop-auth/internal/token"
)

const (
	defaultRefreshTTL        = 7 * 24 * time.Hour
	defaultMaxActiveSessions = 5

	refreshTokenBytes = 48
)

var (
	// ErrInvalidCredentials covers unknown user and wrong password alike.
	// The distinction is logged, never returned.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrAccountDisabled  = errors.New("account is disabled")
	ErrEmailNotVerified = errors.New("email is not verified")
)

// PrincipalSource resolves login identifiers to principals. The account
// package adapts its store into this interface.
type PrincipalSource interface {
	// FindByUsernameOrEmail returns the principal whose username or email
	// matches the (already lowercased) identifier.
	FindByUsernameOrEmail(ctx context.Context, identifier string) (Principal, error)
}

// Service is the session policy engine: it authenticates logins, enforces
// the per-principal session cap, rotates refresh tokens, and performs
// single and bulk revocation.
type Service struct {
	store      Store
	principals PrincipalSource
	codec      *token.Codec
	logger     *observability.Logger

	refreshTTL        time.Duration
	maxActiveSessions int

	now func() time.Time
}

func NewService(store Store, principals PrincipalSource, codec *token.Codec, logger *observability.Logger) *Service {
	return &Service{
		store:             store,
		principals:        principals,
		codec:             codec,
		logger:            logger,
		refreshTTL:        defaultRefreshTTL,
		maxActiveSessions: defaultMaxActiveSessions,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithPolicy overrides the defaults. Zero values keep the current setting.
func (s *Service) WithPolicy(refreshTTL time.Duration, maxActiveSessions int) {
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
	if maxActiveSessions > 0 {
		s.maxActiveSessions = maxActiveSessions
	}
}

// Login authenticates and mints a fresh token pair, capping the number of
// concurrent sessions the principal may hold.
func (s *Service) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	password = strings.TrimSpace(password)
	if identifier == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	principal, err := s.principals.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		s.logger.Warn("login_failed", map[string]any{"cause": "unknown principal"})
		return LoginResult{}, ErrInvalidCredentials
	}

	if principal.PasswordHash == "" {
		// Federated-only account: no local password to check.
		s.logger.Warn("login_failed", map[string]any{"cause": "no local password", "principal_id": principal.ID})
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login_failed", map[string]any{"cause": "password mismatch", "principal_id": principal.ID})
		return LoginResult{}, ErrInvalidCredentials
	}

	if !principal.Enabled {
		return LoginResult{}, ErrAccountDisabled
	}
	if !principal.EmailVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	return s.IssueForPrincipal(ctx, principal)
}

// IssueForPrincipal mints a token pair for an already-authenticated
// principal. It is the shared tail of password login and federated login.
//
// Session cap policy: when the principal already holds maxActiveSessions
// active sessions, every one of them is revoked before the new session is
// created. Cap by revoke-all, not LRU eviction.
func (s *Service) IssueForPrincipal(ctx context.Context, principal Principal) (LoginResult, error) {
	now := s.now()

	if _, err := s.store.DeleteExpired(ctx, now); err != nil {
		// Purge is a liveness optimization; expired rows already fail
		// validation, so a failure here must not block login.
		s.logger.Error("session_purge_failed", map[string]any{"error": err.Error()})
	}

	active, err := s.store.CountActive(ctx, principal.ID, now)
	if err != nil {
		return LoginResult{}, err
	}
	if active >= s.maxActiveSessions {
		s.logger.Warn("session_cap_reached", map[string]any{
			"principal_id": principal.ID,
			"active":       active,
			"max":          s.maxActiveSessions,
		})
		if err := s.store.RevokeAllForPrincipal(ctx, principal.ID); err != nil {
			return LoginResult{}, err
		}
	}

	pair, err := s.mintPair(ctx, principal.ID, now)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{TokenPair: pair, User: principal.profile()}, nil
}

// Refresh rotates the presented refresh token and mints a new pair.
// An expired token is inert: it is reported expired, not rotated.
// Of two concurrent calls with the same token, exactly one succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	newPlain, err := randomToken(refreshTokenBytes)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	newID, err := uuid.NewV7()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate session id: %w", err)
	}

	now := s.now()
	principalID, err := s.store.Rotate(ctx, hashToken(refreshToken), newID.String(), hashToken(newPlain), now.Add(s.refreshTTL), now)
	if err != nil {
		return TokenPair{}, err
	}

	access, accessExp, err := s.codec.Issue(principalID, now)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: newPlain,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessExp.Sub(now).Seconds()),
	}, nil
}

// Logout revokes the named session. Unknown or already-revoked tokens are
// a no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	return s.store.Revoke(ctx, hashToken(refreshToken))
}

// LogoutAll revokes every session the principal owns. Also invoked by the
// account package whenever a credential changes.
func (s *Service) LogoutAll(ctx context.Context, principalID string) error {
	return s.store.RevokeAllForPrincipal(ctx, principalID)
}

// PurgeExpired hard-deletes sessions past expiry. Called by the sweeper.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.store.DeleteExpired(ctx, now)
}

func (s *Service) mintPair(ctx context.Context, principalID string, now time.Time) (TokenPair, error) {
	access, accessExp, err := s.codec.Issue(principalID, now)
	if err != nil {
		return TokenPair{}, err
	}

	refreshPlain, err := randomToken(refreshTokenBytes)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate session id: %w", err)
	}

	err = s.store.Create(ctx, RefreshSession{
		ID:          id.String(),
		PrincipalID: principalID,
		TokenHash:   hashToken(refreshPlain),
		ExpiresAt:   now.Add(s.refreshTTL),
		CreatedAt:   now,
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshPlain,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessExp.Sub(now).Seconds()),
	}, nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
