package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shop-auth/internal/notify"
	"shop-auth/internal/observability"
	"shop-auth/internal/otp"
	"shop-auth/internal/session"
)

var (
	ErrAlreadyVerified = errors.New("account is already verified")
	ErrWrongPassword   = errors.New("current password is incorrect")
	ErrSamePassword    = errors.New("new password must differ from the current one")
)

// Service ties the OTP ledger to principal state transitions, and the
// session policy engine to credential changes.
type Service struct {
	store    Store
	ledger   *otp.Ledger
	sessions *session.Service
	notifier notify.Notifier
	logger   *observability.Logger
}

func NewService(store Store, ledger *otp.Ledger, sessions *session.Service, notifier notify.Notifier, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
	}
}

// SignUpInput carries the signup request fields, already shape-validated
// by the handler.
type SignUpInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// SignUp creates a disabled, unverified principal and issues its first
// email-verification code.
//
// The welcome mail is best-effort, but a failure to deliver the
// verification code propagates: a user with no way to receive the code
// cannot proceed, and the client should know.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Info, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Info{}, fmt.Errorf("generate principal id: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Info{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	p := Principal{
		ID:           id.String(),
		Username:     strings.ToLower(strings.TrimSpace(input.Username)),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, p); err != nil {
		return Info{}, err
	}

	if err := s.notifier.Welcome(p.Email, p.FirstName); err != nil {
		s.logger.Warn("welcome_mail_failed", map[string]any{"error": err.Error()})
	}

	if err := s.issueVerification(ctx, p); err != nil {
		return Info{}, err
	}

	return infoFrom(p), nil
}

// VerifyEmail consumes an email-verification code and activates the
// account.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	if err := s.ledger.Verify(ctx, email, code, otp.KindEmailVerification); err != nil {
		return err
	}

	p, err := s.store.FindByEmail(ctx, normalize(email))
	if err != nil {
		return err
	}

	if p.EmailVerified {
		return ErrAlreadyVerified
	}

	if err := s.store.MarkVerified(ctx, p.ID); err != nil {
		return err
	}

	if err := s.notifier.ActivationSuccess(p.Email, p.FirstName); err != nil {
		s.logger.Warn("activation_mail_failed", map[string]any{"error": err.Error()})
	}

	return nil
}

// ResendVerification issues a fresh verification code, invalidating any
// outstanding one. Rejected once the account is verified.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	p, err := s.store.FindByEmail(ctx, normalize(email))
	if err != nil {
		return err
	}

	if p.EmailVerified {
		return ErrAlreadyVerified
	}

	return s.issueVerification(ctx, p)
}

// ForgotPassword issues a password-reset code. An unknown email is a
// silent success so callers cannot probe which addresses are registered;
// the miss is logged for diagnosis.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	p, err := s.store.FindByEmail(ctx, normalize(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("password_reset_unknown_email", map[string]any{"email": normalize(email)})
			return nil
		}
		return err
	}

	code, err := s.ledger.Issue(ctx, p.ID, p.Email, otp.KindPasswordReset)
	if err != nil {
		return err
	}

	if err := s.notifier.PasswordResetCode(p.Email, code, p.FirstName); err != nil {
		return fmt.Errorf("send password reset code: %w", err)
	}

	return nil
}

// ResetPassword consumes a password-reset code, replaces the hash, and
// signs the principal out everywhere.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.ledger.Verify(ctx, email, code, otp.KindPasswordReset); err != nil {
		return err
	}

	p, err := s.store.FindByEmail(ctx, normalize(email))
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, p.ID, string(hash)); err != nil {
		return err
	}

	if err := s.sessions.LogoutAll(ctx, p.ID); err != nil {
		return err
	}

	if err := s.notifier.PasswordResetSuccess(p.Email, p.FirstName); err != nil {
		s.logger.Warn("reset_success_mail_failed", map[string]any{"error": err.Error()})
	}

	return nil
}

// ChangePassword replaces the hash for an authenticated principal after
// checking the current password, then signs them out everywhere.
func (s *Service) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	p, err := s.store.FindByID(ctx, principalID)
	if err != nil {
		return err
	}

	if p.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(currentPassword)); err != nil {
			return ErrWrongPassword
		}
		if currentPassword == newPassword {
			return ErrSamePassword
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, p.ID, string(hash)); err != nil {
		return err
	}

	return s.sessions.LogoutAll(ctx, p.ID)
}

// Profile returns the principal's caller-visible projection.
func (s *Service) Profile(ctx context.Context, principalID string) (Info, error) {
	p, err := s.store.FindByID(ctx, principalID)
	if err != nil {
		return Info{}, err
	}
	return infoFrom(p), nil
}

// UpdateProfile changes username and name fields. Blank fields keep
// their current value.
func (s *Service) UpdateProfile(ctx context.Context, principalID, username, firstName, lastName string) (Info, error) {
	p, err := s.store.FindByID(ctx, principalID)
	if err != nil {
		return Info{}, err
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		username = p.Username
	}
	firstName = strings.TrimSpace(firstName)
	if firstName == "" {
		firstName = p.FirstName
	}
	lastName = strings.TrimSpace(lastName)
	if lastName == "" {
		lastName = p.LastName
	}

	if err := s.store.UpdateProfile(ctx, p.ID, username, firstName, lastName); err != nil {
		return Info{}, err
	}

	return s.Profile(ctx, principalID)
}

// Delete revokes every session and removes the principal. OTP codes and
// refresh sessions go with it (FK cascade).
func (s *Service) Delete(ctx context.Context, principalID string) error {
	if err := s.sessions.LogoutAll(ctx, principalID); err != nil {
		return err
	}
	return s.store.Delete(ctx, principalID)
}

// ResolveFederated maps an identity asserted by an external provider to a
// local principal, creating or linking as needed, and mints a token pair.
// Federated identities arrive with a verified email, so the principal is
// enabled immediately.
func (s *Service) ResolveFederated(ctx context.Context, provider, providerID, email, firstName, lastName string) (session.LoginResult, error) {
	email = normalize(email)

	p, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if p.Provider == "" {
			if err := s.store.LinkProvider(ctx, p.ID, provider, providerID); err != nil {
				return session.LoginResult{}, err
			}
			p.Provider = provider
			p.ProviderID = providerID
		}
		if !p.EmailVerified {
			if err := s.store.MarkVerified(ctx, p.ID); err != nil {
				return session.LoginResult{}, err
			}
			p.Enabled = true
			p.EmailVerified = true
		}

	case errors.Is(err, ErrNotFound):
		p, err = s.createFederated(ctx, provider, providerID, email, firstName, lastName)
		if err != nil {
			return session.LoginResult{}, err
		}

	default:
		return session.LoginResult{}, err
	}

	return s.sessions.IssueForPrincipal(ctx, sessionPrincipal(p))
}

func (s *Service) createFederated(ctx context.Context, provider, providerID, email, firstName, lastName string) (Principal, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Principal{}, fmt.Errorf("generate principal id: %w", err)
	}

	now := time.Now().UTC()
	p := Principal{
		ID:            id.String(),
		Username:      federatedUsername(email, id.String()),
		Email:         email,
		FirstName:     strings.TrimSpace(firstName),
		LastName:      strings.TrimSpace(lastName),
		Enabled:       true,
		EmailVerified: true,
		Provider:      provider,
		ProviderID:    providerID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, p); err != nil {
		return Principal{}, err
	}

	if err := s.notifier.Welcome(p.Email, p.FirstName); err != nil {
		s.logger.Warn("welcome_mail_failed", map[string]any{"error": err.Error()})
	}

	return p, nil
}

func (s *Service) issueVerification(ctx context.Context, p Principal) error {
	code, err := s.ledger.Issue(ctx, p.ID, p.Email, otp.KindEmailVerification)
	if err != nil {
		return err
	}

	if err := s.notifier.VerificationCode(p.Email, code, p.FirstName); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}

	return nil
}

// federatedUsername derives a unique username from the email local part
// and a random suffix from the id, avoiding collisions at creation.
func federatedUsername(email, id string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return strings.ToLower(local + "-" + suffix)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
