package session

import "time"

// RefreshSession is one server-side refresh credential. Only the SHA-256
// of the opaque token is stored; the plaintext exists client-side only.
// A revoked session is never un-revoked.
type RefreshSession struct {
	ID          string
	PrincipalID string
	TokenHash   string
	ExpiresAt   time.Time
	Revoked     bool
	CreatedAt   time.Time
}

// TokenPair is the caller-visible result of login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Profile is the principal summary returned alongside a token pair.
// Fields are copied one by one; the password hash never crosses this
// boundary.
type Profile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	EmailVerified bool   `json:"email_verified"`
}

// LoginResult is a token pair plus the owning principal's profile.
type LoginResult struct {
	TokenPair
	User Profile `json:"user"`
}

// Principal is the view of an account the policy engine needs to
// authenticate and mint credentials. The account package adapts its own
// model into this one.
type Principal struct {
	ID            string
	Username      string
	Email         string
	FirstName     string
	LastName      string
	PasswordHash  string
	Enabled       bool
	EmailVerified bool
}

func (p Principal) profile() Profile {
	return Profile{
		ID:            p.ID,
		Username:      p.Username,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		EmailVerified: p.EmailVerified,
	}
}
