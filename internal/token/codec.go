package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shop-auth/internal/observability"
)

var (
	// ErrInvalidToken covers every verification failure: malformed input,
	// expiry, unsupported algorithm, and bad signature. Callers only see
	// this one; logs carry the distinction.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the identity carried by an access token.
type Claims struct {
	PrincipalID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Codec signs and verifies short-lived access tokens (HS256).
// It is stateless: verification depends only on the token, the key,
// and the clock.
type Codec struct {
	secret []byte
	ttl    time.Duration
	logger *observability.Logger
}

func NewCodec(secret string, ttl time.Duration, logger *observability.Logger) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl, logger: logger}
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue mints an access token for the principal, expiring after the codec TTL.
func (c *Codec) Issue(principalID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.ttl)
	claims := jwt.MapClaims{
		"sub": principalID,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"typ": "access",
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return encoded, exp, nil
}

// Verify checks signature and expiry and returns the embedded claims.
func (c *Codec) Verify(tokenStr string) (Claims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		c.logVerifyFailure(err)
		return Claims{}, ErrInvalidToken
	}

	if typ, _ := claims["typ"].(string); typ != "access" {
		c.logger.Warn("token_verify_failed", map[string]any{"cause": "wrong token type"})
		return Claims{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		c.logger.Warn("token_verify_failed", map[string]any{"cause": "missing subject"})
		return Claims{}, ErrInvalidToken
	}

	out := Claims{PrincipalID: sub}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}

// logVerifyFailure records which of the collapsed failure classes occurred.
func (c *Codec) logVerifyFailure(err error) {
	cause := "invalid"
	switch {
	case err == nil:
		cause = "token not valid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		cause = "malformed"
	case errors.Is(err, jwt.ErrTokenExpired):
		cause = "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		cause = "signature invalid"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		cause = "unverifiable"
	}

	c.logger.Warn("token_verify_failed", map[string]any{"cause": cause})
}
