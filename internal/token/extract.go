package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingToken means the request carried no bearer credential at all,
// as opposed to one that failed verification.
var ErrMissingToken = errors.New("authorization token is required")

type contextKey struct{}

var principalKey contextKey

// ExtractBearer pulls the token out of the Authorization header.
// Absent header or a non-Bearer scheme fails with ErrMissingToken.
func ExtractBearer(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return "", ErrMissingToken
	}

	return tokenStr, nil
}

// ResolvePrincipalID extracts and verifies the bearer token, returning the
// subject. Verification failures surface as ErrInvalidToken.
func (c *Codec) ResolvePrincipalID(r *http.Request) (string, error) {
	tokenStr, err := ExtractBearer(r)
	if err != nil {
		return "", err
	}

	claims, err := c.Verify(tokenStr)
	if err != nil {
		return "", err
	}

	return claims.PrincipalID, nil
}

// Middleware rejects unauthenticated requests and stores the principal id
// in the request context for downstream handlers.
func (c *Codec) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principalID, err := c.ResolvePrincipalID(r)
		if err != nil {
			if errors.Is(err, ErrMissingToken) {
				writeError(w, http.StatusUnauthorized, "missing authorization token")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipalID(r.Context(), principalID)))
	})
}

func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey, principalID)
}

// PrincipalID returns the authenticated principal id set by Middleware,
// or "" when the request was not authenticated.
func PrincipalID(ctx context.Context) string {
	id, _ := ctx.Value(principalKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
