package token

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-auth/internal/observability"
)

func testCodec(ttl time.Duration) *Codec {
	return NewCodec("test-secret", ttl, observability.NewLogger("test"))
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	codec := testCodec(15 * time.Minute)
	now := time.Now().UTC()

	encoded, exp, err := codec.Issue("principal-1", now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(15*time.Minute), exp, time.Second)

	claims, err := codec.Verify(encoded)
	require.NoError(t, err)
	assert.Equal(t, "principal-1", claims.PrincipalID)
	assert.WithinDuration(t, now, claims.IssuedAt, time.Second)
	assert.WithinDuration(t, exp, claims.ExpiresAt, time.Second)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	codec := testCodec(time.Minute)
	encoded, _, err := codec.Issue("principal-1", time.Now().UTC().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = codec.Verify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	other := NewCodec("other-secret", time.Minute, observability.NewLogger("test"))
	encoded, _, err := other.Issue("principal-1", time.Now().UTC())
	require.NoError(t, err)

	_, err = testCodec(time.Minute).Verify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	_, err := testCodec(time.Minute).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsUnsignedAlgorithm(t *testing.T) {
	t.Parallel()

	claims := jwt.MapClaims{
		"sub": "principal-1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"typ": "access",
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = testCodec(time.Minute).Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsWrongType(t *testing.T) {
	t.Parallel()

	claims := jwt.MapClaims{
		"sub": "principal-1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"typ": "refresh",
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = testCodec(time.Minute).Verify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsMissingSubject(t *testing.T) {
	t.Parallel()

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"typ": "access",
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = testCodec(time.Minute).Verify(encoded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer abc", want: "abc"},
		{name: "missing header", header: "", wantErr: ErrMissingToken},
		{name: "wrong scheme", header: "Basic abc", wantErr: ErrMissingToken},
		{name: "scheme only", header: "Bearer", wantErr: ErrMissingToken},
		{name: "blank token", header: "Bearer   ", wantErr: ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := ExtractBearer(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	codec := testCodec(time.Minute)
	encoded, _, err := codec.Issue("principal-9", time.Now().UTC())
	require.NoError(t, err)

	var seenPrincipal string
	protected := codec.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPrincipal = PrincipalID(r.Context())
	}))

	serve := func(authorization string) int {
		seenPrincipal = ""
		r := httptest.NewRequest("GET", "/account/me", nil)
		if authorization != "" {
			r.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("Bearer "+encoded))
	assert.Equal(t, "principal-9", seenPrincipal)

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Empty(t, seenPrincipal)

	assert.Equal(t, http.StatusUnauthorized, serve("Bearer garbage"))
	assert.Empty(t, seenPrincipal)
}
