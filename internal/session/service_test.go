package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"shop-auth/internal/observability"
	"shop-auth/internal/token"
)

type stubPrincipals struct {
	byIdentifier map[string]Principal
}

func (s *stubPrincipals) FindByUsernameOrEmail(_ context.Context, identifier string) (Principal, error) {
	p, ok := s.byIdentifier[identifier]
	if !ok {
		return Principal{}, ErrInvalidCredentials
	}
	return p, nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hashed)
}

func newTestService(t *testing.T, store *MemStore, principals ...Principal) *Service {
	t.Helper()

	source := &stubPrincipals{byIdentifier: make(map[string]Principal)}
	for _, p := range principals {
		source.byIdentifier[p.Username] = p
		source.byIdentifier[p.Email] = p
	}

	logger := observability.NewLogger("test")
	codec := token.NewCodec("test-secret", 15*time.Minute, logger)
	return NewService(store, source, codec, logger)
}

func alice(t *testing.T) Principal {
	return Principal{
		ID:            "alice-id",
		Username:      "alice",
		Email:         "alice@example.com",
		PasswordHash:  hashPassword(t, "correct horse"),
		Enabled:       true,
		EmailVerified: true,
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	result, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, int64(900), result.ExpiresIn)
	assert.Equal(t, "alice-id", result.User.ID)
	assert.Equal(t, 1, store.ActiveCount("alice-id", time.Now().UTC()))

	// email works as identifier too, case-insensitively
	_, err = svc.Login(ctx, "ALICE@example.COM", "correct horse")
	assert.NoError(t, err)
}

func TestLogin_UniformRejection(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, NewMemStore(), alice(t))
	ctx := context.Background()

	_, unknownErr := svc.Login(ctx, "nobody", "whatever")
	_, wrongPassErr := svc.Login(ctx, "alice", "wrong")

	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongPassErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr, wrongPassErr)

	_, err := svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DisabledAndUnverified(t *testing.T) {
	t.Parallel()

	disabled := alice(t)
	disabled.Enabled = false

	unverified := Principal{
		ID:           "bob-id",
		Username:     "bob",
		Email:        "bob@example.com",
		PasswordHash: hashPassword(t, "hunter22"),
		Enabled:      true,
	}

	svc := newTestService(t, NewMemStore(), disabled, unverified)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "correct horse")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = svc.Login(ctx, "bob", "hunter22")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestLogin_FederatedOnlyAccountHasNoPassword(t *testing.T) {
	t.Parallel()

	federated := alice(t)
	federated.PasswordHash = ""

	svc := newTestService(t, NewMemStore(), federated)

	_, err := svc.Login(context.Background(), "alice", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_SessionCapRevokesAll(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	svc.WithPolicy(0, 3)
	ctx := context.Background()
	now := time.Now().UTC()

	tokens := make([]string, 0, 4)
	for i := 0; i < 3; i++ {
		result, err := svc.Login(ctx, "alice", "correct horse")
		require.NoError(t, err)
		tokens = append(tokens, result.RefreshToken)
	}
	require.Equal(t, 3, store.ActiveCount("alice-id", now))

	// the cap-breaching login revokes everything and leaves one session
	result, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, 1, store.ActiveCount("alice-id", now))

	for _, old := range tokens {
		_, err := svc.Refresh(ctx, old)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}

	_, err = svc.Refresh(ctx, result.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_RotatesToken(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// the old token is dead after rotation
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// the replacement still works
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_UnknownAndEmptyToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, NewMemStore(), alice(t))
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Refresh(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_ExpiredTokenIsInert(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	login, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }

	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshExpired)

	// expiry reporting writes nothing; the row is still there, unrevoked
	sess, err := store.FindActive(ctx, hashToken(login.RefreshToken))
	require.NoError(t, err)
	assert.False(t, sess.Revoked)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, login.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken))
	_, err = svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// idempotent for unknown and already-revoked tokens
	assert.NoError(t, svc.Logout(ctx, login.RefreshToken))
	assert.NoError(t, svc.Logout(ctx, "never-existed"))
	assert.NoError(t, svc.Logout(ctx, ""))
}

func TestLogoutAll(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	require.NoError(t, svc.LogoutAll(ctx, "alice-id"))

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestPurgeExpired(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	svc := newTestService(t, store, alice(t))
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	_, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	purged, err := svc.PurgeExpired(ctx, base.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 0, store.Len())
}
