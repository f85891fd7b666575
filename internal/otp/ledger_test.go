package otp

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-auth/internal/observability"
)

func newTestLedger(store *MemStore) *Ledger {
	return NewLedger(store, observability.NewLogger("test"))
}

func TestGenerate_Format(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for i := 0; i < 100; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		assert.True(t, IsWellFormed(code))
	}
}

func TestIsWellFormed(t *testing.T) {
	t.Parallel()

	assert.True(t, IsWellFormed("A1B2C3"))
	assert.False(t, IsWellFormed("a1b2c3"))
	assert.False(t, IsWellFormed("A1B2C"))
	assert.False(t, IsWellFormed("A1B2C34"))
	assert.False(t, IsWellFormed("A1B2C!"))
	assert.False(t, IsWellFormed(""))
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ledger := newTestLedger(store)
	ctx := context.Background()

	code, err := ledger.Issue(ctx, "p1", "User@Example.com", KindEmailVerification)
	require.NoError(t, err)
	require.Len(t, code, 6)

	// lookup is case-insensitive on email and the submitted code
	err = ledger.Verify(ctx, "user@example.COM", code, KindEmailVerification)
	assert.NoError(t, err)
}

func TestVerify_SingleUse(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(NewMemStore())
	ctx := context.Background()

	code, err := ledger.Issue(ctx, "p1", "a@b.com", KindPasswordReset)
	require.NoError(t, err)

	require.NoError(t, ledger.Verify(ctx, "a@b.com", code, KindPasswordReset))
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", code, KindPasswordReset), ErrCodeNotFound)
}

func TestVerify_WrongKind(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(NewMemStore())
	ctx := context.Background()

	code, err := ledger.Issue(ctx, "p1", "a@b.com", KindEmailVerification)
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", code, KindPasswordReset), ErrCodeNotFound)
}

func TestIssue_InvalidatesPriorCode(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(NewMemStore())
	ctx := context.Background()

	first, err := ledger.Issue(ctx, "p1", "a@b.com", KindEmailVerification)
	require.NoError(t, err)
	second, err := ledger.Issue(ctx, "p1", "a@b.com", KindEmailVerification)
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", first, KindEmailVerification), ErrCodeNotFound)
	}
	assert.NoError(t, ledger.Verify(ctx, "a@b.com", second, KindEmailVerification))
}

func TestVerify_AttemptCap(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(NewMemStore())
	ledger.WithPolicy(0, 3, 0)
	ctx := context.Background()

	code, err := ledger.Issue(ctx, "p1", "a@b.com", KindEmailVerification)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", wrong, KindEmailVerification), ErrCodeNotFound)
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", wrong, KindEmailVerification), ErrCodeNotFound)
	// third wrong attempt hits the cap
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", wrong, KindEmailVerification), ErrTooManyAttempts)
	// the code is burned even with the right value
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", code, KindEmailVerification), ErrCodeNotFound)
}

func TestVerify_MalformedSubmission_DoesNotCountAttempt(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ledger := newTestLedger(store)
	ctx := context.Background()

	code, err := ledger.Issue(ctx, "p1", "a@b.com", KindEmailVerification)
	require.NoError(t, err)

	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", "!!", KindEmailVerification), ErrCodeNotFound)
	assert.NoError(t, ledger.Verify(ctx, "a@b.com", code, KindEmailVerification))
}

func TestVerify_TimeExpiry(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(NewMemStore())
	ctx := context.Background()

	base := time.Now().UTC()
	ledger.now = func() time.Time { return base }

	code, err := ledger.Issue(ctx, "p1", "a@b.com", KindPasswordReset)
	require.NoError(t, err)

	ledger.now = func() time.Time { return base.Add(11 * time.Minute) }
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", code, KindPasswordReset), ErrCodeExpired)
	// the expired row is marked, so a second try no longer finds it
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", code, KindPasswordReset), ErrCodeNotFound)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ledger := newTestLedger(store)
	ctx := context.Background()

	base := time.Now().UTC()
	ledger.now = func() time.Time { return base }

	_, err := ledger.Issue(ctx, "p1", "a@b.com", KindEmailVerification)
	require.NoError(t, err)
	_, err = ledger.Issue(ctx, "p2", "c@d.com", KindPasswordReset)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	// past the ttl but inside retention: rows are marked, not deleted
	require.NoError(t, ledger.Sweep(ctx, base.Add(time.Hour)))
	assert.Equal(t, 2, store.Len())
	assert.ErrorIs(t, ledger.Verify(ctx, "a@b.com", "AAAAAA", KindEmailVerification), ErrCodeNotFound)

	// past retention: rows are gone
	require.NoError(t, ledger.Sweep(ctx, base.Add(25*time.Hour)))
	assert.Equal(t, 0, store.Len())
}
