package otp

import "time"

// Kind is the purpose a code is bound to. A code issued for one purpose
// can never verify another.
type Kind string

const (
	KindEmailVerification Kind = "EMAIL_VERIFICATION"
	KindPasswordReset     Kind = "PASSWORD_RESET"
)

// Code is one issued one-time code. Used, Expired and Attempts are
// independent axes: a code can be expired by policy (attempt cap) long
// before its time expiry, and a used code stays used forever.
type Code struct {
	ID          string
	Code        string
	Email       string
	Kind        Kind
	PrincipalID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	Expired     bool
	Attempts    int
}
