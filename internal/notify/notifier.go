package notify

// Notifier delivers account lifecycle mail. The core treats every call
// except verification-code delivery as fire-and-forget: failures are
// logged by the caller, never surfaced to the user.
type Notifier interface {
	// VerificationCode sends an email-verification code.
	VerificationCode(email, code, firstName string) error

	// PasswordResetCode sends a password-reset code.
	PasswordResetCode(email, code, firstName string) error

	// Welcome greets a freshly signed-up principal.
	Welcome(email, firstName string) error

	// ActivationSuccess confirms the account is now active.
	ActivationSuccess(email, firstName string) error

	// PasswordResetSuccess confirms a completed password reset.
	PasswordResetSuccess(email, firstName string) error
}
