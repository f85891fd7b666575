package notify

import "shop-auth/internal/observability"

// LogNotifier writes the notification to the log instead of sending mail.
// Used when SMTP is unconfigured (local development); codes are logged so
// flows stay testable end to end.
type LogNotifier struct {
	logger *observability.Logger
}

func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) VerificationCode(email, code, firstName string) error {
	n.logger.Info("notify_verification_code", map[string]any{"email": email, "code": code})
	return nil
}

func (n *LogNotifier) PasswordResetCode(email, code, firstName string) error {
	n.logger.Info("notify_password_reset_code", map[string]any{"email": email, "code": code})
	return nil
}

func (n *LogNotifier) Welcome(email, firstName string) error {
	n.logger.Info("notify_welcome", map[string]any{"email": email})
	return nil
}

func (n *LogNotifier) ActivationSuccess(email, firstName string) error {
	n.logger.Info("notify_activation_success", map[string]any{"email": email})
	return nil
}

func (n *LogNotifier) PasswordResetSuccess(email, firstName string) error {
	n.logger.Info("notify_password_reset_success", map[string]any{"email": email})
	return nil
}
