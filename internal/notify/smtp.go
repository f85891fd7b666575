package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig carries the delivery settings for SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	AppName  string
	CodeTTL  time.Duration
}

// SMTPNotifier sends plain-text mail over authenticated SMTP.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) VerificationCode(email, code, firstName string) error {
	subject := fmt.Sprintf("%s - Verify your email", n.cfg.AppName)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Use the code below to verify your email address:\n\n"+
			"    %s\n\n"+
			"The code expires in %d minutes.\n\n"+
			"The %s Team",
		greeting(firstName), code, int(n.cfg.CodeTTL.Minutes()), n.cfg.AppName)

	return n.send(email, subject, body)
}

func (n *SMTPNotifier) PasswordResetCode(email, code, firstName string) error {
	subject := fmt.Sprintf("%s - Password reset code", n.cfg.AppName)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"We received a request to reset your password. Use this code:\n\n"+
			"    %s\n\n"+
			"The code expires in %d minutes. If you did not request a reset,\n"+
			"you can ignore this message.\n\n"+
			"The %s Team",
		greeting(firstName), code, int(n.cfg.CodeTTL.Minutes()), n.cfg.AppName)

	return n.send(email, subject, body)
}

func (n *SMTPNotifier) Welcome(email, firstName string) error {
	subject := fmt.Sprintf("Welcome to %s", n.cfg.AppName)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Welcome to %s! Verify your email to activate your account.\n\n"+
			"The %s Team",
		greeting(firstName), n.cfg.AppName, n.cfg.AppName)

	return n.send(email, subject, body)
}

func (n *SMTPNotifier) ActivationSuccess(email, firstName string) error {
	subject := fmt.Sprintf("%s - Account activated", n.cfg.AppName)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your account is now active. You can sign in.\n\n"+
			"The %s Team",
		greeting(firstName), n.cfg.AppName)

	return n.send(email, subject, body)
}

func (n *SMTPNotifier) PasswordResetSuccess(email, firstName string) error {
	subject := fmt.Sprintf("%s - Password changed", n.cfg.AppName)
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your password was just changed and all existing sessions were\n"+
			"signed out. If this was not you, reset your password immediately.\n\n"+
			"The %s Team",
		greeting(firstName), n.cfg.AppName)

	return n.send(email, subject, body)
}

// send performs the SMTP handshake and delivery. Headers are joined with
// CRLF per RFC 5322.
func (n *SMTPNotifier) send(toEmail, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	message := strings.Join([]string{
		fmt.Sprintf("From: %s", n.cfg.From),
		fmt.Sprintf("To: %s", toEmail),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		body,
	}, "\r\n")

	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)

	return smtp.SendMail(addr, auth, n.cfg.From, []string{toEmail}, []byte(message))
}

func greeting(firstName string) string {
	if strings.TrimSpace(firstName) == "" {
		return "there"
	}
	return firstName
}
