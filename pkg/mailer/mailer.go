package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/aoabd/course-api/pkg/config"
)

// Mailer sends notification emails. Implementations are fire-and-forget from
// the caller's perspective; delivery failures are logged, never fatal.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers mail through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTP builds a mailer from config.
func NewSMTP(cfg config.MailConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

// Send delivers a single plain-text message.
func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// Noop discards all messages. Used when mail is disabled.
type Noop struct{}

// Send drops the message.
func (Noop) Send(string, string, string) error { return nil }
