package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// Mailer dispatches transactional email. Implementations must be safe for
// concurrent use; callers treat failures as non-fatal side effects.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer sends through a plain SMTP relay. When the primary sender
// identity is rejected by the relay, the send is retried once with the
// fallback identity.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Fallback string
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	err := m.send(m.From, to, subject, htmlBody)
	if err != nil && m.Fallback != "" && isSenderRejected(err) {
		return m.send(m.Fallback, to, subject, htmlBody)
	}
	return err
}

func (m *SMTPMailer) send(from, to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		htmlBody,
	}, "\r\n")

	return smtp.SendMail(addr, auth, from, []string{to}, []byte(msg))
}

func isSenderRejected(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sender") || strings.Contains(msg, "not verified")
}

// LogMailer records sends instead of dispatching them. Used in development
// when no relay is configured.
type LogMailer struct {
	Log zerolog.Logger
}

func (m *LogMailer) Send(_ context.Context, to, subject, _ string) error {
	m.Log.Info().Str("to", to).Str("subject", subject).Msg("email send simulated")
	return nil
}
