package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/ignite/adops-console/internal/settings"
)

// SMTPSender delivers email through the SMTP relay configured in the
// settings store. Credentials are read per send so rotation through
// the settings API takes effect immediately.
type SMTPSender struct {
	settings interface{ Get(string) string }
}

// NewSMTPSender creates an email sender over the settings store.
func NewSMTPSender(src interface{ Get(string) string }) *SMTPSender {
	return &SMTPSender{settings: src}
}

func (s *SMTPSender) host() string {
	if h := s.settings.Get(settings.KeySMTPHost); h != "" {
		return h
	}
	return "smtp.gmail.com"
}

func (s *SMTPSender) port() int {
	if p, err := strconv.Atoi(s.settings.Get(settings.KeySMTPPort)); err == nil && p > 0 {
		return p
	}
	return 587
}

// Send delivers an HTML email. The context bounds only the setup; the
// SMTP dialog itself uses the library's own timeouts.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	user := s.settings.Get(settings.KeySMTPUser)
	password := s.settings.Get(settings.KeySMTPPassword)
	if user == "" || password == "" {
		return fmt.Errorf("smtp credentials not configured")
	}

	addr := fmt.Sprintf("%s:%d", s.host(), s.port())
	auth := smtp.PlainAuth("", user, password, s.host())

	var msg strings.Builder
	msg.WriteString("From: " + user + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	if err := smtp.SendMail(addr, auth, user, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail via %s: %w", addr, err)
	}
	return nil
}
