// Package mail sends transactional email. The SMTP implementation covers
// production; Noop is for local development and tests.
package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers a single message to a single recipient. An empty htmlBody
// sends a text-only message.
type Mailer interface {
	Send(recipient, subject, textBody, htmlBody string) error
}

// SMTPConfig carries the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through a plain SMTP relay with optional AUTH.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer validates the config and constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("mail: host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) Send(recipient, subject, textBody, htmlBody string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return errors.New("mail: recipient is required")
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := buildMessage(m.cfg.From, recipient, subject, textBody, htmlBody)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

const altBoundary = "usermgmt-alt-boundary"

func buildMessage(from, to, subject, textBody, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	if htmlBody == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		b.WriteString("\r\n")
		b.WriteString(textBody)
		return []byte(b.String())
	}
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", altBoundary)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(textBody)
	fmt.Fprintf(&b, "\r\n--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(htmlBody)
	fmt.Fprintf(&b, "\r\n--%s--\r\n", altBoundary)
	return []byte(b.String())
}

// Noop discards every message. Useful when no relay is configured.
type Noop struct{}

func (Noop) Send(recipient, subject, textBody, htmlBody string) error { return nil }
