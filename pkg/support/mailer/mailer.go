// Package mailer delivers escalation notifications over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Mailer sends a notification to the configured recipients.
type Mailer struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
	ssl        bool
	logger     *slog.Logger
}

// Options configures the SMTP relay.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string

	// From defaults to Username when empty.
	From string

	// Recipients receive every notification.
	Recipients []string

	// SSL selects implicit TLS (port 465 style submission).
	SSL bool
}

// New creates a Mailer.
func New(opts Options, logger *slog.Logger) *Mailer {
	if opts.From == "" {
		opts.From = opts.Username
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Mailer{
		host:       opts.Host,
		port:       opts.Port,
		username:   opts.Username,
		password:   opts.Password,
		from:       opts.From,
		recipients: opts.Recipients,
		ssl:        opts.SSL,
		logger:     logger.With("component", "mailer"),
	}
}

// Configured reports whether the relay and destination are set.
func (m *Mailer) Configured() bool {
	return m.host != "" && m.username != "" && len(m.recipients) > 0
}

// Send delivers a plain-text message to all configured recipients.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if !m.Configured() {
		return fmt.Errorf("mail relay not configured")
	}

	msg := strings.Builder{}
	msg.WriteString("From: " + m.from + "\r\n")
	msg.WriteString("To: " + strings.Join(m.recipients, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	var err error
	if m.ssl {
		err = m.sendTLS(addr, auth, []byte(msg.String()))
	} else {
		err = smtp.SendMail(addr, auth, m.from, m.recipients, []byte(msg.String()))
	}
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Info("notification sent", "recipients", len(m.recipients), "subject", subject)
	return nil
}

// sendTLS performs submission over an implicit-TLS connection, which
// net/smtp's SendMail does not support directly.
func (m *Mailer) sendTLS(addr string, auth smtp.Auth, msg []byte) error {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: m.host})
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range m.recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}
