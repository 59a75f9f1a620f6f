// Package email sends account verification mail over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"
)

const (
	smtpTimeout         = 30 * time.Second
	verificationSubject = "Email Verification"
)

var errHeaderInjection = errors.New("address contains a line break")

type SMTPService struct {
	host     string
	port     int
	username string
	password string
	from     string
	apiURL   string
}

// NewSMTPService builds a mailer whose verification links point at apiURL,
// the public base of the /mrsh/api routes.
func NewSMTPService(host string, port int, username, password, from, apiURL string) *SMTPService {
	return &SMTPService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		apiURL:   strings.TrimRight(apiURL, "/"),
	}
}

// SendVerification mails the links that confirm or deny a registration.
func (s *SMTPService) SendVerification(to, code string) error {
	if strings.ContainsAny(to, "\r\n") {
		return errHeaderInjection
	}
	return s.send(to, verificationSubject, s.verificationBody(code))
}

func (s *SMTPService) verificationBody(code string) string {
	q := url.QueryEscape(code)
	return fmt.Sprintf("MRSH sign-up is almost over. All that`s left is to verify your e-mail.\n"+
		"To do that, please follow this link:\n%s/verify_email?code=%s\n\n"+
		"If you didn`t create an account, please click on the following link:\n%s/deny_verification?code=%s",
		s.apiURL, q, s.apiURL, q)
}

func (s *SMTPService) send(to, subject, body string) error {
	msg := s.buildMessage(to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	ctx, cancel := context.WithTimeout(context.Background(), smtpTimeout)
	defer cancel()

	dialer := net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: s.host}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	} else if s.port != 25 && s.port != 1025 {
		return fmt.Errorf("STARTTLS not available on port %d (required for secure auth)", s.port)
	}

	if s.username != "" && s.password != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("SMTP MAIL command: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command: %w", err)
	}

	_, err = wc.Write([]byte(msg))
	if err != nil {
		wc.Close()
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	if err := client.Quit(); err != nil {
		slog.Warn("smtp QUIT command failed", "component", "email", "error", err)
	}

	return nil
}

func (s *SMTPService) buildMessage(to, subject, body string) string {
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n%s",
		s.from, to, subject, body)
}
