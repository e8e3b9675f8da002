package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("mail is not configured")

type Service interface {
	SendOTP(ctx context.Context, to string, code string) error
	SendNotification(ctx context.Context, to string, name string, message string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// SkipVerify disables TLS certificate checks, for local relays only.
	SkipVerify bool
}

// Sender is the part of gomail.Dialer the service needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type service struct {
	sender Sender
	from   string
}

// NewService builds an SMTP mailer. An empty host yields ErrNotConfigured so
// callers can run without mail.
func NewService(cfg Config) (Service, error) {
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return NewServiceWithSender(d, cfg.From), nil
}

func NewServiceWithSender(sender Sender, from string) Service {
	if from == "" {
		from = "LifeDrop <no-reply@lifedrop.app>"
	}
	return &service{sender: sender, from: from}
}

func (s *service) SendOTP(ctx context.Context, to string, code string) error {
	body := fmt.Sprintf(
		"<p>Your LifeDrop verification code is:</p><h2>%s</h2><p>The code expires in 10 minutes.</p>",
		code,
	)
	return s.send(ctx, to, "Your LifeDrop verification code", body)
}

func (s *service) SendNotification(ctx context.Context, to string, name string, message string) error {
	greeting := "Hello"
	if name = strings.TrimSpace(name); name != "" {
		greeting += " " + name
	}
	body := fmt.Sprintf("<p>%s,</p><p>%s</p><p>Open LifeDrop to respond.</p>", greeting, message)
	return s.send(ctx, to, "LifeDrop: "+subjectFor(message), body)
}

func (s *service) SendCustom(ctx context.Context, to string, subject string, content string) error {
	return s.send(ctx, to, subject, content)
}

func (s *service) send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

func subjectFor(message string) string {
	const max = 60
	if len(message) <= max {
		return message
	}
	return message[:max-3] + "..."
}
