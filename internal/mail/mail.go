// Package mail sends account email over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/caarlos0/env/v11"
	"github.com/dajohi/goemail"
)

// ErrNoRecipients is returned when Send is called without any address.
var ErrNoRecipients = errors.New("no recipients")

// Mailer delivers a plain text message.
type Mailer interface {
	Send(ctx context.Context, from, subject, body string, to []string) error
}

type Config struct {
	Host       string `env:"SMTP_HOST"`
	User       string `env:"SMTP_USER"`
	Password   string `env:"SMTP_PASSWORD"`
	From       string `env:"MAIL_FROM" envDefault:"webmaster@localhost"`
	SkipVerify bool   `env:"SMTP_SKIP_VERIFY"`
}

// ConfigFromEnv reads SMTP settings from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse mail env: %w", err)
	}
	return cfg, nil
}

// SMTPMailer is a Mailer backed by an SMTPS server.
type SMTPMailer struct {
	client   *goemail.SMTP
	from     *mail.Address
	disabled bool
}

// NewSMTPMailer builds a mailer. Mail is disabled when host, user or
// password is missing; Send then returns nil without sending anything.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address: %w", err)
	}
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return &SMTPMailer{from: from, disabled: true}, nil
	}

	u := &url.URL{
		Scheme: "smtps",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host,
	}
	client, err := goemail.NewSMTP(u.String(), &tls.Config{InsecureSkipVerify: cfg.SkipVerify})
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: from}, nil
}

// Disabled reports whether the mailer drops messages.
func (m *SMTPMailer) Disabled() bool { return m.disabled }

// Send delivers the message to every recipient. An empty from uses the
// configured default. Transport errors are returned as is.
func (m *SMTPMailer) Send(ctx context.Context, from, subject, body string, to []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}
	sender := m.from
	if from != "" {
		a, err := mail.ParseAddress(from)
		if err != nil {
			return fmt.Errorf("parse from address: %w", err)
		}
		sender = a
	}
	if m.disabled {
		return nil
	}

	msg := goemail.NewMessage(sender.Address, subject, body)
	msg.SetName(sender.Name)
	for _, v := range to {
		msg.AddBCC(v)
	}
	return m.client.Send(msg)
}
