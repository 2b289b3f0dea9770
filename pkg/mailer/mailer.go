// Package mailer delivers rendered email messages through a configured transport.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/pkg/config"
)

// ErrNoRecipients is returned when a message has nobody to deliver to.
var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Message is a rendered email ready for delivery.
type Message struct {
	To       []mail.Address
	Cc       []mail.Address
	Subject  string
	TextBody string
	HTMLBody string
}

// HasRecipients reports whether at least one To or Cc address is set.
func (m Message) HasRecipients() bool {
	return len(m.To)+len(m.Cc) > 0
}

// Validate checks the message can be sent.
func (m Message) Validate() error {
	if !m.HasRecipients() {
		return ErrNoRecipients
	}
	if strings.TrimSpace(m.TextBody) == "" && strings.TrimSpace(m.HTMLBody) == "" {
		return fmt.Errorf("mailer: message %q has no content", m.Subject)
	}
	return nil
}

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Sender identifies the From header and subject prefix applied by every transport.
type Sender struct {
	From          mail.Address
	SubjectPrefix string
}

func (s Sender) subject(raw string) string {
	if s.SubjectPrefix == "" {
		return raw
	}
	return s.SubjectPrefix + " " + raw
}

// New returns the transport selected by cfg.Mail.Provider.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := Sender{
		From:          mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
		SubjectPrefix: cfg.SubjectPrefix,
	}
	switch strings.ToLower(cfg.Provider) {
	case "", config.MailProviderConsole:
		return NewConsole(sender, logger), nil
	case config.MailProviderSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("mailer: SMTP_HOST is required for smtp provider")
		}
		return NewSMTP(sender, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword), nil
	case config.MailProviderSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("mailer: SENDGRID_API_KEY is required for sendgrid provider")
		}
		return NewSendgrid(sender, cfg.SendgridAPIKey), nil
	default:
		return nil, fmt.Errorf("mailer: unknown provider %q", cfg.Provider)
	}
}

// Address parses a bare address or "Name <addr>" into a mail.Address, falling back to the
// raw string as the address.
func Address(name, raw string) mail.Address {
	if parsed, err := mail.ParseAddress(raw); err == nil {
		if parsed.Name == "" {
			parsed.Name = name
		}
		return *parsed
	}
	return mail.Address{Name: name, Address: strings.TrimSpace(raw)}
}
