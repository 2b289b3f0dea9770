package mailer

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP delivers messages through an SMTP relay.
type SMTP struct {
	sender Sender
	dialer dialer
}

// NewSMTP builds an SMTP mailer.
func NewSMTP(sender Sender, host string, port int, user, password string) *SMTP {
	if port == 0 {
		port = 587
	}
	return &SMTP{sender: sender, dialer: gomail.NewDialer(host, port, user, password)}
}

// Send renders msg as multipart text/html and dials the relay.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.build(msg)); err != nil {
		return fmt.Errorf("smtp send %q: %w", msg.Subject, err)
	}
	return nil
}

func (s *SMTP) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.sender.From.Address, s.sender.From.Name)
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, m.FormatAddress(addr.Address, addr.Name))
	}
	if len(to) > 0 {
		m.SetHeader("To", to...)
	}
	if len(msg.Cc) > 0 {
		cc := make([]string, 0, len(msg.Cc))
		for _, addr := range msg.Cc {
			cc = append(cc, m.FormatAddress(addr.Address, addr.Name))
		}
		m.SetHeader("Cc", cc...)
	}
	m.SetHeader("Subject", s.sender.subject(msg.Subject))
	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}
	return m
}
