package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Sendgrid delivers messages through the SendGrid v3 API.
type Sendgrid struct {
	sender Sender
	key    string
	host   string
	do     func(ctx context.Context, req rest.Request) (*rest.Response, error)
}

// NewSendgrid builds a SendGrid mailer.
func NewSendgrid(sender Sender, apiKey string) *Sendgrid {
	return &Sendgrid{
		sender: sender,
		key:    apiKey,
		host:   sendgridHost,
		do: func(ctx context.Context, req rest.Request) (*rest.Response, error) {
			return sendgrid.MakeRequestWithContext(ctx, req)
		},
	}
}

// Send posts the message. Responses >= 400 are returned as errors with the body attached.
func (s *Sendgrid) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.do(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid send %q: %w", msg.Subject, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send %q: status %d: %s", msg.Subject, res.StatusCode, res.Body)
	}
	return nil
}

func (s *Sendgrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.sender.subject(msg.Subject)
	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(sgEmail(s.sender.From))
	m.AddPersonalizations(p)
	if msg.TextBody != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextBody))
	}
	if msg.HTMLBody != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	}
	return m
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}
