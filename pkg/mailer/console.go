package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Console logs messages instead of sending them. Used in development.
type Console struct {
	sender Sender
	logger *zap.Logger
}

// NewConsole builds a logging mailer.
func NewConsole(sender Sender, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{sender: sender, logger: logger}
}

// Send writes the message to the log.
func (c *Console) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.String())
	}
	c.logger.Info("email",
		zap.String("from", c.sender.From.String()),
		zap.Strings("to", to),
		zap.String("subject", c.sender.subject(msg.Subject)),
		zap.String("body", msg.TextBody),
	)
	return nil
}
