package mailer

import (
	"context"

	"github.com/diagnosis/stayhold/pkg/logger"
)

// DevMailer prints emails to the log instead of sending them.
type DevMailer struct{}

func (DevMailer) Send(ctx context.Context, msg Message) (string, error) {
	logger.InfoContext(ctx, "Email (dev mode)",
		"to", msg.To,
		"bcc", msg.Bcc,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return "dev", nil
}
