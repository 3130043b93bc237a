// Package notify addresses and sends guest, owner and operator emails.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/diagnosis/stayhold/internal/platform/mailer"
	"github.com/diagnosis/stayhold/pkg/logger"
	"github.com/diagnosis/stayhold/pkg/metrics"
)

// Content is a rendered email.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

type Notifier struct {
	sender       mailer.Service
	ownerEmail   string
	failureEmail string
	metrics      *metrics.Metrics
}

// NewNotifier builds a Notifier. failureEmail falls back to ownerEmail.
func NewNotifier(sender mailer.Service, ownerEmail, failureEmail string, m *metrics.Metrics) *Notifier {
	ownerEmail = strings.TrimSpace(ownerEmail)
	failureEmail = strings.TrimSpace(failureEmail)
	if failureEmail == "" {
		failureEmail = ownerEmail
	}
	return &Notifier{sender: sender, ownerEmail: ownerEmail, failureEmail: failureEmail, metrics: m}
}

// NotifyGuest emails a guest, optionally copying the owner.
func (n *Notifier) NotifyGuest(ctx context.Context, to string, c Content, bccOwner bool) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("guest has no email address")
	}
	msg := mailer.Message{To: []string{to}, Subject: c.Subject, Text: c.Text, HTML: c.HTML}
	if bccOwner && n.ownerEmail != "" && !strings.EqualFold(n.ownerEmail, to) {
		msg.Bcc = []string{n.ownerEmail}
	}
	return n.send(ctx, "guest", msg)
}

// NotifyOwner emails the property owner. It is a no-op when no owner
// address is configured.
func (n *Notifier) NotifyOwner(ctx context.Context, c Content) error {
	if n.ownerEmail == "" {
		logger.DebugContext(ctx, "Skipping owner notification, no owner address configured")
		return nil
	}
	return n.send(ctx, "owner", mailer.Message{To: []string{n.ownerEmail}, Subject: c.Subject, Text: c.Text, HTML: c.HTML})
}

// NotifyFailure emails the operator channel.
func (n *Notifier) NotifyFailure(ctx context.Context, c Content) error {
	if n.failureEmail == "" {
		logger.WarnContext(ctx, "Skipping failure notification, no recipient configured", "subject", c.Subject)
		return nil
	}
	return n.send(ctx, "failure", mailer.Message{To: []string{n.failureEmail}, Subject: c.Subject, Text: c.Text, HTML: c.HTML})
}

func (n *Notifier) send(ctx context.Context, kind string, msg mailer.Message) error {
	id, err := n.sender.Send(ctx, msg)
	if err != nil {
		n.metrics.NotifyFailed()
		return err
	}
	logger.DebugContext(ctx, "Notification sent", "kind", kind, "message_id", id, "subject", msg.Subject)
	return nil
}
