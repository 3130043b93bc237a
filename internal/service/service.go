// Package service implements the booking hold, lifecycle, calendar sync and
// expiration flows on top of the repositories.
package service

import (
	"context"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/internal/repo/postgres"
	"github.com/diagnosis/stayhold/pkg/events"
	"github.com/diagnosis/stayhold/pkg/logger"
	"github.com/diagnosis/stayhold/pkg/metrics"
)

// Notifier delivers rendered emails. Implementations return an error on
// delivery failure; callers decide whether it matters.
type Notifier interface {
	NotifyGuest(ctx context.Context, to string, c notify.Content, bccOwner bool) error
	NotifyOwner(ctx context.Context, c notify.Content) error
	NotifyFailure(ctx context.Context, c notify.Content) error
}

// Deps is shared by the services in this package.
type Deps struct {
	Bookings postgres.BookingRepo
	Blocks   postgres.CalendarBlockRepo
	Payments postgres.PaymentRepo
	Guests   postgres.GuestRepo
	Audit    postgres.AuditRepo
	Notifier Notifier
	Emails   *notify.Emails
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// record writes an audit row. Failures are logged and swallowed.
func (d Deps) record(ctx context.Context, b *domain.Booking, action, actor string, meta map[string]any) {
	var bookingID *string
	if b != nil {
		bookingID = &b.ID
	}
	ev := domain.AuditEvent{BookingID: bookingID, Action: action, Actor: actor, Metadata: meta}
	if err := d.Audit.Record(ctx, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to record audit event", "error", err, "action", action, "booking_id", bookingID)
	}
}

// publish emits an event. Failures are logged and swallowed.
func (d Deps) publish(ctx context.Context, subject string, payload any) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}

// guestFor loads the guest of b, logging when it is missing.
func (d Deps) guestFor(ctx context.Context, b *domain.Booking) *domain.Guest {
	if b.GuestID == nil {
		logger.WarnContext(ctx, "Booking has no guest, skipping guest notification", "invoice", b.InvoiceNumber)
		return nil
	}
	g, err := d.Guests.FindByID(ctx, *b.GuestID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load guest", "error", err, "invoice", b.InvoiceNumber)
		return nil
	}
	if g == nil || g.Email == "" {
		logger.WarnContext(ctx, "Guest has no email, skipping guest notification", "invoice", b.InvoiceNumber)
		return nil
	}
	return g
}

// notifyGuest renders and sends a guest email. Failures are logged and
// swallowed so they never undo a committed transition.
func (d Deps) notifyGuest(ctx context.Context, b *domain.Booking, bccOwner bool, build func(g *domain.Guest) notify.Content) {
	g := d.guestFor(ctx, b)
	if g == nil {
		return
	}
	if err := d.Notifier.NotifyGuest(ctx, g.Email, build(g), bccOwner); err != nil {
		logger.ErrorContext(ctx, "Failed to send guest notification", "error", err, "invoice", b.InvoiceNumber)
	}
}
