package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/pkg/events"
	"github.com/diagnosis/stayhold/pkg/logger"
)

// Outcome is the result of a lifecycle action. NoOp is set when the booking
// was already in the target state and only the idempotent cleanup ran.
type Outcome struct {
	Booking *domain.Booking `json:"booking"`
	NoOp    bool            `json:"no_op"`
}

// BookingLifecycle drives bookings out of pending_hold.
//
// Every action writes the booking status first. When a later block or
// payment write fails the returned Outcome still describes the committed
// state and the error has KindDependency, so the caller can retry the call
// to repair the side effects.
type BookingLifecycle interface {
	Verify(ctx context.Context, invoice, actor string) (*Outcome, error)
	Cancel(ctx context.Context, invoice, actor, reason string) (*Outcome, error)
	Expire(ctx context.Context, invoice, actor string, force bool) (*Outcome, error)
	// ExpireHold expires an already loaded booking as the sweep does,
	// bypassing the deadline guard.
	ExpireHold(ctx context.Context, b *domain.Booking, actor string, meta map[string]any) (*Outcome, error)
}

type bookingLifecycle struct {
	Deps
}

func NewBookingLifecycle(deps Deps) BookingLifecycle {
	return &bookingLifecycle{Deps: deps}
}

// transition describes one lifecycle action.
type transition struct {
	action string
	// guard reports a no-op or a rejection for the current booking state.
	guard func(ctx context.Context, b *domain.Booking, now time.Time) (noop bool, err error)
	to    domain.BookingStatus
	// cleanup applies block and payment writes. It also runs on a no-op so
	// a retried call finishes work a previous call left behind. It returns
	// the blocks it saw before changing them.
	cleanup func(ctx context.Context, b *domain.Booking, now time.Time) ([]domain.CalendarBlock, error)
	// announce sends notifications, audit rows and events after a real
	// transition. It never fails.
	announce func(ctx context.Context, b *domain.Booking, now time.Time, blocks []domain.CalendarBlock)
}

func (l *bookingLifecycle) load(ctx context.Context, invoice string) (*domain.Booking, error) {
	b, err := l.Bookings.GetByInvoice(ctx, invoice)
	if err != nil {
		return nil, domain.Dependency("Failed to load booking", err)
	}
	if b == nil {
		return nil, domain.ErrBookingNotFound
	}
	return b, nil
}

func (l *bookingLifecycle) run(ctx context.Context, b *domain.Booking, t transition) (*Outcome, error) {
	now := l.now()

	// One reload is allowed when another writer changed the booking between
	// our read and the guarded write.
	for attempt := 0; attempt < 2; attempt++ {
		noop, err := t.guard(ctx, b, now)
		if err != nil {
			l.Metrics.Transition(t.action, "rejected")
			return nil, err
		}
		if noop {
			l.Metrics.Transition(t.action, "noop")
			logger.InfoContext(ctx, "Booking already in target state", "action", t.action, "invoice", b.InvoiceNumber, "status", b.Status)
			if _, err := t.cleanup(ctx, b, now); err != nil {
				return &Outcome{Booking: b, NoOp: true}, err
			}
			return &Outcome{Booking: b, NoOp: true}, nil
		}

		write := domain.BookingTransition{From: []domain.BookingStatus{domain.BookingPendingHold}, To: t.to}
		if t.to == domain.BookingPaid {
			write.PaidAt = &now
		}
		ok, err := l.Bookings.Transition(ctx, b.ID, write)
		if err != nil {
			l.Metrics.Transition(t.action, "error")
			return nil, domain.Dependency("Failed to update booking status", err)
		}
		if !ok {
			logger.WarnContext(ctx, "Booking changed during transition, reloading", "action", t.action, "invoice", b.InvoiceNumber)
			if b, err = l.load(ctx, b.InvoiceNumber); err != nil {
				return nil, err
			}
			continue
		}

		b.Status = t.to
		b.UpdatedAt = now
		if write.PaidAt != nil {
			b.PaidAt = write.PaidAt
		}
		l.Metrics.Transition(t.action, "applied")
		logger.InfoContext(ctx, "Booking transitioned", "action", t.action, "invoice", b.InvoiceNumber, "status", b.Status)

		blocks, cleanupErr := t.cleanup(ctx, b, now)
		t.announce(ctx, b, now, blocks)
		if cleanupErr != nil {
			return &Outcome{Booking: b}, cleanupErr
		}
		return &Outcome{Booking: b}, nil
	}

	l.Metrics.Transition(t.action, "rejected")
	return nil, domain.ErrConcurrentChange
}

func (l *bookingLifecycle) Verify(ctx context.Context, invoice, actor string) (*Outcome, error) {
	b, err := l.load(ctx, invoice)
	if err != nil {
		return nil, err
	}

	return l.run(ctx, b, transition{
		action: "verify",
		to:     domain.BookingPaid,
		guard: func(ctx context.Context, b *domain.Booking, now time.Time) (bool, error) {
			switch b.Status {
			case domain.BookingPaid:
				return true, nil
			case domain.BookingCanceled:
				return false, domain.ErrBookingCanceled
			case domain.BookingExpired:
				return false, domain.ErrBookingExpired
			}
			if b.IsHoldExpired(now) {
				return false, domain.ErrHoldExpired
			}
			payments, err := l.Payments.ListByBooking(ctx, b.ID)
			if err != nil {
				return false, domain.Dependency("Failed to load payments", err)
			}
			if len(payments) == 0 {
				return false, domain.ErrNoPayments
			}
			return false, nil
		},
		cleanup: l.confirmHold,
		announce: func(ctx context.Context, b *domain.Booking, now time.Time, blocks []domain.CalendarBlock) {
			stay := stayOf(b, blocks)
			l.notifyGuest(ctx, b, true, func(g *domain.Guest) notify.Content {
				return l.Emails.BookingConfirmed(notify.BookingConfirmedData{
					GuestName:     g.FullName,
					InvoiceNumber: b.InvoiceNumber,
					Stay:          stay,
					PaidAt:        now,
				})
			})
			l.record(ctx, b, domain.AuditBookingVerified, actor, map[string]any{"invoice_number": b.InvoiceNumber})
			l.publish(ctx, events.BookingVerified, transitionEvent(b, actor, "", now))
		},
	})
}

// confirmHold verifies the payments and confirms the pending blocks of a
// paid booking, keeping each block's status spelling.
func (l *bookingLifecycle) confirmHold(ctx context.Context, b *domain.Booking, now time.Time) ([]domain.CalendarBlock, error) {
	at := now
	if b.PaidAt != nil {
		at = *b.PaidAt
	}
	if _, err := l.Payments.MarkVerified(ctx, b.ID, at); err != nil {
		return nil, domain.Dependency("Booking marked paid but payments could not be verified", err)
	}

	blocks, err := l.Blocks.List(ctx, domain.BlockFilter{BookingID: b.ID, Statuses: domain.PendingStatuses})
	if err != nil {
		return nil, domain.Dependency("Booking marked paid but blocks could not be loaded", err)
	}
	byStatus := make(map[domain.BlockStatus][]string)
	for _, blk := range blocks {
		target := blk.Status.Confirmed()
		byStatus[target] = append(byStatus[target], blk.ID)
	}
	for status, ids := range byStatus {
		status := status
		if err := l.Blocks.Patch(ctx, ids, domain.BlockPatch{Status: &status}); err != nil {
			return blocks, domain.Dependency("Booking marked paid but blocks could not be confirmed", err)
		}
	}
	if len(blocks) == 0 {
		// On a retried verify the blocks are already confirmed.
		if blocks, err = l.Blocks.List(ctx, domain.BlockFilter{BookingID: b.ID}); err != nil {
			logger.WarnContext(ctx, "Failed to load blocks for notification", "error", err, "invoice", b.InvoiceNumber)
		}
	}
	return blocks, nil
}

func (l *bookingLifecycle) Cancel(ctx context.Context, invoice, actor, reason string) (*Outcome, error) {
	b, err := l.load(ctx, invoice)
	if err != nil {
		return nil, err
	}

	return l.run(ctx, b, transition{
		action: "cancel",
		to:     domain.BookingCanceled,
		guard: func(_ context.Context, b *domain.Booking, _ time.Time) (bool, error) {
			switch b.Status {
			case domain.BookingCanceled:
				return true, nil
			case domain.BookingPaid:
				return false, domain.ErrCannotCancelPaid
			case domain.BookingExpired:
				return false, domain.ErrBookingExpired
			}
			return false, nil
		},
		cleanup: func(ctx context.Context, b *domain.Booking, _ time.Time) ([]domain.CalendarBlock, error) {
			return l.releaseBlocks(ctx, b, domain.HeldStatuses)
		},
		announce: func(ctx context.Context, b *domain.Booking, now time.Time, blocks []domain.CalendarBlock) {
			if payments, err := l.Payments.ListByBooking(ctx, b.ID); err != nil {
				logger.ErrorContext(ctx, "Failed to load payments", "error", err, "invoice", b.InvoiceNumber)
			} else if len(payments) > 0 {
				logger.InfoContext(ctx, "Canceled booking still has payment records", "invoice", b.InvoiceNumber, "payments", len(payments))
			}

			stay := stayOf(b, blocks)
			l.notifyGuest(ctx, b, false, func(g *domain.Guest) notify.Content {
				return l.Emails.BookingCanceled(notify.BookingCanceledData{
					GuestName:     g.FullName,
					InvoiceNumber: b.InvoiceNumber,
					Stay:          stay,
					Reason:        reason,
				})
			})
			meta := map[string]any{"invoice_number": b.InvoiceNumber}
			if reason != "" {
				meta["reason"] = reason
			}
			l.record(ctx, b, domain.AuditBookingCanceled, actor, meta)
			l.publish(ctx, events.BookingCanceled, transitionEvent(b, actor, reason, now))
		},
	})
}

func (l *bookingLifecycle) Expire(ctx context.Context, invoice, actor string, force bool) (*Outcome, error) {
	b, err := l.load(ctx, invoice)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{"invoice_number": b.InvoiceNumber, "force": force}
	return l.expire(ctx, b, actor, force, meta)
}

func (l *bookingLifecycle) ExpireHold(ctx context.Context, b *domain.Booking, actor string, meta map[string]any) (*Outcome, error) {
	return l.expire(ctx, b, actor, true, meta)
}

func (l *bookingLifecycle) expire(ctx context.Context, b *domain.Booking, actor string, force bool, meta map[string]any) (*Outcome, error) {
	return l.run(ctx, b, transition{
		action: "expire",
		to:     domain.BookingExpired,
		guard: func(_ context.Context, b *domain.Booking, now time.Time) (bool, error) {
			switch b.Status {
			case domain.BookingExpired:
				return true, nil
			case domain.BookingPaid:
				return false, domain.ErrCannotExpirePaid
			case domain.BookingCanceled:
				return false, domain.ErrBookingCanceled
			}
			if !force && !b.IsHoldExpired(now) {
				return false, domain.ErrHoldNotExpired
			}
			return false, nil
		},
		cleanup: func(ctx context.Context, b *domain.Booking, _ time.Time) ([]domain.CalendarBlock, error) {
			return l.releaseBlocks(ctx, b, domain.PendingStatuses)
		},
		announce: func(ctx context.Context, b *domain.Booking, now time.Time, blocks []domain.CalendarBlock) {
			stay := stayOf(b, blocks)
			l.notifyGuest(ctx, b, true, func(g *domain.Guest) notify.Content {
				return l.Emails.HoldExpired(notify.HoldExpiredData{
					GuestName:     g.FullName,
					InvoiceNumber: b.InvoiceNumber,
					Stay:          stay,
					HoldExpiresAt: b.HoldExpiresAt,
					ExpiredAt:     now,
				})
			})
			l.record(ctx, b, domain.AuditBookingExpired, actor, meta)
			l.publish(ctx, events.BookingExpired, transitionEvent(b, actor, "", now))
		},
	})
}

// releaseBlocks deletes the booking's blocks in one of statuses.
func (l *bookingLifecycle) releaseBlocks(ctx context.Context, b *domain.Booking, statuses []domain.BlockStatus) ([]domain.CalendarBlock, error) {
	blocks, err := l.Blocks.List(ctx, domain.BlockFilter{BookingID: b.ID, Statuses: statuses})
	if err != nil {
		return nil, domain.Dependency(fmt.Sprintf("Booking %s but blocks could not be loaded", b.Status), err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		ids = append(ids, blk.ID)
	}
	if err := l.Blocks.Delete(ctx, ids); err != nil {
		return blocks, domain.Dependency(fmt.Sprintf("Booking %s but blocks could not be removed", b.Status), err)
	}
	logger.InfoContext(ctx, "Released calendar blocks", "invoice", b.InvoiceNumber, "blocks", len(ids))
	return blocks, nil
}

func stayOf(b *domain.Booking, blocks []domain.CalendarBlock) *notify.Stay {
	if s := notify.StayFromBlocks(blocks); s != nil {
		return s
	}
	return notify.StayFromRange(b.Stay)
}

func transitionEvent(b *domain.Booking, actor, reason string, at time.Time) events.BookingTransitionEvent {
	return events.BookingTransitionEvent{
		BookingID:     b.ID,
		InvoiceNumber: b.InvoiceNumber,
		Status:        string(b.Status),
		Actor:         actor,
		Reason:        reason,
		OccurredAt:    at,
	}
}
