package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/service"
	"github.com/diagnosis/stayhold/pkg/events"
)

func TestVerify_ConfirmsHold(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0001", testNow.Add(time.Hour), domain.StatusInternalPending, domain.StatusPending)
	lc := service.NewBookingLifecycle(h.deps)

	out, err := lc.Verify(context.Background(), "ASH-2030-0001", "admin")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.NoOp {
		t.Fatal("expected a real transition")
	}

	got := h.bookings.get(b.ID)
	if got.Status != domain.BookingPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(testNow) {
		t.Errorf("paid_at = %v, want %v", got.PaidAt, testNow)
	}

	payments, _ := h.payments.ListByBooking(context.Background(), b.ID)
	for _, p := range payments {
		if p.Status != domain.PaymentVerified || p.VerifiedAt == nil {
			t.Errorf("payment %s not verified: %+v", p.ID, p)
		}
	}

	statuses := map[domain.BlockStatus]int{}
	for _, blk := range h.blocksOf(b.ID) {
		statuses[blk.Status]++
	}
	if statuses[domain.StatusInternalConfirmed] != 1 || statuses[domain.StatusConfirmed] != 1 || len(statuses) != 2 {
		t.Errorf("block statuses = %v, want one internal_confirmed and one confirmed", statuses)
	}

	if len(h.notifier.guest) != 1 || h.notifier.guest[0].To != "ada@example.com" || !h.notifier.guest[0].BccOwner {
		t.Errorf("guest notifications = %+v, want one copied to the owner", h.notifier.guest)
	}
	if acts := h.audit.actions(); len(acts) != 1 || acts[0] != domain.AuditBookingVerified {
		t.Errorf("audit = %v", acts)
	}
	if len(h.events.subjects) != 1 || h.events.subjects[0] != events.BookingVerified {
		t.Errorf("events = %v", h.events.subjects)
	}
}

func TestVerify_Guards(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness) string
		wantErr error
		noop    bool
	}{
		{
			name:    "unknown invoice",
			setup:   func(h *harness) string { return "ASH-2030-9999" },
			wantErr: domain.ErrBookingNotFound,
		},
		{
			name: "already paid is a no-op",
			setup: func(h *harness) string {
				b := h.seedHold("ASH-2030-0002", testNow.Add(time.Hour))
				h.bookings.bookings[b.ID].Status = domain.BookingPaid
				return b.InvoiceNumber
			},
			noop: true,
		},
		{
			name: "canceled",
			setup: func(h *harness) string {
				b := h.seedHold("ASH-2030-0003", testNow.Add(time.Hour))
				h.bookings.bookings[b.ID].Status = domain.BookingCanceled
				return b.InvoiceNumber
			},
			wantErr: domain.ErrBookingCanceled,
		},
		{
			name: "expired status",
			setup: func(h *harness) string {
				b := h.seedHold("ASH-2030-0004", testNow.Add(-time.Hour))
				h.bookings.bookings[b.ID].Status = domain.BookingExpired
				return b.InvoiceNumber
			},
			wantErr: domain.ErrBookingExpired,
		},
		{
			name: "hold deadline passed",
			setup: func(h *harness) string {
				return h.seedHold("ASH-2030-0005", testNow.Add(-time.Minute)).InvoiceNumber
			},
			wantErr: domain.ErrHoldExpired,
		},
		{
			name: "deadline exactly now counts as expired",
			setup: func(h *harness) string {
				return h.seedHold("ASH-2030-0006", testNow).InvoiceNumber
			},
			wantErr: domain.ErrHoldExpired,
		},
		{
			name: "no payment rows",
			setup: func(h *harness) string {
				b := h.seedHold("ASH-2030-0007", testNow.Add(time.Hour))
				h.payments.payments = nil
				return b.InvoiceNumber
			},
			wantErr: domain.ErrNoPayments,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			invoice := tt.setup(h)
			out, err := service.NewBookingLifecycle(h.deps).Verify(context.Background(), invoice, "admin")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if len(h.audit.events) != 0 || len(h.notifier.guest) != 0 {
					t.Error("rejected transition must not notify or audit")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.NoOp != tt.noop {
				t.Errorf("NoOp = %v, want %v", out.NoOp, tt.noop)
			}
		})
	}
}

func TestVerify_PaymentStatusDoesNotMatter(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0010", testNow.Add(time.Hour))
	h.payments.payments[0].Status = domain.PaymentProofSubmitted

	if _, err := service.NewBookingLifecycle(h.deps).Verify(context.Background(), b.InvoiceNumber, "admin"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got := h.bookings.get(b.ID).Status; got != domain.BookingPaid {
		t.Errorf("status = %s, want paid", got)
	}
}

func TestVerify_RetryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0011", testNow.Add(time.Hour), domain.StatusInternalPending)
	lc := service.NewBookingLifecycle(h.deps)

	if _, err := lc.Verify(context.Background(), b.InvoiceNumber, "admin"); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	out, err := lc.Verify(context.Background(), b.InvoiceNumber, "admin")
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if !out.NoOp {
		t.Error("second verify should be a no-op")
	}
	if len(h.notifier.guest) != 1 {
		t.Errorf("guest notifications = %d, want 1", len(h.notifier.guest))
	}
	if len(h.audit.events) != 1 {
		t.Errorf("audit events = %d, want 1", len(h.audit.events))
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0020", testNow.Add(time.Hour),
		domain.StatusInternalPending, domain.StatusInternalConfirmed, domain.StatusPending, domain.StatusConfirmed)
	other := h.seedHold("ASH-2030-0021", testNow.Add(time.Hour), domain.StatusInternalPending)
	lc := service.NewBookingLifecycle(h.deps)

	out, err := lc.Cancel(context.Background(), b.InvoiceNumber, "owner@example.com", "guest asked")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if out.Booking.Status != domain.BookingCanceled {
		t.Errorf("status = %s, want canceled", out.Booking.Status)
	}

	// Both status spellings belong to the booking and are released.
	if n := len(h.blocksOf(b.ID)); n != 0 {
		t.Errorf("remaining blocks = %d, want 0", n)
	}
	if n := len(h.blocksOf(other.ID)); n != 1 {
		t.Errorf("other booking's blocks = %d, want 1", n)
	}

	if len(h.audit.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(h.audit.events))
	}
	ev := h.audit.events[0]
	if ev.Action != domain.AuditBookingCanceled || ev.Actor != "owner@example.com" || ev.Metadata["reason"] != "guest asked" {
		t.Errorf("audit = %+v", ev)
	}
	if len(h.notifier.guest) != 1 {
		t.Errorf("guest notifications = %d, want 1", len(h.notifier.guest))
	}
}

func TestCancel_Guards(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.BookingStatus
		wantErr error
		noop    bool
	}{
		{name: "paid", status: domain.BookingPaid, wantErr: domain.ErrCannotCancelPaid},
		{name: "expired", status: domain.BookingExpired, wantErr: domain.ErrBookingExpired},
		{name: "already canceled", status: domain.BookingCanceled, noop: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := h.seedHold("ASH-2030-0030", testNow.Add(time.Hour), domain.StatusInternalConfirmed)
			h.bookings.bookings[b.ID].Status = tt.status

			out, err := service.NewBookingLifecycle(h.deps).Cancel(context.Background(), b.InvoiceNumber, "admin", "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if got := h.bookings.get(b.ID).Status; got != tt.status {
					t.Errorf("status changed to %s", got)
				}
				if len(h.blocksOf(b.ID)) != 1 {
					t.Error("rejected cancel must not touch blocks")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.NoOp != tt.noop {
				t.Errorf("NoOp = %v, want %v", out.NoOp, tt.noop)
			}
			if len(h.audit.events) != 0 {
				t.Error("no-op must not audit")
			}
		})
	}
}

func TestExpire(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		status    domain.BookingStatus
		force     bool
		wantErr   error
		noop      bool
	}{
		{name: "deadline passed", expiresAt: testNow.Add(-time.Hour), status: domain.BookingPendingHold},
		{name: "deadline not reached", expiresAt: testNow.Add(time.Hour), status: domain.BookingPendingHold, wantErr: domain.ErrHoldNotExpired},
		{name: "forced before deadline", expiresAt: testNow.Add(time.Hour), status: domain.BookingPendingHold, force: true},
		{name: "already expired", expiresAt: testNow.Add(-time.Hour), status: domain.BookingExpired, noop: true},
		{name: "already expired forced", expiresAt: testNow.Add(-time.Hour), status: domain.BookingExpired, force: true, noop: true},
		{name: "paid", expiresAt: testNow.Add(-time.Hour), status: domain.BookingPaid, force: true, wantErr: domain.ErrCannotExpirePaid},
		{name: "canceled", expiresAt: testNow.Add(-time.Hour), status: domain.BookingCanceled, force: true, wantErr: domain.ErrBookingCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := h.seedHold("ASH-2030-0040", tt.expiresAt, domain.StatusInternalPending, domain.StatusPending)
			h.bookings.bookings[b.ID].Status = tt.status

			out, err := service.NewBookingLifecycle(h.deps).Expire(context.Background(), b.InvoiceNumber, "admin", tt.force)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if domain.KindOf(err) != domain.KindConflict {
					t.Errorf("kind = %s, want conflict", domain.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.NoOp != tt.noop {
				t.Errorf("NoOp = %v, want %v", out.NoOp, tt.noop)
			}
			if got := h.bookings.get(b.ID).Status; got != domain.BookingExpired {
				t.Errorf("status = %s, want expired", got)
			}
			if n := len(h.blocksOf(b.ID)); n != 0 {
				t.Errorf("pending blocks left = %d, want 0", n)
			}
		})
	}
}

func TestExpire_TwiceTransitionsOnce(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0041", testNow.Add(-time.Hour), domain.StatusInternalPending)
	lc := service.NewBookingLifecycle(h.deps)

	first, err := lc.Expire(context.Background(), b.InvoiceNumber, "admin", false)
	if err != nil || first.NoOp {
		t.Fatalf("first Expire = %+v, %v", first, err)
	}
	second, err := lc.Expire(context.Background(), b.InvoiceNumber, "admin", false)
	if err != nil {
		t.Fatalf("second Expire: %v", err)
	}
	if !second.NoOp {
		t.Error("second expire should be a no-op")
	}
	if len(h.audit.events) != 1 || len(h.notifier.guest) != 1 {
		t.Errorf("audit = %d, notifications = %d, want 1 each", len(h.audit.events), len(h.notifier.guest))
	}
	if meta := h.audit.events[0].Metadata; meta["force"] != false || meta["invoice_number"] != b.InvoiceNumber {
		t.Errorf("audit metadata = %v", meta)
	}
}

func TestTransition_StatusCommittedBeforeBlockCleanup(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0050", testNow.Add(-time.Hour), domain.StatusInternalPending)
	h.blocks.deleteErr = errors.New("connection reset")
	lc := service.NewBookingLifecycle(h.deps)

	out, err := lc.Expire(context.Background(), b.InvoiceNumber, "admin", false)
	if err == nil {
		t.Fatal("expected the block cleanup failure to surface")
	}
	if domain.KindOf(err) != domain.KindDependency {
		t.Errorf("kind = %s, want dependency", domain.KindOf(err))
	}
	if out == nil || out.Booking.Status != domain.BookingExpired {
		t.Fatalf("outcome = %+v, want expired booking", out)
	}
	if got := h.bookings.get(b.ID).Status; got != domain.BookingExpired {
		t.Errorf("stored status = %s, want expired", got)
	}
	if len(h.audit.events) != 1 {
		t.Errorf("audit events = %d, want 1", len(h.audit.events))
	}

	// A retry repairs the blocks without repeating the side effects.
	h.blocks.deleteErr = nil
	out, err = lc.Expire(context.Background(), b.InvoiceNumber, "admin", false)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !out.NoOp {
		t.Error("retry should be a no-op transition")
	}
	if n := len(h.blocksOf(b.ID)); n != 0 {
		t.Errorf("blocks left after retry = %d, want 0", n)
	}
	if len(h.audit.events) != 1 || len(h.notifier.guest) != 1 {
		t.Error("retry must not repeat audit or notification")
	}
}

func TestTransition_SideEffectFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0060", testNow.Add(time.Hour), domain.StatusInternalPending)
	h.notifier.err = errors.New("smtp down")
	h.audit.err = errors.New("audit table locked")
	h.events.err = errors.New("nats unavailable")

	out, err := service.NewBookingLifecycle(h.deps).Cancel(context.Background(), b.InvoiceNumber, "admin", "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if out.Booking.Status != domain.BookingCanceled {
		t.Errorf("status = %s, want canceled", out.Booking.Status)
	}
	if len(h.notifier.guest) != 1 {
		t.Errorf("notification attempts = %d, want 1", len(h.notifier.guest))
	}
}

func TestTransition_ConcurrentWriterWins(t *testing.T) {
	h := newHarness(t)
	b := h.seedHold("ASH-2030-0070", testNow.Add(time.Hour), domain.StatusInternalPending)
	h.bookings.race[b.ID] = domain.BookingPaid

	_, err := service.NewBookingLifecycle(h.deps).Cancel(context.Background(), b.InvoiceNumber, "admin", "")
	if !errors.Is(err, domain.ErrCannotCancelPaid) {
		t.Fatalf("err = %v, want %v", err, domain.ErrCannotCancelPaid)
	}
	if got := h.bookings.get(b.ID).Status; got != domain.BookingPaid {
		t.Errorf("status = %s, want paid", got)
	}
	if len(h.blocksOf(b.ID)) != 1 {
		t.Error("blocks of the paid booking must be kept")
	}
}
