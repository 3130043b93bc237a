package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/diagnosis/stayhold/internal/availability"
	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/internal/platform/storage"
	"github.com/diagnosis/stayhold/internal/pricing"
	"github.com/diagnosis/stayhold/internal/repo/postgres"
	"github.com/diagnosis/stayhold/internal/utils"
	"github.com/diagnosis/stayhold/pkg/events"
	"github.com/diagnosis/stayhold/pkg/logger"
	"github.com/google/uuid"
)

const (
	// MaxProofBytes bounds an uploaded payment proof.
	MaxProofBytes = 10 << 20

	invoiceAttempts = 3
	guestActor      = "guest"
)

type HoldService interface {
	CreateHold(ctx context.Context, req domain.HoldRequest) (*domain.HoldConfirmation, error)
	SubmitProof(ctx context.Context, sub domain.ProofSubmission) (*domain.ProofReceipt, error)
}

type HoldConfig struct {
	PropertyID string
	Location   *time.Location
	HoldWindow time.Duration
	// AllowPastCheckIn disables the check-in-in-the-past guard.
	AllowPastCheckIn bool
}

type holdService struct {
	Deps
	pricer *pricing.Pricer
	proofs storage.ProofStore
	cfg    HoldConfig
}

func NewHoldService(deps Deps, pricer *pricing.Pricer, proofs storage.ProofStore, cfg HoldConfig) HoldService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = 24 * time.Hour
	}
	return &holdService{Deps: deps, pricer: pricer, proofs: proofs, cfg: cfg}
}

func (s *holdService) CreateHold(ctx context.Context, req domain.HoldRequest) (*domain.HoldConfirmation, error) {
	// Validate business rules
	if err := validateInput(req); err != nil {
		return nil, err
	}
	stay, err := interval.NewRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, domain.Validation("Check-in and check-out must be dates (YYYY-MM-DD)")
	}
	if !stay.Valid() {
		return nil, domain.ErrInvalidDateRange
	}
	now := s.now()
	if !s.cfg.AllowPastCheckIn && stay.Start < interval.DayIn(now, s.cfg.Location) {
		return nil, domain.Validation("Check-in date cannot be in the past")
	}
	if !utils.IsValidPhone(req.Phone) {
		return nil, domain.Validation("Missing or invalid field: phone")
	}
	processor, ok := domain.ParsePaymentProcessor(strings.ToLower(req.PaymentMethod))
	if !ok {
		return nil, domain.Validation("Missing or invalid field: payment_method")
	}
	guests := req.Guests
	if guests == 0 {
		guests = 1
	}

	quote, err := s.pricer.Quote(stay)
	if err != nil {
		return nil, err
	}

	// The store enforces overlap atomically; this only gives a fast answer.
	if err := s.checkAvailable(ctx, stay); err != nil {
		return nil, err
	}

	guest, err := s.Guests.Upsert(ctx,
		utils.NormalizeString(req.FullName),
		utils.NormalizeEmail(req.Email),
		utils.NormalizePhone(req.Phone),
	)
	if err != nil {
		return nil, domain.Dependency("Failed to save guest", err)
	}

	expiresAt := now.Add(s.cfg.HoldWindow)
	hold := &domain.NewHold{
		PropertyID:    s.cfg.PropertyID,
		GuestID:       guest.ID,
		Stay:          stay,
		Guests:        guests,
		Quote:         quote,
		Processor:     processor,
		HoldExpiresAt: expiresAt,
	}

	var booking *domain.Booking
	for attempt := 1; attempt <= invoiceAttempts; attempt++ {
		hold.InvoiceNumber = s.pricer.InvoiceNumber(now)
		booking, err = s.Bookings.CreateHold(ctx, hold)
		if errors.Is(err, postgres.ErrInvoiceTaken) {
			logger.WarnContext(ctx, "Invoice number collision, retrying", "invoice", hold.InvoiceNumber, "attempt", attempt)
			continue
		}
		break
	}
	switch {
	case errors.Is(err, postgres.ErrOverlap):
		s.Metrics.HoldConflict()
		return nil, domain.ErrDatesUnavailable
	case errors.Is(err, postgres.ErrInvoiceTaken):
		return nil, domain.Dependency("Failed to allocate an invoice number", err)
	case err != nil:
		return nil, domain.Dependency("Failed to create hold", err)
	}

	s.Metrics.HoldCreated()
	logger.InfoContext(ctx, "Hold created", "booking_id", booking.ID, "invoice", booking.InvoiceNumber, "stay", stay.String())

	content := s.Emails.HoldCreated(notify.HoldCreatedData{
		GuestName:     guest.FullName,
		InvoiceNumber: booking.InvoiceNumber,
		Stay:          notify.StayFromRange(stay),
		HoldExpiresAt: expiresAt,
		TotalCents:    quote.TotalCents,
		Processor:     processor,
	})
	if err := s.Notifier.NotifyGuest(ctx, guest.Email, content, true); err != nil {
		logger.ErrorContext(ctx, "Failed to send hold confirmation", "error", err, "invoice", booking.InvoiceNumber)
	}
	s.record(ctx, booking, domain.AuditBookingHeld, guestActor, map[string]any{
		"invoice_number": booking.InvoiceNumber,
		"check_in":       stay.Start.String(),
		"check_out":      stay.End.String(),
		"total_cents":    quote.TotalCents,
		"payment_method": string(processor),
	})
	s.publish(ctx, events.BookingHeld, events.BookingHeldEvent{
		BookingID:     booking.ID,
		InvoiceNumber: booking.InvoiceNumber,
		CheckIn:       stay.Start.String(),
		CheckOut:      stay.End.String(),
		TotalCents:    quote.TotalCents,
		HoldExpiresAt: expiresAt,
	})

	return &domain.HoldConfirmation{
		BookingID:     booking.ID,
		InvoiceNumber: booking.InvoiceNumber,
		Status:        booking.Status,
		Stay:          stay,
		Quote:         quote,
		TotalAmount:   s.Emails.Money(quote.TotalCents),
		PaymentMethod: processor,
		HoldExpiresAt: expiresAt,
	}, nil
}

func (s *holdService) checkAvailable(ctx context.Context, stay interval.Range) error {
	blocks, err := s.Blocks.List(ctx, domain.BlockFilter{PropertyID: s.cfg.PropertyID, Window: &stay})
	if err != nil {
		return domain.Dependency("Failed to load calendar", err)
	}
	if d := availability.CanHold(stay, blocks); !d.OK {
		s.Metrics.HoldConflict()
		logger.InfoContext(ctx, "Hold rejected", "stay", stay.String(), "reason", d.Reason, "conflicts", len(d.Conflicts))
		return domain.ErrDatesUnavailable
	}
	return nil
}

func (s *holdService) SubmitProof(ctx context.Context, sub domain.ProofSubmission) (*domain.ProofReceipt, error) {
	if err := validateInput(sub); err != nil {
		return nil, err
	}
	if len(sub.Body) == 0 {
		return nil, domain.Validation("Missing or invalid field: file")
	}
	if len(sub.Body) > MaxProofBytes {
		return nil, domain.Validation("Proof file must be 10MB or smaller")
	}
	if !allowedProofType(sub.ContentType) {
		return nil, domain.Validation("Proof file must be an image or PDF")
	}

	invoice := strings.TrimSpace(sub.InvoiceNumber)
	b, err := s.Bookings.GetByInvoice(ctx, invoice)
	if err != nil {
		return nil, domain.Dependency("Failed to load booking", err)
	}
	if b == nil {
		return nil, domain.ErrBookingNotFound
	}
	now := s.now()
	if b.Status != domain.BookingPendingHold {
		return nil, domain.ErrNotAwaitingProof
	}
	if b.IsHoldExpired(now) {
		return nil, domain.ErrHoldExpired
	}

	payments, err := s.Payments.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, domain.Dependency("Failed to load payments", err)
	}
	if len(payments) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	payment := payments[0]

	objectPath := proofObjectPath(invoice, sub.FileName, sub.ContentType, now)
	url, err := s.proofs.Put(ctx, objectPath, sub.ContentType, sub.Body)
	if err != nil {
		return nil, domain.Dependency("Failed to store payment proof", err)
	}

	patch := domain.ProofPatch{
		Processor:    payment.Processor,
		PayerName:    strings.TrimSpace(sub.PayerName),
		Reference:    strings.TrimSpace(sub.Reference),
		Note:         strings.TrimSpace(sub.Note),
		ProofFileURL: url,
		ReceivedAt:   now,
	}
	if err := s.Payments.AttachProof(ctx, payment.ID, patch); err != nil {
		return nil, domain.Dependency("Failed to record payment proof", err)
	}
	logger.InfoContext(ctx, "Payment proof received", "invoice", b.InvoiceNumber, "payment_id", payment.ID, "object", objectPath)

	data := notify.ProofReceivedData{
		InvoiceNumber: b.InvoiceNumber,
		Stay:          notify.StayFromRange(b.Stay),
		TotalCents:    b.TotalCents,
		Processor:     payment.Processor,
		PayerName:     patch.PayerName,
		Reference:     patch.Reference,
		Note:          patch.Note,
		ProofURL:      url,
	}
	if g := s.guestFor(ctx, b); g != nil {
		data.GuestName, data.GuestEmail = g.FullName, g.Email
	}
	if err := s.Notifier.NotifyOwner(ctx, s.Emails.ProofReceived(data)); err != nil {
		logger.ErrorContext(ctx, "Failed to notify owner of payment proof", "error", err, "invoice", b.InvoiceNumber)
	}
	s.record(ctx, b, domain.AuditProofSubmitted, guestActor, map[string]any{
		"invoice_number": b.InvoiceNumber,
		"payment_id":     payment.ID,
		"processor":      string(payment.Processor),
		"proof_file_url": url,
	})
	s.publish(ctx, events.ProofSubmitted, events.ProofSubmittedEvent{
		BookingID:     b.ID,
		InvoiceNumber: b.InvoiceNumber,
		PaymentID:     payment.ID,
		Processor:     string(payment.Processor),
		ProofFileURL:  url,
		ReceivedAt:    now,
	})

	return &domain.ProofReceipt{
		InvoiceNumber: b.InvoiceNumber,
		PaymentID:     payment.ID,
		Processor:     payment.Processor,
		ProofFileURL:  url,
		ReceivedAt:    now,
	}, nil
}

func allowedProofType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/") || mt == "application/pdf"
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// proofObjectPath builds {invoice}/{unix-millis}-{uuid}.{ext}.
func proofObjectPath(invoice, fileName, contentType string, now time.Time) string {
	folder := utils.PathSegment(invoice, "invoice")

	ext := nonAlnum.ReplaceAllString(strings.ToLower(path.Ext(fileName)), "")
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = nonAlnum.ReplaceAllString(strings.ToLower(exts[0]), "")
		}
	}
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", folder, now.UnixMilli(), uuid.NewString(), ext)
}
