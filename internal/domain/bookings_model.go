package domain

import (
	"time"

	"github.com/diagnosis/stayhold/internal/interval"
)

type BookingStatus string

const (
	BookingPendingHold BookingStatus = "pending_hold"
	BookingPaid        BookingStatus = "paid"
	BookingExpired     BookingStatus = "expired"
	BookingCanceled    BookingStatus = "canceled"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case BookingPendingHold, BookingPaid, BookingExpired, BookingCanceled:
		return BookingStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition may change the status.
func (s BookingStatus) Terminal() bool {
	return s == BookingPaid || s == BookingExpired || s == BookingCanceled
}

type Booking struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	PropertyID    string        `json:"property_id"`
	Status        BookingStatus `json:"status"`
	GuestID       *string       `json:"guest_id,omitempty"`

	Stay   interval.Range `json:"stay"`
	Guests int            `json:"guests"`

	NightlyRateCents int64 `json:"nightly_rate_cents"`
	SubtotalCents    int64 `json:"subtotal_cents"`
	CleaningFeeCents int64 `json:"cleaning_fee_cents"`
	TaxesCents       int64 `json:"taxes_cents"`
	TotalCents       int64 `json:"total_cents"`

	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsHoldExpired reports whether the hold window has closed at now. A
// booking without an expiry never expires on its own.
func (b *Booking) IsHoldExpired(now time.Time) bool {
	if b.HoldExpiresAt == nil {
		return false
	}
	return !b.HoldExpiresAt.After(now)
}

// BookingTransition is the status write applied to a booking. Only the
// non-nil timestamps are written.
type BookingTransition struct {
	From   []BookingStatus
	To     BookingStatus
	PaidAt *time.Time
}

// NewHold carries everything the store needs to create a hold atomically.
type NewHold struct {
	InvoiceNumber string
	PropertyID    string
	GuestID       string
	Stay          interval.Range
	Guests        int
	Quote         Quote
	Processor     PaymentProcessor
	HoldExpiresAt time.Time
}

// Quote is the price of a stay in cents.
type Quote struct {
	Nights           int   `json:"nights"`
	NightlyRateCents int64 `json:"nightly_rate_cents"`
	SubtotalCents    int64 `json:"subtotal_cents"`
	CleaningFeeCents int64 `json:"cleaning_fee_cents"`
	TaxesCents       int64 `json:"taxes_cents"`
	TotalCents       int64 `json:"total_cents"`
}

type HoldRequest struct {
	FullName      string `json:"full_name" validate:"required,max=200"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,max=40"`
	CheckIn       string `json:"check_in" validate:"required"`
	CheckOut      string `json:"check_out" validate:"required"`
	Guests        int    `json:"guests" validate:"omitempty,gte=1,lte=16"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=zelle venmo paypal offline"`
}

type HoldConfirmation struct {
	BookingID     string           `json:"booking_id"`
	InvoiceNumber string           `json:"invoice_number"`
	Status        BookingStatus    `json:"status"`
	Stay          interval.Range   `json:"stay"`
	Quote         Quote            `json:"quote"`
	TotalAmount   string           `json:"total_amount"`
	PaymentMethod PaymentProcessor `json:"payment_method"`
	HoldExpiresAt time.Time        `json:"hold_expires_at"`
}

type ProofSubmission struct {
	InvoiceNumber string `json:"invoice_number" validate:"required,max=64"`
	PayerName     string `json:"payer_name" validate:"required,max=200"`
	Reference     string `json:"reference" validate:"omitempty,max=200"`
	Note          string `json:"note" validate:"omitempty,max=2000"`
	FileName      string `json:"-"`
	ContentType   string `json:"-"`
	Body          []byte `json:"-"`
}

type ProofReceipt struct {
	InvoiceNumber string           `json:"invoice_number"`
	PaymentID     string           `json:"payment_id"`
	Processor     PaymentProcessor `json:"processor"`
	ProofFileURL  string           `json:"proof_file_url"`
	ReceivedAt    time.Time        `json:"received_at"`
}
