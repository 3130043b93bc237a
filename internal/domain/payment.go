package domain

import "time"

type PaymentStatus string

const (
	PaymentUnverified     PaymentStatus = "unverified"
	PaymentProofSubmitted PaymentStatus = "proof_submitted"
	PaymentVerified       PaymentStatus = "verified"
)

type PaymentProcessor string

const (
	ProcessorZelle   PaymentProcessor = "zelle"
	ProcessorVenmo   PaymentProcessor = "venmo"
	ProcessorPayPal  PaymentProcessor = "paypal"
	ProcessorOffline PaymentProcessor = "offline"
)

func ParsePaymentProcessor(s string) (PaymentProcessor, bool) {
	switch PaymentProcessor(s) {
	case ProcessorZelle, ProcessorVenmo, ProcessorPayPal, ProcessorOffline:
		return PaymentProcessor(s), true
	default:
		return "", false
	}
}

type Payment struct {
	ID           string           `json:"id"`
	BookingID    string           `json:"booking_id"`
	Status       PaymentStatus    `json:"status"`
	Processor    PaymentProcessor `json:"processor"`
	AmountCents  int64            `json:"amount_cents"`
	PayerName    *string          `json:"payer_name,omitempty"`
	Reference    *string          `json:"reference,omitempty"`
	Note         *string          `json:"note,omitempty"`
	ProofFileURL *string          `json:"proof_file_url,omitempty"`
	ReceivedAt   *time.Time       `json:"received_at,omitempty"`
	VerifiedAt   *time.Time       `json:"verified_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ProofPatch records a submitted payment proof on a payment row.
type ProofPatch struct {
	Processor    PaymentProcessor
	PayerName    string
	Reference    string
	Note         string
	ProofFileURL string
	ReceivedAt   time.Time
}
