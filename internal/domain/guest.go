package domain

import "time"

type Guest struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditEvent struct {
	ID        int64          `json:"id"`
	BookingID *string        `json:"booking_id,omitempty"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	AuditBookingHeld     = "booking_held"
	AuditProofSubmitted  = "payment_proof_submitted"
	AuditBookingVerified = "booking_verified"
	AuditBookingCanceled = "booking_canceled"
	AuditBookingExpired  = "booking_expired"

	// SweeperActor is recorded on audit rows written by the expiration
	// sweep.
	SweeperActor = "cron/expire-holds"
)
