package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/stayhold/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url, nats.Name("stayhold"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Drain()
	return nil
}

// LogPublisher is used when no NATS URL is configured. Events are written
// to the debug log only.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	logger.DebugContext(ctx, "Event not published (no bus configured)", "subject", subject)
	return nil
}

func (LogPublisher) Close() error { return nil }

// Connect returns a NATS publisher when url is set and a LogPublisher
// otherwise.
func Connect(url string) (Publisher, error) {
	if url == "" {
		return LogPublisher{}, nil
	}
	return NewNATSEventBus(url)
}

// Event subjects
const (
	BookingHeld     = "booking.held"
	ProofSubmitted  = "booking.proof_submitted"
	BookingVerified = "booking.verified"
	BookingCanceled = "booking.canceled"
	BookingExpired  = "booking.expired"

	CalendarSynced = "calendar.synced"
	HoldsSwept     = "holds.swept"
)

// Event payloads
type BookingHeldEvent struct {
	BookingID     string    `json:"booking_id"`
	InvoiceNumber string    `json:"invoice_number"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	TotalCents    int64     `json:"total_cents"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

type ProofSubmittedEvent struct {
	BookingID     string    `json:"booking_id"`
	InvoiceNumber string    `json:"invoice_number"`
	PaymentID     string    `json:"payment_id"`
	Processor     string    `json:"processor"`
	ProofFileURL  string    `json:"proof_file_url"`
	ReceivedAt    time.Time `json:"received_at"`
}

type BookingTransitionEvent struct {
	BookingID     string    `json:"booking_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Status        string    `json:"status"`
	Actor         string    `json:"actor"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type CalendarSyncedEvent struct {
	PropertyID string    `json:"property_id"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	Unchanged  int       `json:"unchanged"`
	SyncedAt   time.Time `json:"synced_at"`
}

type HoldsSweptEvent struct {
	Processed int       `json:"processed"`
	Expired   int       `json:"expired"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	SweptAt   time.Time `json:"swept_at"`
}
