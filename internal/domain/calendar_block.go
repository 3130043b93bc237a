package domain

import (
	"time"

	"github.com/diagnosis/stayhold/internal/interval"
)

type BlockSource string

const (
	SourceInternal  BlockSource = "internal"
	SourceAirbnbICS BlockSource = "airbnb_ics"
)

// External reports whether blocks of this source are owned by an outside
// calendar feed.
func (s BlockSource) External() bool { return s != "" && s != SourceInternal }

type BlockStatus string

// The store accepts two spellings for internally-owned statuses. Rows
// written by older code use the short forms.
const (
	StatusInternalPending   BlockStatus = "internal_pending"
	StatusInternalConfirmed BlockStatus = "internal_confirmed"
	StatusPending           BlockStatus = "pending"
	StatusConfirmed         BlockStatus = "confirmed"
	StatusBlocked           BlockStatus = "blocked"
)

// InternalState is the lifecycle state of a booking-owned block regardless
// of how its status is spelled.
type InternalState int

const (
	InternalNone InternalState = iota
	InternalPending
	InternalConfirmed
)

// InternalStateOf maps a stored status onto its lifecycle state.
func InternalStateOf(s BlockStatus) InternalState {
	switch s {
	case StatusInternalPending, StatusPending:
		return InternalPending
	case StatusInternalConfirmed, StatusConfirmed:
		return InternalConfirmed
	default:
		return InternalNone
	}
}

// Confirmed returns the confirmed status in the same spelling family as s.
func (s BlockStatus) Confirmed() BlockStatus {
	if s == StatusPending {
		return StatusConfirmed
	}
	return StatusInternalConfirmed
}

// PendingStatuses and HeldStatuses list every spelling of the respective
// internal states, for store queries.
var (
	PendingStatuses = []BlockStatus{StatusInternalPending, StatusPending}
	HeldStatuses    = []BlockStatus{StatusInternalPending, StatusPending, StatusInternalConfirmed, StatusConfirmed}
)

type CalendarBlock struct {
	ID          string         `json:"id"`
	PropertyID  string         `json:"property_id"`
	Range       interval.Range `json:"range"`
	Source      BlockSource    `json:"source"`
	Status      BlockStatus    `json:"status"`
	BookingID   *string        `json:"booking_id,omitempty"`
	ExternalRef *string        `json:"external_ref,omitempty"`
	LastSyncAt  *time.Time     `json:"last_sync_at,omitempty"`
}

// IsExternal reports whether the block mirrors an event from an external
// feed and is therefore owned by the reconciler.
func (b CalendarBlock) IsExternal() bool {
	return b.BookingID == nil && b.ExternalRef != nil && b.Source.External()
}

// BlockPatch updates only its non-nil fields.
type BlockPatch struct {
	Status     *BlockStatus
	Range      *interval.Range
	LastSyncAt *time.Time
}

// BlockFilter narrows a block listing. Zero values do not filter.
type BlockFilter struct {
	PropertyID string
	BookingID  string
	Source     BlockSource
	Statuses   []BlockStatus
	Window     *interval.Range
}
