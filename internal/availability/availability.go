// Package availability answers which days are free and whether a stay can
// be held, from a snapshot of calendar blocks.
package availability

import (
	"sort"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
)

type Classification string

const (
	Available Classification = "available"
	External  Classification = "external"
	Pending   Classification = "pending"
	Confirmed Classification = "confirmed"
	Blocked   Classification = "blocked"
)

// rank orders classifications when several blocks cover one day.
var rank = map[Classification]int{
	Available: 0,
	Blocked:   1,
	Pending:   2,
	External:  3,
	Confirmed: 4,
}

// ClassifyBlock maps a single block onto a classification.
func ClassifyBlock(b domain.CalendarBlock) Classification {
	if b.Source.External() {
		return External
	}
	switch domain.InternalStateOf(b.Status) {
	case domain.InternalPending:
		return Pending
	case domain.InternalConfirmed:
		return Confirmed
	default:
		return Blocked
	}
}

// Classify returns how day is occupied. When blocks overlap on the same day
// the strongest claim wins: confirmed, then external, then pending.
func Classify(day interval.Day, blocks []domain.CalendarBlock) Classification {
	best := Available
	for _, b := range blocks {
		if !b.Range.Contains(day) {
			continue
		}
		if c := ClassifyBlock(b); rank[c] > rank[best] {
			best = c
		}
	}
	return best
}

type Decision struct {
	OK        bool
	Reason    string
	Conflicts []domain.CalendarBlock
}

const (
	ReasonInvalidRange     = "invalid date range"
	ReasonDatesUnavailable = "dates unavailable"
)

// CanHold decides whether stay may be held given blocks. Any overlapping
// block rejects, whatever its source or status.
func CanHold(stay interval.Range, blocks []domain.CalendarBlock) Decision {
	if !stay.Valid() {
		return Decision{Reason: ReasonInvalidRange}
	}
	var conflicts []domain.CalendarBlock
	for _, b := range blocks {
		if interval.Overlaps(stay, b.Range) {
			conflicts = append(conflicts, b)
		}
	}
	if len(conflicts) > 0 {
		return Decision{Reason: ReasonDatesUnavailable, Conflicts: conflicts}
	}
	return Decision{OK: true}
}

// Window keeps the blocks overlapping [start, end) and orders them by start.
// A nil bound leaves that side open.
func Window(blocks []domain.CalendarBlock, start, end *interval.Day) []domain.CalendarBlock {
	out := make([]domain.CalendarBlock, 0, len(blocks))
	for _, b := range blocks {
		if start != nil && b.Range.End <= *start {
			continue
		}
		if end != nil && b.Range.Start >= *end {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })
	return out
}

// Ranges extracts the day ranges of blocks.
func Ranges(blocks []domain.CalendarBlock) []interval.Range {
	out := make([]interval.Range, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Range)
	}
	return out
}

// Day is one entry of a per-day availability listing.
type Day struct {
	Date           interval.Day   `json:"date"`
	Classification Classification `json:"status"`
}

// Days classifies every day of window.
func Days(window interval.Range, blocks []domain.CalendarBlock) []Day {
	if !window.Valid() {
		return nil
	}
	out := make([]Day, 0, window.Nights())
	for d := window.Start; d < window.End; d++ {
		out = append(out, Day{Date: d, Classification: Classify(d, blocks)})
	}
	return out
}
