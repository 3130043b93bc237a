// Package interval implements half-open calendar-day ranges.
//
// Days are stored as a count of days since 1970-01-01 so comparisons never
// depend on a time zone. Wire formats are converted to Day exactly once, at
// the boundary where they are parsed.
package interval

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar day expressed as days since the Unix epoch.
type Day int

// DayOf returns the Day for a calendar date.
func DayOf(year int, month time.Month, day int) Day {
	return Day(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// DayFromTime returns the calendar day of t in t's own location.
func DayFromTime(t time.Time) Day {
	return DayOf(t.Year(), t.Month(), t.Day())
}

// DayIn returns the calendar day t falls on when viewed in loc.
func DayIn(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return DayFromTime(t.In(loc))
}

// ParseDay parses a YYYY-MM-DD string. A full RFC 3339 timestamp is also
// accepted and reduced to its date part as written.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dayLayout, s); err == nil {
		return DayFromTime(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DayFromTime(t), nil
	}
	return 0, fmt.Errorf("invalid date %q", s)
}

// Time returns midnight UTC of d.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

func (d Day) AddDays(n int) Day { return d + Day(n) }

func (d Day) String() string { return d.Time().Format(dayLayout) }

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range is the half-open day interval [Start, End). End is the checkout
// day and is free for a new arrival.
type Range struct {
	Start Day `json:"start"`
	End   Day `json:"end"`
}

// NewRange parses two YYYY-MM-DD strings into a Range. It does not check
// validity; callers use Valid for that.
func NewRange(start, end string) (Range, error) {
	s, err := ParseDay(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseDay(end)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: s, End: e}, nil
}

// Valid reports whether the range covers at least one day.
func (r Range) Valid() bool { return r.End > r.Start }

// Nights is the number of days covered, or 0 for an invalid range.
func (r Range) Nights() int {
	if !r.Valid() {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains reports whether day d is occupied by r.
func (r Range) Contains(d Day) bool { return r.Start <= d && d < r.End }

func (r Range) String() string { return r.Start.String() + "/" + r.End.String() }

// Overlaps reports whether a and b share at least one day.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// IsRangeAvailable reports whether r is a valid range that overlaps none
// of blocks.
func IsRangeAvailable(r Range, blocks []Range) bool {
	if !r.Valid() {
		return false
	}
	for _, b := range blocks {
		if Overlaps(r, b) {
			return false
		}
	}
	return true
}

// Coalesce sorts ranges by start and merges any range that starts on or
// before the running end. Invalid ranges cover no days and are dropped.
// The input slice is not modified.
func Coalesce(ranges []Range) []Range {
	sorted := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Valid() {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.Start <= cur.End {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = r
	}
	return append(merged, cur)
}
