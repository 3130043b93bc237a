// Package ical reads VEVENT blocks out of an iCalendar feed and reduces
// their dates to calendar days in a given time zone.
package ical

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/diagnosis/stayhold/internal/interval"
)

var ErrNotCalendar = errors.New("feed is not an iCalendar document")

type Event struct {
	UID     string
	Summary string
	Range   interval.Range
	// UnknownTZID is set when a TZID could not be loaded and the time was
	// read as UTC instead.
	UnknownTZID string
}

// Skipped describes an event dropped while parsing.
type Skipped struct {
	UID    string
	Reason string
}

var (
	dateOnly      = regexp.MustCompile(`^\d{8}$`)
	dateTimeUTC   = regexp.MustCompile(`^\d{8}T\d{6}Z$`)
	dateTimeLocal = regexp.MustCompile(`^\d{8}T\d{6}$`)
)

// Parse extracts events from feed. Date-time values are converted to loc
// before being reduced to a day. Events without a UID or a usable start
// and end are dropped and reported in the second return value.
func Parse(feed string, loc *time.Location) ([]Event, []Skipped, error) {
	if loc == nil {
		loc = time.UTC
	}
	lines := unfold(feed)
	if !hasCalendar(lines) {
		return nil, nil, ErrNotCalendar
	}

	var (
		events  []Event
		skipped []Skipped
	)
	for _, raw := range extractEvents(lines) {
		ev, reason := parseEvent(raw, loc)
		if reason != "" {
			skipped = append(skipped, Skipped{UID: ev.UID, Reason: reason})
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

// unfold joins continuation lines. A line starting with a space or tab
// continues the previous line with its first character removed.
func unfold(feed string) []string {
	feed = strings.ReplaceAll(feed, "\r\n", "\n")
	feed = strings.ReplaceAll(feed, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(feed, "\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(lines) > 0 {
				lines[len(lines)-1] += line[1:]
			}
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines
}

func hasCalendar(lines []string) bool {
	for _, l := range lines {
		if strings.EqualFold(l, "BEGIN:VCALENDAR") {
			return true
		}
	}
	return false
}

func extractEvents(lines []string) [][]string {
	var (
		events  [][]string
		current []string
		inEvent bool
	)
	for _, line := range lines {
		switch {
		case strings.EqualFold(line, "BEGIN:VEVENT"):
			current, inEvent = nil, true
		case strings.EqualFold(line, "END:VEVENT"):
			if inEvent {
				events = append(events, current)
			}
			current, inEvent = nil, false
		case inEvent:
			current = append(current, line)
		}
	}
	return events
}

type property struct {
	name   string
	params map[string]string
	value  string
}

func parseProperty(line string) (property, bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return property{}, false
	}
	parts := strings.Split(line[:idx], ";")
	p := property{
		name:   strings.ToUpper(parts[0]),
		params: map[string]string{},
		value:  line[idx+1:],
	}
	for _, param := range parts[1:] {
		key, val, ok := strings.Cut(param, "=")
		if ok && key != "" && val != "" {
			p.params[strings.ToUpper(key)] = strings.Trim(val, `"`)
		}
	}
	return p, true
}

func parseEvent(lines []string, loc *time.Location) (Event, string) {
	var (
		ev                   Event
		start, end           interval.Day
		hasStart, hasEnd     bool
		startTimed, endTimed bool
	)
	for _, line := range lines {
		p, ok := parseProperty(line)
		if !ok {
			continue
		}
		switch p.name {
		case "UID":
			ev.UID = strings.TrimSpace(p.value)
		case "SUMMARY":
			ev.Summary = unescapeText(strings.TrimSpace(p.value))
		case "DTSTART":
			d, timed, err := parseDate(p, loc)
			if err != nil {
				return ev, fmt.Sprintf("invalid DTSTART: %v", err)
			}
			ev.noteTZID(p)
			start, hasStart, startTimed = d, true, timed
		case "DTEND":
			d, timed, err := parseDate(p, loc)
			if err != nil {
				return ev, fmt.Sprintf("invalid DTEND: %v", err)
			}
			ev.noteTZID(p)
			end, hasEnd, endTimed = d, true, timed
		}
	}
	switch {
	case ev.UID == "":
		return ev, "missing UID"
	case !hasStart:
		return ev, "missing DTSTART"
	case !hasEnd:
		return ev, "missing DTEND"
	}
	if end <= start {
		// A timed event inside a single local day still occupies that day.
		if !(startTimed || endTimed) {
			return ev, "DTEND is not after DTSTART"
		}
		end = start + 1
	}
	ev.Range = interval.Range{Start: start, End: end}
	return ev, ""
}

func (ev *Event) noteTZID(p property) {
	if ev.UnknownTZID != "" || !dateTimeLocal.MatchString(strings.TrimSpace(p.value)) {
		return
	}
	if tzid := p.params["TZID"]; tzid != "" {
		if _, err := time.LoadLocation(tzid); err != nil {
			ev.UnknownTZID = tzid
		}
	}
}

// parseDate reduces a DTSTART or DTEND value to a day. The second result
// reports whether the value carried a time of day.
func parseDate(p property, loc *time.Location) (interval.Day, bool, error) {
	value := strings.TrimSpace(p.value)
	if strings.EqualFold(p.params["VALUE"], "DATE") || dateOnly.MatchString(value) {
		if !dateOnly.MatchString(value) {
			return 0, false, fmt.Errorf("bad date %q", value)
		}
		t, err := time.Parse("20060102", value)
		if err != nil {
			return 0, false, err
		}
		return interval.DayFromTime(t), false, nil
	}

	var (
		t   time.Time
		err error
	)
	switch {
	case dateTimeUTC.MatchString(value):
		t, err = time.Parse("20060102T150405Z", value)
	case dateTimeLocal.MatchString(value):
		src := time.UTC
		if tzid := p.params["TZID"]; tzid != "" {
			if l, lerr := time.LoadLocation(tzid); lerr == nil {
				src = l
			}
		}
		t, err = time.ParseInLocation("20060102T150405", value, src)
	default:
		return 0, false, fmt.Errorf("unsupported date value %q", value)
	}
	if err != nil {
		return 0, false, err
	}
	return interval.DayIn(t, loc), true, nil
}

var textEscapes = strings.NewReplacer(`\n`, " ", `\N`, " ", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string { return textEscapes.Replace(s) }
