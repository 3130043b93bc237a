package ical

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:abc-123@airbnb.com\r\n" +
	"DTSTART;VALUE=DATE:20250110\r\n" +
	"DTEND;VALUE=DATE:20250112\r\n" +
	"SUMMARY:Reserved\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:long-uid-\r\n" +
	" continued\r\n" +
	"DTSTART:20250120T030000Z\r\n" +
	"DTEND:20250122T030000Z\r\n" +
	"SUMMARY:Airbnb (Not\r\n" +
	"\t available)\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTART;VALUE=DATE:20250201\r\n" +
	"DTEND;VALUE=DATE:20250203\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParse(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	events, skipped, err := Parse(sampleFeed, ny)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if len(skipped) != 1 || skipped[0].Reason != "missing UID" {
		t.Fatalf("expected the uid-less event to be skipped, got %+v", skipped)
	}

	first := events[0]
	if first.UID != "abc-123@airbnb.com" || first.Range.String() != "2025-01-10/2025-01-12" {
		t.Fatalf("unexpected first event %+v (%s)", first, first.Range)
	}

	second := events[1]
	if second.UID != "long-uid-continued" {
		t.Fatalf("folded uid not joined: %q", second.UID)
	}
	if second.Summary != "Airbnb (Not available)" {
		t.Fatalf("folded summary not joined: %q", second.Summary)
	}
	// 03:00 UTC is still the previous evening in New York.
	if second.Range.String() != "2025-01-19/2025-01-21" {
		t.Fatalf("date-time not converted to property zone: %s", second.Range)
	}
}

func TestParse_FloatingDateTimeTreatedAsUTC(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	feed := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nUID:f1\nDTSTART:20250105T030000\nDTEND:20250107T150000\nEND:VEVENT\nEND:VCALENDAR\n"
	events, _, err := Parse(feed, ny)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Range.String() != "2025-01-04/2025-01-07" {
		t.Fatalf("got %+v", events)
	}
}

func TestParse_UnknownTZIDFallsBackToUTC(t *testing.T) {
	feed := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nUID:tz1\nDTSTART;TZID=Mars/Olympus:20250105T230000\nDTEND;TZID=Mars/Olympus:20250107T100000\nEND:VEVENT\nEND:VCALENDAR\n"
	events, _, err := Parse(feed, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %+v", events)
	}
	ev := events[0]
	if ev.Range.String() != "2025-01-05/2025-01-07" {
		t.Errorf("range = %s, want UTC reading", ev.Range)
	}
	if ev.UnknownTZID != "Mars/Olympus" {
		t.Errorf("UnknownTZID = %q, want Mars/Olympus", ev.UnknownTZID)
	}

	feed = strings.ReplaceAll(feed, "Mars/Olympus", "UTC")
	events, _, err = Parse(feed, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].UnknownTZID != "" {
		t.Errorf("known TZID flagged: %+v", events)
	}
}

func TestParse_TimedEventWithinOneDay(t *testing.T) {
	feed := "BEGIN:VCALENDAR\nBEGIN:VEVENT\nUID:t1\nDTSTART:20250105T100000Z\nDTEND:20250105T120000Z\nEND:VEVENT\nEND:VCALENDAR\n"
	events, _, err := Parse(feed, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Range.String() != "2025-01-05/2025-01-06" {
		t.Fatalf("got %+v", events)
	}
}

func TestParse_DropsMalformedEvents(t *testing.T) {
	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT", "UID:bad-date", "DTSTART;VALUE=DATE:2025-01-05", "DTEND;VALUE=DATE:20250107", "END:VEVENT",
		"BEGIN:VEVENT", "UID:no-end", "DTSTART;VALUE=DATE:20250105", "END:VEVENT",
		"BEGIN:VEVENT", "UID:inverted", "DTSTART;VALUE=DATE:20250107", "DTEND;VALUE=DATE:20250105", "END:VEVENT",
		"END:VCALENDAR",
	}, "\n")
	events, skipped, err := Parse(feed, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if len(skipped) != 3 {
		t.Fatalf("expected 3 skipped events, got %+v", skipped)
	}
}

func TestParse_NotCalendar(t *testing.T) {
	_, _, err := Parse("<html>login required</html>", time.UTC)
	if !errors.Is(err, ErrNotCalendar) {
		t.Fatalf("expected ErrNotCalendar, got %v", err)
	}
}

func TestIsOwnerBlackout(t *testing.T) {
	tests := []struct {
		summary string
		want    bool
	}{
		{"Airbnb (Not available)", true},
		{"not_available", true},
		{"Unavailable", true},
		{"Owner stay", true},
		{"Owner-Block", true},
		{"Ownerless listing", false},
		{"Blocked", true},
		{"Unblocked", false},
		{"Block", true},
		{"block: maintenance", true},
		{"Blocking", false},
		{"Block-out", true},
		{"block off", true},
		{"Calendar Hold", true},
		{"Reserved", false},
		{"Jane Guest", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			if got := IsOwnerBlackout(tt.summary); got != tt.want {
				t.Fatalf("IsOwnerBlackout(%q) = %v, want %v", tt.summary, got, tt.want)
			}
		})
	}
}

func TestHTTPFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	body, err := NewHTTPFeed(srv.URL+"/cal.ics", time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "BEGIN:VCALENDAR") {
		t.Fatalf("unexpected body %q", body)
	}

	if _, err := NewHTTPFeed(srv.URL+"/missing", time.Second).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 404 feed")
	}
	if _, err := NewHTTPFeed("", time.Second).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured feed")
	}
}
