package availability

import (
	"testing"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
)

func day(s string) interval.Day {
	d, err := interval.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rng(start, end string) interval.Range {
	return interval.Range{Start: day(start), End: day(end)}
}

func strPtr(s string) *string { return &s }

func TestScenarioHoldAgainstMixedBlocks(t *testing.T) {
	blocks := []domain.CalendarBlock{
		{ID: "b1", Range: rng("2025-01-10", "2025-01-12"), Source: domain.SourceInternal, Status: domain.StatusInternalConfirmed, BookingID: strPtr("bk1")},
		{ID: "b2", Range: rng("2025-01-15", "2025-01-16"), Source: domain.SourceAirbnbICS, Status: domain.StatusConfirmed, ExternalRef: strPtr("uid-1")},
	}

	ok := CanHold(rng("2025-01-12", "2025-01-15"), blocks)
	if !ok.OK {
		t.Fatalf("expected [12,15) to be holdable, got %+v", ok)
	}

	bad := CanHold(rng("2025-01-11", "2025-01-13"), blocks)
	if bad.OK || bad.Reason != ReasonDatesUnavailable {
		t.Fatalf("expected dates unavailable, got %+v", bad)
	}
	if len(bad.Conflicts) != 1 || bad.Conflicts[0].ID != "b1" {
		t.Fatalf("expected conflict with b1, got %+v", bad.Conflicts)
	}

	if got := Classify(day("2025-01-15"), blocks); got != External {
		t.Fatalf("2025-01-15 = %s, want external", got)
	}
	if got := Classify(day("2025-01-12"), blocks); got != Available {
		t.Fatalf("checkout day 2025-01-12 = %s, want available", got)
	}
	if got := Classify(day("2025-01-11"), blocks); got != Confirmed {
		t.Fatalf("2025-01-11 = %s, want confirmed", got)
	}
}

func TestCanHold_InvalidRange(t *testing.T) {
	for _, r := range []interval.Range{rng("2025-01-10", "2025-01-10"), rng("2025-01-11", "2025-01-10")} {
		d := CanHold(r, nil)
		if d.OK || d.Reason != ReasonInvalidRange {
			t.Fatalf("expected invalid range for %v, got %+v", r, d)
		}
	}
}

func TestClassifyBlock_LegacySpellings(t *testing.T) {
	tests := []struct {
		status domain.BlockStatus
		want   Classification
	}{
		{domain.StatusInternalPending, Pending},
		{domain.StatusPending, Pending},
		{domain.StatusInternalConfirmed, Confirmed},
		{domain.StatusConfirmed, Confirmed},
		{domain.StatusBlocked, Blocked},
		{"maintenance", Blocked},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			b := domain.CalendarBlock{Source: domain.SourceInternal, Status: tt.status}
			if got := ClassifyBlock(b); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_StrongestClaimWins(t *testing.T) {
	blocks := []domain.CalendarBlock{
		{Range: rng("2025-02-01", "2025-02-05"), Source: domain.SourceInternal, Status: domain.StatusInternalPending},
		{Range: rng("2025-02-03", "2025-02-04"), Source: domain.SourceAirbnbICS, Status: domain.StatusConfirmed},
	}
	if got := Classify(day("2025-02-03"), blocks); got != External {
		t.Fatalf("got %s, want external", got)
	}
	if got := Classify(day("2025-02-02"), blocks); got != Pending {
		t.Fatalf("got %s, want pending", got)
	}
}

func TestWindow(t *testing.T) {
	blocks := []domain.CalendarBlock{
		{ID: "late", Range: rng("2025-03-10", "2025-03-12")},
		{ID: "early", Range: rng("2025-03-01", "2025-03-03")},
		{ID: "edge", Range: rng("2025-03-05", "2025-03-06")},
	}
	start, end := day("2025-03-03"), day("2025-03-10")
	got := Window(blocks, &start, &end)
	if len(got) != 1 || got[0].ID != "edge" {
		t.Fatalf("got %+v", got)
	}

	all := Window(blocks, nil, nil)
	if len(all) != 3 || all[0].ID != "early" || all[2].ID != "late" {
		t.Fatalf("expected blocks ordered by start, got %+v", all)
	}
}

func TestDays(t *testing.T) {
	blocks := []domain.CalendarBlock{
		{Range: rng("2025-04-02", "2025-04-03"), Source: domain.SourceInternal, Status: domain.StatusBlocked},
	}
	got := Days(rng("2025-04-01", "2025-04-04"), blocks)
	want := []Classification{Available, Blocked, Available}
	if len(got) != len(want) {
		t.Fatalf("got %d days", len(got))
	}
	for i, c := range want {
		if got[i].Classification != c {
			t.Fatalf("day %d: got %s, want %s", i, got[i].Classification, c)
		}
	}
}
