package service

import (
	"context"

	"github.com/diagnosis/stayhold/internal/availability"
	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/diagnosis/stayhold/internal/repo/postgres"
)

// maxCalendarDays bounds a per-day listing.
const maxCalendarDays = 366

// AvailabilityBlock is the public view of a calendar block.
type AvailabilityBlock struct {
	ID        string             `json:"id"`
	Source    domain.BlockSource `json:"source"`
	Status    domain.BlockStatus `json:"status"`
	StartDate interval.Day       `json:"start_date"`
	EndDate   interval.Day       `json:"end_date"`
}

// AvailabilityService is the read-only calendar feed for guest pages.
type AvailabilityService interface {
	// Blocks lists blocks overlapping the optional window, ordered by start.
	Blocks(ctx context.Context, start, end *interval.Day) ([]AvailabilityBlock, error)
	// Ranges lists the merged unavailable ranges overlapping the window.
	Ranges(ctx context.Context, start, end *interval.Day) ([]interval.Range, error)
	// Days classifies every day of window.
	Days(ctx context.Context, window interval.Range) ([]availability.Day, error)
}

type availabilityService struct {
	blocks     postgres.CalendarBlockRepo
	propertyID string
}

func NewAvailabilityService(deps Deps, propertyID string) AvailabilityService {
	return &availabilityService{blocks: deps.Blocks, propertyID: propertyID}
}

func (s *availabilityService) load(ctx context.Context, start, end *interval.Day) ([]domain.CalendarBlock, error) {
	if start != nil && end != nil && *end <= *start {
		return nil, domain.Validation("Window end must be after start")
	}
	f := domain.BlockFilter{PropertyID: s.propertyID}
	if start != nil && end != nil {
		f.Window = &interval.Range{Start: *start, End: *end}
	}
	blocks, err := s.blocks.List(ctx, f)
	if err != nil {
		return nil, domain.Dependency("Failed to load calendar", err)
	}
	return availability.Window(blocks, start, end), nil
}

func (s *availabilityService) Blocks(ctx context.Context, start, end *interval.Day) ([]AvailabilityBlock, error) {
	blocks, err := s.load(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]AvailabilityBlock, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, AvailabilityBlock{
			ID:        b.ID,
			Source:    b.Source,
			Status:    b.Status,
			StartDate: b.Range.Start,
			EndDate:   b.Range.End,
		})
	}
	return out, nil
}

func (s *availabilityService) Ranges(ctx context.Context, start, end *interval.Day) ([]interval.Range, error) {
	blocks, err := s.load(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return interval.Coalesce(availability.Ranges(blocks)), nil
}

func (s *availabilityService) Days(ctx context.Context, window interval.Range) ([]availability.Day, error) {
	if !window.Valid() {
		return nil, domain.Validation("Window end must be after start")
	}
	if window.Nights() > maxCalendarDays {
		return nil, domain.Validation("Window may span at most 366 days")
	}
	blocks, err := s.load(ctx, &window.Start, &window.End)
	if err != nil {
		return nil, err
	}
	return availability.Days(window, blocks), nil
}
