package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/ical"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/diagnosis/stayhold/pkg/events"
	"github.com/diagnosis/stayhold/pkg/logger"
)

// FeedSource returns the raw text of an external calendar.
type FeedSource interface {
	Fetch(ctx context.Context) (string, error)
}

// SyncResult counts the block writes of one sync. Errors lists the
// categories that failed to apply; the others were still applied.
type SyncResult struct {
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Deleted   int      `json:"deleted"`
	Unchanged int      `json:"unchanged"`
	Ignored   int      `json:"ignored"`
	Errors    []string `json:"errors,omitempty"`
}

type Reconciler interface {
	Sync(ctx context.Context, deleteMissing bool) (*SyncResult, error)
}

type ReconcilerConfig struct {
	PropertyID string
	Source     domain.BlockSource
	Location   *time.Location
}

type reconciler struct {
	Deps
	feed FeedSource
	cfg  ReconcilerConfig
}

func NewReconciler(deps Deps, feed FeedSource, cfg ReconcilerConfig) Reconciler {
	if cfg.Source == "" {
		cfg.Source = domain.SourceAirbnbICS
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &reconciler{Deps: deps, feed: feed, cfg: cfg}
}

type syncPlan struct {
	inserts   []domain.CalendarBlock
	updates   map[interval.Range][]string
	unchanged []string
	deletes   []string
}

func (r *reconciler) Sync(ctx context.Context, deleteMissing bool) (*SyncResult, error) {
	started := time.Now()
	defer func() { r.Metrics.ObserveJob("airbnb_sync", time.Since(started).Seconds()) }()

	res, err := r.sync(ctx, deleteMissing)
	switch {
	case res == nil:
		r.Metrics.SyncRun("failed")
	case err != nil:
		r.Metrics.SyncRun("partial")
	default:
		r.Metrics.SyncRun("ok")
	}
	if err != nil {
		logger.ErrorContext(ctx, "Calendar sync failed", "error", err)
		if nerr := r.Notifier.NotifyFailure(ctx, r.Emails.SyncFailure(err)); nerr != nil {
			logger.ErrorContext(ctx, "Failed to send sync failure notification", "error", nerr)
		}
	}
	return res, err
}

func (r *reconciler) sync(ctx context.Context, deleteMissing bool) (*SyncResult, error) {
	// Fetch and parse fully before touching the store.
	raw, err := r.feed.Fetch(ctx)
	if err != nil {
		return nil, domain.Dependency("Failed to fetch calendar feed", err)
	}
	parsed, skipped, err := ical.Parse(raw, r.cfg.Location)
	if err != nil {
		return nil, domain.Dependency("Failed to parse calendar feed", err)
	}
	for _, s := range skipped {
		logger.WarnContext(ctx, "Skipping calendar event", "uid", s.UID, "reason", s.Reason)
	}
	for _, ev := range parsed {
		if ev.UnknownTZID != "" {
			logger.WarnContext(ctx, "Unknown TZID, reading event time as UTC", "uid", ev.UID, "tzid", ev.UnknownTZID)
		}
	}

	stored, err := r.Blocks.List(ctx, domain.BlockFilter{PropertyID: r.cfg.PropertyID, Source: r.cfg.Source})
	if err != nil {
		return nil, domain.Dependency("Failed to load calendar blocks", err)
	}

	now := r.now()
	res := &SyncResult{Ignored: len(skipped)}
	plan := r.diff(ctx, parsed, stored, deleteMissing, now, res)

	var errs []error
	fail := func(op string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", op, err))
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", op, err))
	}

	if err := r.Blocks.Insert(ctx, plan.inserts); err != nil {
		fail("insert", err)
	} else {
		res.Inserted = len(plan.inserts)
	}
	for rng, ids := range plan.updates {
		rng := rng
		if err := r.Blocks.Patch(ctx, ids, domain.BlockPatch{Range: &rng, LastSyncAt: &now}); err != nil {
			fail("update", err)
			continue
		}
		res.Updated += len(ids)
	}
	if err := r.Blocks.Patch(ctx, plan.unchanged, domain.BlockPatch{LastSyncAt: &now}); err != nil {
		fail("touch", err)
	} else {
		res.Unchanged = len(plan.unchanged)
	}
	if err := r.Blocks.Delete(ctx, plan.deletes); err != nil {
		fail("delete", err)
	} else {
		res.Deleted = len(plan.deletes)
	}

	r.Metrics.SyncApplied("insert", res.Inserted)
	r.Metrics.SyncApplied("update", res.Updated)
	r.Metrics.SyncApplied("unchanged", res.Unchanged)
	r.Metrics.SyncApplied("delete", res.Deleted)
	logger.InfoContext(ctx, "Calendar sync applied",
		"inserted", res.Inserted, "updated", res.Updated, "deleted", res.Deleted,
		"unchanged", res.Unchanged, "ignored", res.Ignored, "errors", len(errs))

	r.publish(ctx, events.CalendarSynced, events.CalendarSyncedEvent{
		PropertyID: r.cfg.PropertyID,
		Inserted:   res.Inserted,
		Updated:    res.Updated,
		Deleted:    res.Deleted,
		Unchanged:  res.Unchanged,
		SyncedAt:   now,
	})

	if len(errs) > 0 {
		return res, domain.Dependency("Calendar sync partially applied", errors.Join(errs...))
	}
	return res, nil
}

// diff matches feed events to stored blocks by external ref. Only blocks
// carrying an external ref and no booking are candidates for change.
func (r *reconciler) diff(ctx context.Context, parsed []ical.Event, stored []domain.CalendarBlock, deleteMissing bool, now time.Time, res *SyncResult) syncPlan {
	plan := syncPlan{updates: make(map[interval.Range][]string)}

	// Extra rows sharing a ref are removed whatever deleteMissing says; the
	// first one keeps mirroring the event.
	byRef := make(map[string]domain.CalendarBlock, len(stored))
	for _, b := range stored {
		if b.ExternalRef == nil || *b.ExternalRef == "" || b.BookingID != nil {
			continue
		}
		if _, dup := byRef[*b.ExternalRef]; dup {
			logger.WarnContext(ctx, "Removing duplicate external block", "external_ref", *b.ExternalRef, "block_id", b.ID)
			plan.deletes = append(plan.deletes, b.ID)
			continue
		}
		byRef[*b.ExternalRef] = b
	}

	seen := make(map[string]bool, len(parsed))
	for _, ev := range parsed {
		if seen[ev.UID] {
			res.Ignored++
			continue
		}
		seen[ev.UID] = true

		if ical.IsOwnerBlackout(ev.Summary) {
			res.Ignored++
			continue
		}

		existing, ok := byRef[ev.UID]
		if !ok {
			uid := ev.UID
			syncedAt := now
			plan.inserts = append(plan.inserts, domain.CalendarBlock{
				PropertyID:  r.cfg.PropertyID,
				Range:       ev.Range,
				Source:      r.cfg.Source,
				Status:      domain.StatusConfirmed,
				ExternalRef: &uid,
				LastSyncAt:  &syncedAt,
			})
			continue
		}
		delete(byRef, ev.UID)
		if existing.Range != ev.Range {
			plan.updates[ev.Range] = append(plan.updates[ev.Range], existing.ID)
		} else {
			plan.unchanged = append(plan.unchanged, existing.ID)
		}
	}

	// Whatever is left was not in the feed, including owner blackouts that
	// an earlier sync imported.
	if deleteMissing {
		for _, b := range byRef {
			plan.deletes = append(plan.deletes, b.ID)
		}
	}
	return plan
}
