package service

import (
	"context"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/pkg/events"
	"github.com/diagnosis/stayhold/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// SweepResult summarizes one expiration sweep. Skipped counts holds that
// another writer settled first.
type SweepResult struct {
	Processed int                   `json:"processed"`
	Succeeded int                   `json:"succeeded"`
	Skipped   int                   `json:"skipped"`
	Failures  []notify.SweepFailure `json:"failures"`
}

type Sweeper interface {
	// Sweep expires every pending hold past its deadline. Item failures are
	// reported in the result; only a failure to list candidates is
	// returned as an error.
	Sweep(ctx context.Context) (*SweepResult, error)
}

type sweeper struct {
	Deps
	lifecycle   BookingLifecycle
	concurrency int
}

func NewSweeper(deps Deps, lifecycle BookingLifecycle, concurrency int) Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &sweeper{Deps: deps, lifecycle: lifecycle, concurrency: concurrency}
}

type sweepOutcome int

const (
	sweepExpired sweepOutcome = iota
	sweepSkipped
	sweepFailed
)

func (s *sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	defer func() { s.Metrics.ObserveJob("expire_holds", time.Since(started).Seconds()) }()

	now := s.now()
	candidates, err := s.Bookings.ListExpiredHolds(ctx, now)
	if err != nil {
		return nil, domain.Dependency("Failed to load expired holds", err)
	}
	logger.InfoContext(ctx, "Sweeping expired holds", "candidates", len(candidates))

	outcomes := make([]sweepOutcome, len(candidates))
	errs := make([]error, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range candidates {
		i := i
		g.Go(func() error {
			b := candidates[i]
			meta := map[string]any{
				"reason":          "hold_expired",
				"invoice_number":  b.InvoiceNumber,
				"hold_expires_at": b.HoldExpiresAt,
				"expired_at":      now,
			}
			out, err := s.lifecycle.ExpireHold(ctx, &b, domain.SweeperActor, meta)
			switch {
			case err == nil && out != nil && out.NoOp:
				outcomes[i] = sweepSkipped
			case err == nil:
				outcomes[i] = sweepExpired
			case domain.KindOf(err) == domain.KindConflict:
				logger.InfoContext(ctx, "Hold settled elsewhere, skipping", "invoice", b.InvoiceNumber, "reason", err.Error())
				outcomes[i] = sweepSkipped
			default:
				logger.ErrorContext(ctx, "Failed to expire hold", "error", err, "invoice", b.InvoiceNumber, "booking_id", b.ID)
				outcomes[i], errs[i] = sweepFailed, err
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &SweepResult{Processed: len(candidates), Failures: []notify.SweepFailure{}}
	for i, o := range outcomes {
		switch o {
		case sweepExpired:
			res.Succeeded++
			s.Metrics.SweepItem("expired")
		case sweepSkipped:
			res.Skipped++
			s.Metrics.SweepItem("skipped")
		case sweepFailed:
			s.Metrics.SweepItem("failed")
			res.Failures = append(res.Failures, notify.SweepFailure{
				BookingID:     candidates[i].ID,
				InvoiceNumber: candidates[i].InvoiceNumber,
				Error:         errs[i].Error(),
			})
		}
	}

	if len(res.Failures) > 0 {
		if err := s.Notifier.NotifyFailure(ctx, s.Emails.SweepFailures(res.Processed, res.Failures)); err != nil {
			logger.ErrorContext(ctx, "Failed to send sweep failure notification", "error", err)
		}
	}
	s.publish(ctx, events.HoldsSwept, events.HoldsSweptEvent{
		Processed: res.Processed,
		Expired:   res.Succeeded,
		Skipped:   res.Skipped,
		Failed:    len(res.Failures),
		SweptAt:   now,
	})
	logger.InfoContext(ctx, "Sweep finished", "processed", res.Processed, "expired", res.Succeeded,
		"skipped", res.Skipped, "failed", len(res.Failures))
	return res, nil
}
