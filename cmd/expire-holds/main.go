// Command expire-holds runs one expiration sweep and exits. Holds that
// could not be expired are logged and mailed to the operator; only a
// failure to list candidates exits non-zero.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/diagnosis/stayhold/internal/app"
	"github.com/diagnosis/stayhold/internal/service"
	"github.com/diagnosis/stayhold/pkg/config"
	"github.com/diagnosis/stayhold/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.Load())
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	code := 0
	ran, err := a.RunJob(ctx, "expire-holds", func(ctx context.Context) error {
		return sweep(ctx, a.Sweeper)
	})
	switch {
	case err != nil:
		logger.Error("Sweep failed", "error", err)
		code = 1
	case !ran:
		logger.Warn("Another sweep is running, exiting")
	}
	a.Close()
	os.Exit(code)
}

// sweep runs one pass. Per-hold failures do not fail the batch.
func sweep(ctx context.Context, s service.Sweeper) error {
	res, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Sweep finished",
		"processed", res.Processed,
		"succeeded", res.Succeeded,
		"skipped", res.Skipped,
		"failed", len(res.Failures))
	for _, f := range res.Failures {
		logger.WarnContext(ctx, "Hold not expired", "invoice", f.InvoiceNumber, "booking_id", f.BookingID, "error", f.Error)
	}
	return nil
}
