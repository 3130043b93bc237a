// Command airbnb-sync reconciles the Airbnb calendar feed once and exits.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/diagnosis/stayhold/internal/app"
	"github.com/diagnosis/stayhold/pkg/config"
	"github.com/diagnosis/stayhold/pkg/logger"
)

func main() {
	cfg := config.Load()
	deleteMissing := flag.Bool("delete-missing", cfg.Jobs.SyncDeleteMissing, "delete stored feed blocks absent from the feed")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	code := 0
	ran, err := a.RunJob(ctx, "airbnb-sync", func(ctx context.Context) error {
		res, err := a.Reconciler.Sync(ctx, *deleteMissing)
		if res != nil {
			logger.InfoContext(ctx, "Sync finished",
				"inserted", res.Inserted,
				"updated", res.Updated,
				"deleted", res.Deleted,
				"unchanged", res.Unchanged,
				"ignored", res.Ignored,
				"errors", res.Errors)
		}
		return err
	})
	switch {
	case err != nil:
		logger.Error("Sync failed", "error", err)
		code = 1
	case !ran:
		logger.Warn("Another sync is running, exiting")
	}
	a.Close()
	os.Exit(code)
}
