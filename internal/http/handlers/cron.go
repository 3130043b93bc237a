package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/http/response"
	"github.com/diagnosis/stayhold/pkg/logger"
)

const (
	expireHoldsJob = "expire-holds"
	airbnbSyncJob  = "airbnb-sync"
)

// withJobLock runs fn only if no other run of job is active.
func (h *Handlers) withJobLock(w http.ResponseWriter, r *http.Request, job string, fn func(ctx context.Context)) {
	release, ok, err := h.locker.Acquire(r.Context(), job, h.jobs.LockTTL)
	if err != nil {
		response.FromError(w, r, domain.Dependency("Failed to acquire job lock", err), response.Admin)
		return
	}
	if !ok {
		logger.WarnContext(r.Context(), "Job already running", "job", job)
		response.FromError(w, r, domain.ErrSyncAlreadyActive, response.Admin)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 3*time.Second)
		defer cancel()
		release(ctx)
	}()

	// A scheduler that hangs up must not cut a batch short. The lock TTL
	// bounds the run instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.jobs.LockTTL)
	defer cancel()
	fn(ctx)
}

// ExpireHolds handles /cron/expire-holds. Item failures yield 207 with the
// failure list.
func (h *Handlers) ExpireHolds(w http.ResponseWriter, r *http.Request) {
	h.withJobLock(w, r, expireHoldsJob, func(ctx context.Context) {
		res, err := h.sweeper.Sweep(ctx)
		if err != nil {
			response.FromError(w, r, err, response.Admin)
			return
		}
		status := http.StatusOK
		if len(res.Failures) > 0 {
			status = http.StatusMultiStatus
		}
		logger.InfoContext(ctx, "Expired holds swept",
			"processed", res.Processed,
			"succeeded", res.Succeeded,
			"skipped", res.Skipped,
			"failed", len(res.Failures))
		response.WriteJSON(w, status, res)
	})
}

// SyncAirbnb handles /cron/airbnb-sync. ?delete_missing overrides the
// configured default.
func (h *Handlers) SyncAirbnb(w http.ResponseWriter, r *http.Request) {
	deleteMissing := h.jobs.SyncDeleteMissing
	if raw := r.URL.Query().Get("delete_missing"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, "Missing or invalid field: delete_missing")
			return
		}
		deleteMissing = v
	}

	h.withJobLock(w, r, airbnbSyncJob, func(ctx context.Context) {
		res, err := h.reconciler.Sync(ctx, deleteMissing)
		if res == nil {
			response.FromError(w, r, err, response.Admin)
			return
		}
		if err != nil {
			response.WriteJSON(w, http.StatusMultiStatus, res)
			return
		}
		logger.InfoContext(ctx, "Calendar synced",
			"inserted", res.Inserted,
			"updated", res.Updated,
			"deleted", res.Deleted,
			"unchanged", res.Unchanged,
			"ignored", res.Ignored)
		response.WriteJSON(w, http.StatusOK, res)
	})
}
