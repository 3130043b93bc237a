package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/diagnosis/stayhold/internal/http/middleware"
	"github.com/diagnosis/stayhold/internal/service"
	"github.com/diagnosis/stayhold/pkg/joblock"
	"github.com/go-chi/chi/v5"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

type Handlers struct {
	holds        service.HoldService
	lifecycle    service.BookingLifecycle
	availability service.AvailabilityService
	sweeper      service.Sweeper
	reconciler   service.Reconciler
	locker       joblock.Locker
	jobs         JobOptions
}

// JobOptions configures the scheduled job endpoints.
type JobOptions struct {
	LockTTL           time.Duration
	SyncDeleteMissing bool
}

func New(
	holds service.HoldService,
	lifecycle service.BookingLifecycle,
	availability service.AvailabilityService,
	sweeper service.Sweeper,
	reconciler service.Reconciler,
	locker joblock.Locker,
	jobs JobOptions,
) *Handlers {
	if jobs.LockTTL <= 0 {
		jobs.LockTTL = 5 * time.Minute
	}
	return &Handlers{
		holds:        holds,
		lifecycle:    lifecycle,
		availability: availability,
		sweeper:      sweeper,
		reconciler:   reconciler,
		locker:       locker,
		jobs:         jobs,
	}
}

// Policies guards the route groups.
type Policies struct {
	Admin middleware.Policy
	Cron  middleware.Policy
	// GuestWrites wrap the guest POST endpoints (rate limit, idempotency).
	GuestWrites []func(http.Handler) http.Handler
}

func (h *Handlers) Routes(p Policies) chi.Router {
	r := chi.NewRouter()

	r.Get("/availability", h.GetAvailability)

	r.Route("/bookings", func(r chi.Router) {
		r.Use(p.GuestWrites...)
		r.Post("/hold", h.CreateHold)
		r.Post("/proof", h.SubmitProof)
	})

	r.Route("/admin/bookings/{invoice}", func(r chi.Router) {
		r.Use(middleware.Require(p.Admin))
		r.Post("/verify", h.VerifyBooking)
		r.Post("/cancel", h.CancelBooking)
		r.Post("/expire", h.ExpireBooking)
	})

	r.Route("/cron", func(r chi.Router) {
		r.Use(middleware.Require(p.Cron))
		// Platform schedulers issue GET; manual runs may POST.
		r.Get("/expire-holds", h.ExpireHolds)
		r.Post("/expire-holds", h.ExpireHolds)
		r.Get("/airbnb-sync", h.SyncAirbnb)
		r.Post("/airbnb-sync", h.SyncAirbnb)
	})

	return r
}

// decodeJSON decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
