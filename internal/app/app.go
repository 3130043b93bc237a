// Package app builds the dependency graph shared by the API server and the
// one-shot job binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/diagnosis/stayhold/internal/http/handlers"
	"github.com/diagnosis/stayhold/internal/http/middleware"
	"github.com/diagnosis/stayhold/internal/ical"
	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/internal/platform/mailer"
	"github.com/diagnosis/stayhold/internal/platform/storage"
	"github.com/diagnosis/stayhold/internal/pricing"
	"github.com/diagnosis/stayhold/internal/repo/postgres"
	"github.com/diagnosis/stayhold/internal/service"
	"github.com/diagnosis/stayhold/pkg/auth"
	"github.com/diagnosis/stayhold/pkg/cache"
	"github.com/diagnosis/stayhold/pkg/config"
	"github.com/diagnosis/stayhold/pkg/database"
	"github.com/diagnosis/stayhold/pkg/events"
	"github.com/diagnosis/stayhold/pkg/joblock"
	"github.com/diagnosis/stayhold/pkg/logger"
	"github.com/diagnosis/stayhold/pkg/metrics"
	mw "github.com/diagnosis/stayhold/pkg/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Events   events.Publisher
	Locker   joblock.Locker
	Redis    redis.UniversalClient
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Holds        service.HoldService
	Lifecycle    service.BookingLifecycle
	Availability service.AvailabilityService
	Sweeper      service.Sweeper
	Reconciler   service.Reconciler
}

// New connects to every configured backend. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	a.Events, err = events.Connect(cfg.NATS.URL)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Locker, a.Redis, err = joblock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewMetrics("stayhold", a.Registry)

	proofs, err := newProofStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	loc := cfg.Property.Location()
	emails := notify.NewEmails(notify.Brand{
		PropertyName: cfg.Property.Name,
		Signature:    cfg.Email.FromName,
		SiteURL:      cfg.Property.SiteURL,
		Location:     loc,
		ZelleEmail:   cfg.Property.ZelleEmail,
		VenmoHandle:  cfg.Property.VenmoHandle,
	})

	deps := service.Deps{
		Bookings: postgres.NewBookingRepo(pool),
		Blocks:   postgres.NewCalendarBlockRepo(pool),
		Payments: postgres.NewPaymentRepo(pool),
		Guests:   postgres.NewGuestRepo(pool),
		Audit:    postgres.NewAuditRepo(pool),
		Notifier: notify.NewNotifier(newMailer(cfg.Email), cfg.Email.OwnerEmail, cfg.Email.FailureEmail, a.Metrics),
		Emails:   emails,
		Events:   a.Events,
		Metrics:  a.Metrics,
	}

	a.Lifecycle = service.NewBookingLifecycle(deps)
	a.Holds = service.NewHoldService(deps, pricing.New(cfg.Pricing), proofs, service.HoldConfig{
		PropertyID: cfg.Property.ID,
		Location:   loc,
		HoldWindow: cfg.Pricing.HoldWindow,
	})
	a.Availability = service.NewAvailabilityService(deps, cfg.Property.ID)
	a.Sweeper = service.NewSweeper(deps, a.Lifecycle, cfg.Jobs.SweepConcurrency)
	a.Reconciler = service.NewReconciler(deps, ical.NewHTTPFeed(cfg.Property.AirbnbICSURL, cfg.Jobs.FeedTimeout), service.ReconcilerConfig{
		PropertyID: cfg.Property.ID,
		Location:   loc,
	})
	return a, nil
}

func (a *App) Close() {
	if a.Events != nil {
		_ = a.Events.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Router returns the versioned API routes.
func (a *App) Router() http.Handler {
	cfg := a.Config
	h := handlers.New(a.Holds, a.Lifecycle, a.Availability, a.Sweeper, a.Reconciler, a.Locker, handlers.JobOptions{
		LockTTL:           cfg.Jobs.LockTTL,
		SyncDeleteMissing: cfg.Jobs.SyncDeleteMissing,
	})

	admin := middleware.AnyOf{
		middleware.SharedSecret{
			Secret:          auth.SecretMatcher{Plain: cfg.Auth.AdminSecret, Hash: cfg.Auth.AdminSecretHash},
			Header:          "X-Admin-Secret",
			ActorFromHeader: true,
		},
		middleware.AdminJWT{Secret: cfg.Auth.JWTSecret},
	}
	cron := middleware.AnyOf{
		middleware.TrustedSchedulerHeader{Header: cfg.Auth.CronTrustedHeader},
		middleware.SharedSecret{
			Secret: auth.SecretMatcher{Plain: cfg.Auth.CronSecret},
			Header: "X-Cron-Secret",
			Actor:  "cron",
		},
	}

	return h.Routes(handlers.Policies{
		Admin: admin,
		Cron:  cron,
		GuestWrites: []func(http.Handler) http.Handler{
			middleware.NewRateLimiter(a.rateCounter(), middleware.RateLimitConfig{
				Requests: cfg.Server.RateLimit,
				Window:   cfg.Server.RateWindow,
				Scope:    "guest-writes",
			}).Middleware(),
			mw.IdempotencyMiddleware(a.idempotencyStore()),
		},
	})
}

func (a *App) rateCounter() middleware.Counter {
	if a.Redis != nil {
		return cache.NewRedisCounter(a.Redis, "stayhold:rate:")
	}
	return middleware.NewPGCounter(a.Pool)
}

func (a *App) idempotencyStore() mw.IdempotencyStore {
	if a.Redis != nil {
		return cache.NewRedisStore(a.Redis, "stayhold:")
	}
	return postgres.NewIdempotencyRepo(a.Pool)
}

// RunJob runs fn under the named job lock. It returns ok=false when another
// run holds the lock.
func (a *App) RunJob(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	release, ok, err := a.Locker.Acquire(ctx, name, a.Config.Jobs.LockTTL)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		release(rctx)
	}()
	ctx = context.WithValue(ctx, logger.JobKey, name)
	return true, fn(ctx)
}

func newMailer(cfg config.EmailConfig) mailer.Service {
	switch {
	case cfg.DevMode:
		return mailer.DevMailer{}
	case cfg.MailerSendKey != "":
		return mailer.NewMailer(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail)
	default:
		return mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

func newProofStore(cfg *config.Config) (storage.ProofStore, error) {
	if cfg.Storage.SupabaseURL != "" && cfg.Storage.SupabaseKey != "" {
		s, err := storage.NewSupabaseStore(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.ProofBucket)
		if err != nil {
			return nil, fmt.Errorf("proof storage: %w", err)
		}
		return s, nil
	}
	logger.Warn("Supabase storage not configured, keeping proofs on local disk", "dir", cfg.Storage.LocalDir)
	return &storage.LocalStore{Dir: cfg.Storage.LocalDir, BaseURL: cfg.Property.SiteURL + "/proofs"}, nil
}
