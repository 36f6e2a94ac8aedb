// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"gymbooking/internal/auth"
	"gymbooking/internal/booking"
	"gymbooking/internal/clients"
	"gymbooking/internal/config"
	"gymbooking/internal/eventstore"
	"gymbooking/internal/jobs"
	"gymbooking/internal/membership"
	"gymbooking/internal/notify"
	"gymbooking/internal/observability"
	"gymbooking/internal/pkg/logger"
	"gymbooking/internal/pkg/response"
	"gymbooking/internal/postgres"
	"gymbooking/internal/schedule"
	"gymbooking/internal/uow"
	"gymbooking/internal/uow/memstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !cfg.DotenvLoaded {
		log.Debug("no .env file found, using environment only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.AppMode,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	store, events, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	app := newApp(cfg, log, store, events)

	sweeper := jobs.NewWaitlistSweeper(app.bookings, log, cfg.Waitlist.SweepSpec, cfg.Waitlist.Concurrency)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sweeper.Stop(stopCtx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "mode", cfg.AppMode, "store", cfg.Store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("server stopped gracefully")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// app holds the wired services and the HTTP router in front of them.
type app struct {
	bookings booking.Service
	members  membership.Service
	schedule schedule.Service
	router   *chi.Mux
}

func newApp(cfg *config.Config, log *logger.Logger, store uow.Store, events *eventstore.EventStore) *app {
	runner := uow.NewRunner(uow.NewManager(store), log, uow.WithMaxAttempts(cfg.UOW.MaxAttempts))

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		webhook := clients.NewWebhookClient(cfg.Notify.WebhookURL, cfg.Notify.WebhookPerSecond, log)
		notifiers = append(notifiers, notify.FromSender(webhook, log))
	}

	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	if !issuer.Enabled() {
		log.Warn("JWT_SECRET not set, booking routes are unauthenticated")
	}

	a := &app{
		bookings: booking.NewService(runner, notifiers, log, booking.WithLocation(cfg.Location)),
		members:  membership.NewService(runner, issuer, log, membership.WithRateLimit(cfg.RegistrationPerMinute)),
		schedule: schedule.NewService(runner, schedule.NewRoomDirectory(cfg.Rooms...), log),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.OK(w, map[string]string{"status": "ok", "store": cfg.Store})
	})
	membership.NewHandler(a.members).Routes(r)
	schedule.NewHandler(a.schedule).Routes(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))
		booking.NewHandler(a.bookings).Routes(r)
	})
	if events != nil {
		eventstore.NewHandler(events).Routes(r)
	}
	a.router = r
	return a
}

// openStore returns the configured uow.Store. The journal is only available
// with the postgres store.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (uow.Store, *eventstore.EventStore, func(), error) {
	if cfg.Store != "postgres" {
		log.Info("using in-memory store")
		return memstore.New(), nil, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, nil, err
	}
	closeDB := func() { closeQuietly(db, log) }

	store := postgres.New(db, nil)
	if err := store.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	log.Info("database migration completed")
	return store, store.Events(), closeDB, nil
}

func closeQuietly(db *sqlx.DB, log *logger.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
