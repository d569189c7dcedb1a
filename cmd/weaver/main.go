package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	wnats "github.com/inkforge/weaver/internal/adapter/nats"
	wotel "github.com/inkforge/weaver/internal/adapter/otel"
	"github.com/inkforge/weaver/internal/adapter/postgres"
	"github.com/inkforge/weaver/internal/adapter/ristretto"
	"github.com/inkforge/weaver/internal/adapter/ws"
	"github.com/inkforge/weaver/internal/config"
	"github.com/inkforge/weaver/internal/logger"
	"github.com/inkforge/weaver/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	shutdownOtel, err := wotel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := wotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := wnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	cache, err := ristretto.New(cfg.Cache.L1MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	audit := postgres.NewWorklog(pool)
	enqueuer := wnats.NewEnqueuer(queue)
	backend := wnats.NewGenerationBackend(queue)

	plannerSvc := service.NewPlannerService(store, audit, metrics)
	quotaSvc := service.NewQuotaService(cfg.Quota, cache)

	registry, err := service.NewRunnerRegistry(
		service.AllRunners(plannerSvc, backend, store, quotaSvc, cfg.Critique)...,
	)
	if err != nil {
		return fmt.Errorf("runner registry: %w", err)
	}

	engine := service.NewPhaseEngineService(store, registry, queue, hub, audit, metrics)
	scheduler := service.NewSchedulerService(store, enqueuer, metrics)
	consumer := service.NewJobConsumer(engine, scheduler, queue)
	loreSvc := service.NewLoreService(store, enqueuer, cfg.Lore.SLA, cfg.Lore.SweepInterval)

	cancelJobs, err := consumer.Start(ctx)
	if err != nil {
		return fmt.Errorf("job consumer: %w", err)
	}
	defer cancelJobs()

	// --- HTTP ---
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(wotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(requestIDContext)
	r.Get("/health", healthHandler(queue, pool.Ping))
	r.Get("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		loreSvc.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// requestIDContext copies chi's request id into the logger context helper.
func requestIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id == "" {
			id = uuid.NewString()
		}
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// healthHandler reports connectivity of the service's dependencies.
func healthHandler(queue interface{ IsConnected() bool }, pingDB func(context.Context) error) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "up", NATS: "up"}

		if err := pingDB(r.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = "down"
		}
		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "down"
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
