package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"hrpay/internal/domain/audit"
	"hrpay/internal/domain/auth"
	"hrpay/internal/domain/payroll"
	"hrpay/internal/platform/cache"
	"hrpay/internal/platform/config"
	"hrpay/internal/platform/db"
	"hrpay/internal/platform/jobs"
	"hrpay/internal/platform/lock"
	"hrpay/internal/platform/metrics"
	"hrpay/internal/transport/http/api"
	audithandler "hrpay/internal/transport/http/handlers/audit"
	payrollhandler "hrpay/internal/transport/http/handlers/payroll"
	"hrpay/internal/transport/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the router needs. Run builds it from the environment;
// tests build it from stubs.
type Deps struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      Pinger
	Payroll payrollhandler.Service
	Audit   interface {
		payrollhandler.AuditRecorder
		audithandler.EventLister
	}
	Perms   middleware.PermissionStore
	Metrics *metrics.Collector
}

func NewRouter(deps Deps) http.Handler {
	var observer middleware.StatusObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(deps.Logger, observer))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.BodyLimit(deps.Config.MaxBodyBytes))
	router.Use(middleware.Auth(deps.Config.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if deps.Config.MetricsEnabled && deps.Metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, deps.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		payrollhandler.NewHandler(deps.Payroll, deps.Audit, deps.Perms).RegisterRoutes(r)
		audithandler.NewHandler(deps.Audit, deps.Perms).RegisterRoutes(r)
	})

	return router
}

func Run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	rounding, err := payroll.ParseRounding(cfg.PayrollRounding)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	rdb, err := cache.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	collector := metrics.New()
	jobRunner := jobs.New(pool)

	service := payroll.NewService(payroll.NewStore(pool), payroll.NewEngine(rounding, logger), payroll.ServiceOptions{
		Cache:    cache.New(rdb, "hrpay"),
		CacheTTL: cfg.DefinitionsCacheTTL,
		Locker:   lock.New(rdb),
		LockTTL:  cfg.ApprovalLockTTL,
		Jobs:     jobRunner,
		Metrics:  collector,
		Workers:  cfg.PayrollWorkers,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: NewRouter(Deps{
			Config:  cfg,
			Logger:  logger,
			DB:      pool,
			Payroll: service,
			Audit:   audit.New(pool),
			Perms:   auth.StaticPermissions{},
			Metrics: collector,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("payroll server listening", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
