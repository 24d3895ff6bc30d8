package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/config"
	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/db"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/relay"
	"github.com/alexanderramin/streak/internal/repository"
	"github.com/alexanderramin/streak/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 3 * time.Second

// defaultFlags apply when the settings table has no usable value.
var defaultFlags = decision.Flags{SingleActiveTimer: true, AskBeforeSkippingTimer: true}

// Runtime is the wired object graph for one process.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Registry *prometheus.Registry
	Metrics  *coordinator.Metrics

	Habits      service.HabitService
	Completions service.CompletionService
	Settings    service.SettingsService
	Timers      *clock.Service
	Coordinator *coordinator.Coordinator
	Status      StatusUseCase

	Widget        *relay.Relay
	Notifications *relay.Relay

	logCloser io.Closer
}

// Options overrides parts of the graph, mainly for tests.
type Options struct {
	Clock     clock.Clock
	LogWriter io.Writer
}

// Open builds the runtime from cfg and reattaches open timer sessions.
func Open(ctx context.Context, cfg config.Config, opts Options) (*Runtime, error) {
	logger, closer, err := NewLogger(cfg, opts.LogWriter)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logger, logCloser: closer}
	if err := rt.wire(ctx, opts); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context, opts Options) error {
	cfg := rt.Config
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	rt.DB = database

	habitRepo := repository.NewSQLiteHabitRepo(database)
	sessionRepo := repository.NewSQLiteTimerSessionRepo(database)
	uow := db.NewSQLiteUnitOfWork(database)

	policies, err := service.NewPolicySource(habitRepo, cfg.PolicyCacheSize, cfg.PolicyCacheTTL())
	if err != nil {
		return err
	}
	observer := service.NewSlogUseCaseObserver(rt.Logger)

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Metrics = coordinator.MustNewMetrics(rt.Registry)

	rt.Habits = service.NewHabitService(habitRepo, policies)
	rt.Completions = service.NewCompletionService(database, uow, clk, loc, observer)
	rt.Settings = service.NewSettingsService(repository.NewSQLiteSettingsRepo(database), cfg.SeedFlags(defaultFlags))
	if err := rt.seedFlags(ctx); err != nil {
		return err
	}

	history := service.NewSessionHistory(sessionRepo, loc)
	rt.Timers = clock.NewService(sessionRepo, clock.Options{
		Clock:        clk,
		TickInterval: cfg.TickInterval(),
		Logger:       rt.Logger.With("component", "clock"),
		Observer:     rt.Metrics,
	})
	rt.Coordinator = coordinator.New(coordinator.Deps{
		Timers:      rt.Timers,
		Completions: rt.Completions,
		Policies:    policies,
		Settings:    rt.Settings,
		History:     history,
		Clock:       clk,
	}, coordinator.Options{
		DedupWindow: cfg.DedupWindow(),
		UndoWindow:  cfg.UndoWindow(),
		Logger:      rt.Logger.With("component", "coordinator"),
		Observer:    observer,
		Metrics:     rt.Metrics,
	})
	rt.Status = NewStatusService(rt.Habits, rt.Completions, history, rt.Timers, rt.Coordinator, clk)
	rt.Widget = relay.NewWidgetRelay(rt.Coordinator, rt.Logger)
	rt.Notifications = relay.NewNotificationRelay(rt.Coordinator, rt.Logger)

	if err := rt.Coordinator.Init(ctx); err != nil {
		return fmt.Errorf("restoring timer state: %w", err)
	}
	return nil
}

// seedFlags writes configured flag values so every process sees them.
func (rt *Runtime) seedFlags(ctx context.Context) error {
	if rt.Config.SingleActiveTimer != nil {
		if err := rt.Settings.SetSingleActiveTimer(ctx, *rt.Config.SingleActiveTimer); err != nil {
			return err
		}
	}
	if rt.Config.AskBeforeSkippingTimer != nil {
		if err := rt.Settings.SetAskBeforeSkipping(ctx, *rt.Config.AskBeforeSkippingTimer); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the clock ticker, the coordinator's event loop and, when
// configured, the metrics endpoint until ctx is done or one of them fails.
func (rt *Runtime) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Coordinator.Run(gctx) })
	g.Go(func() error { return rt.Timers.Run(gctx) })
	if rt.Config.MetricsAddr != "" {
		g.Go(func() error { return rt.serveMetrics(gctx) })
	}
	return g.Wait()
}

func (rt *Runtime) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              rt.Config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		rt.Logger.Info("metrics endpoint listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close stops the clock and releases the database and log file. Open
// sessions stay in the database for the next process to reattach.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Timers != nil {
		rt.Timers.Close()
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	if rt.logCloser != nil {
		errs = append(errs, rt.logCloser.Close())
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from cfg. Logs go to LogFile when set,
// else to w, else to stderr.
func NewLogger(cfg config.Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	var closer io.Closer
	switch {
	case cfg.LogFile != "":
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	case w == nil:
		w = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
	return logger, closer, nil
}
