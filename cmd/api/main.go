package main

import (
	"cmp"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/printdesk-backend/api/routes"
	"github.com/angelmondragon/printdesk-backend/internal/agents"
	"github.com/angelmondragon/printdesk-backend/internal/assignment"
	"github.com/angelmondragon/printdesk-backend/internal/attendance"
	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
	"github.com/angelmondragon/printdesk-backend/pkg/migrate"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/redis"
)

const (
	serviceName = "api"
	// in-flight assignment transactions get this long to finish on SIGTERM
	shutdownGrace = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "api stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Service.Kind = serviceName
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return err
	}

	store, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, store); err != nil {
		return err
	}

	rdb, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := wire(cfg, logg, loc, store, registry)
	if err != nil {
		return err
	}
	deps.Redis = rdb
	deps.Idempotency = rdb

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cmp.Or(os.Getenv("PORT"), cfg.App.Port)),
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     srv.Addr,
		"dialect":  store.Dialect(),
		"timezone": loc.String(),
	})
	return serve(runCtx, srv, logg)
}

// wire builds the domain services over one database handle.
func wire(cfg *config.Config, logg *logger.Logger, loc *time.Location, store *db.Client, reg *prometheus.Registry) (routes.Deps, error) {
	conn := store.DB()
	roster := agents.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	dispatch := metrics.NewDispatchMetrics(reg)

	agentSvc, err := agents.NewService(roster, cfg.Assignment.DefaultCapacity, logg)
	if err != nil {
		return routes.Deps{}, err
	}
	assignSvc, err := assignment.NewService(assignment.ServiceParams{
		Repo:    assignment.NewRepository(conn),
		Agents:  roster,
		Tx:      store,
		Outbox:  events,
		Metrics: dispatch,
		Weights: assignment.WeightsFromConfig(cfg.Assignment),
		Logger:  logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}
	attendSvc, err := attendance.NewService(attendance.ServiceParams{
		Repo:              attendance.NewRepository(conn),
		Agents:            roster,
		Tx:                store,
		Outbox:            events,
		Metrics:           dispatch,
		Location:          loc,
		DefaultCapacity:   cfg.Assignment.DefaultCapacity,
		SummaryWindowDays: cfg.Attendance.SummaryWindowDays,
		Logger:            logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		DB:            store,
		Assignments:   assignSvc,
		Agents:        agentSvc,
		Attendance:    attendSvc,
		HTTPMetrics:   metrics.NewHTTPMetrics(reg),
		MetricsHandle: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, nil
}

// serve blocks until ctx is cancelled or the listener fails.
func serve(ctx context.Context, srv *http.Server, logg *logger.Logger) error {
	failed := make(chan error, 1)
	go func() { failed <- srv.ListenAndServe() }()
	logg.Info(ctx, "api listening")

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api draining")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
