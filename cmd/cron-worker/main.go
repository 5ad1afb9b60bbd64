package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/printdesk-backend/internal/attendance"
	"github.com/angelmondragon/printdesk-backend/internal/cron"
	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
	"github.com/angelmondragon/printdesk-backend/pkg/migrate"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "cron worker stopped", err)
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

	events := outbox.NewRepository(store.DB())
	absences, err := cron.NewAbsenceJob(cron.AbsenceJobParams{
		Logger:     logg,
		DB:         store,
		Repository: attendance.NewRepository(store.DB()),
		Outbox:     outbox.NewService(events, logg),
		Location:   loc,
		Calendar:   cfg.Attendance.HolidayCalendar,
	})
	if err != nil {
		return err
	}
	prune, err := cron.NewOutboxPruneJob(cron.OutboxPruneParams{
		Logger:    logg,
		Outbox:    events,
		Retention: cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return err
	}

	lease, err := cron.NewLease(rdb, rdb.LockKey(serviceName), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Jobs:       []cron.Job{absences, prune},
		Lock:       lease,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL * 9 / 10,
	})
	if err != nil {
		return err
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"timezone": loc.String(),
		"interval": cfg.Cron.Interval.String(),
	})
	logg.Info(runCtx, "cron worker started")
	err = service.Run(runCtx)
	logg.Info(runCtx, "cron worker stopping")
	return err
}
