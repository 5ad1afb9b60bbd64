package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/migrate"
	"github.com/angelmondragon/printdesk-backend/pkg/outbox"
	"github.com/angelmondragon/printdesk-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "outbox publisher stopped", err)
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

	store, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, store); err != nil {
		return err
	}

	ps, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer ps.Close()

	dispatch := ps.DispatchPublisher()
	if dispatch != nil {
		// flush anything still buffered before the client closes
		defer dispatch.Stop()
	}

	relay, err := NewRelay(RelayParams{
		Config: cfg,
		Logger: logg,
		DB:     store,
		Store:  outbox.NewRepository(store.DB()),
		Topic:  topicPublisher{p: dispatch},
		Checks: map[string]func(context.Context) error{
			"database": store.Ping,
			"pubsub":   ps.Ping,
		},
	})
	if err != nil {
		return err
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"topic": cfg.PubSub.DispatchTopic,
	})
	logg.Info(runCtx, "outbox publisher started")
	err = relay.Run(runCtx)
	logg.Info(runCtx, "outbox publisher stopping")
	return err
}
