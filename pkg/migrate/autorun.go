package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date on boot when
// PRINTDESK_AUTO_MIGRATE is set. SQLite gets the model schema,
// Postgres the embedded goose migrations.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	if cfg.DB.IsSQLite() || cfg.FeatureFlags.UseSQLite {
		ctx = logg.WithField(ctx, "env", cfg.App.Env)
		logg.Info(ctx, "building sqlite schema from models (dev auto-run)")
		if err := AutoMigrate(client.DB().WithContext(ctx)); err != nil {
			return fmt.Errorf("sqlite automigrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql pool: %w", err)
	}
	runner, err := NewRunner(sqlDB, Embedded(), logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying embedded migrations (dev auto-run)")
	return runner.Up(ctx)
}
