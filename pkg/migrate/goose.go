package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/printdesk-backend/pkg/logger"
)

// Runner applies the versioned Postgres migrations. SQLite databases are
// built by AutoMigrate instead.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

// NewRunner reads migrations from fsys; pass Embedded() for the copy
// compiled into the binary.
func NewRunner(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("sql database is required")
	}
	if err := Validate(fsys); err != nil {
		return nil, fmt.Errorf("invalid migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down reverts the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.report(ctx, result)
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// To migrates up or down until the database sits at version.
func (r *Runner) To(ctx context.Context, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("version %q: expected YYYYMMDDHHMMSS", version)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case target > current:
		results, err = r.provider.UpTo(ctx, target)
	case target < current:
		results, err = r.provider.DownTo(ctx, target)
	}
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("migrate to %d: %w", target, err)
	}
	return nil
}

// Status logs one line per known migration.
func (r *Runner) Status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, s := range statuses {
		fields := map[string]any{"version": s.Source.Version, "file": s.Source.Path, "state": string(s.State)}
		if !s.AppliedAt.IsZero() {
			fields["applied_at"] = s.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		fields := map[string]any{
			"version":     res.Source.Version,
			"file":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Error != nil {
			r.logg.Error(r.logg.WithFields(ctx, fields), "migration failed", res.Error)
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration applied")
	}
}
