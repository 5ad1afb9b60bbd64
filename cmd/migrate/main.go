package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/printdesk-backend/pkg/config"
	"github.com/angelmondragon/printdesk-backend/pkg/db"
	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/migrate"
)

const usage = "up|down|status|to|create|validate|automigrate|seed"

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", usage)
	flag.StringVar(&opts.dir, "dir", "", "read migrations from this directory instead of the embedded set ("+migrate.SourceDir+" for create)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// file-only commands work without any environment
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("-name is required")
		}
		path, err := migrate.CreateSQLMigration(cmp.Or(opts.dir, migrate.SourceDir), opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.Validate(source(opts.dir)); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	store, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch opts.cmd {
	case "automigrate":
		return migrate.AutoMigrate(store.DB().WithContext(ctx))
	case "seed":
		created, err := migrate.SeedDemo(ctx, store.DB())
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "created", created), "demo data seeded")
		return nil
	}

	if store.Dialect() != "postgres" {
		return fmt.Errorf("goose migrations need postgres, have %s; use -cmd=automigrate", store.Dialect())
	}
	sqlDB, err := store.DB().DB()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(sqlDB, source(opts.dir), logg)
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "status":
		return runner.Status(ctx)
	case "to":
		if opts.version == "" {
			return fmt.Errorf("-version is required")
		}
		return runner.To(ctx, opts.version)
	default:
		return fmt.Errorf("unknown command, want %s", usage)
	}
}

func source(dir string) fs.FS {
	if dir == "" {
		return migrate.Embedded()
	}
	return os.DirFS(dir)
}
