package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/folio-auth/internal/config"
	"github.com/BradenHooton/folio-auth/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const usage = `usage: migrate [flags] <command> [args]

commands:
  up                 apply all pending migrations
  up-to VERSION      apply migrations up to VERSION
  down               roll back the latest migration
  down-to VERSION    roll back to VERSION
  redo               roll back and reapply the latest migration
  status             print migration status
  version            print the current version
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(logger, *timeout, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("migration failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, timeout time.Duration, command string, args []string) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	logger.Info("running migrations", slog.String("command", command), slog.String("database", cfg.Name))

	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return err
	}

	logger.Info("migrations complete", slog.String("command", command))
	return nil
}
