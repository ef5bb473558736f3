package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"intentflow/internal/app"
	"intentflow/internal/config"
	"intentflow/internal/logger"
	"intentflow/internal/mcp"
	"intentflow/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	cfg, err := config.Load(os.Getenv("IF_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logCfg := logger.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON}
	if cmd == "mcp-stdio" {
		// stdout carries JSON-RPC frames.
		logCfg.Output = os.Stderr
	}
	log := logger.New(logCfg).With("service", "intentflowd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, log)
	case "migrate":
		err = runMigrate(ctx, cfg, log)
	case "mcp-stdio":
		err = runStdio(ctx, cfg, log)
	default:
		usage()
		return
	}
	if err != nil {
		log.Error("intentflowd.failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg config.Config, log logger.Logger) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer a.Close()
	return a.Serve(ctx)
}

func runMigrate(ctx context.Context, cfg config.Config, log logger.Logger) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn (or IF_DB_DSN) is required for migrate")
	}
	st, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := store.Migrate(ctx, st.DB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("intentflowd.migrated")
	return nil
}

func runStdio(ctx context.Context, cfg config.Config, log logger.Logger) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer a.Close()
	return mcp.RunStdio(ctx, a.MCP, os.Stdin, os.Stdout)
}

func usage() {
	fmt.Println("Usage: intentflowd <serve|migrate|mcp-stdio>")
}
