package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/servicefix/fixbot/internal/bot"
	"github.com/servicefix/fixbot/internal/config"
	"github.com/servicefix/fixbot/internal/database"
	"github.com/servicefix/fixbot/internal/logging"
	"github.com/servicefix/fixbot/internal/refdata"
	"github.com/servicefix/fixbot/internal/storage"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fixbot: %v", err)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	startedAt := time.Now()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	catalog, err := refdata.Load(cfg.RefData.Districts, cfg.RefData.Complaints)
	if err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}

	store := storage.NewPostgres(db, catalog)

	b, err := bot.New(cfg, store, catalog)
	if err != nil {
		return fmt.Errorf("build bot: %w", err)
	}

	logging.L.Info("app ready",
		slog.String("event", "ready"),
		slog.Duration("startup_duration", logging.RoundMS(time.Since(startedAt))),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = b.Run(ctx)

	logging.L.Info("shutting down",
		slog.String("event", "shutdown"),
	)
	return err
}
