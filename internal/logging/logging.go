// Package logging configures the process-wide structured logger and exposes
// per-component child loggers used across the bot.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/servicefix/fixbot/internal/config"
)

var (
	initOnce sync.Once
	levelVar slog.LevelVar

	// L is the base logger.
	L = slog.Default()

	// DB logs database events.
	DB *slog.Logger
	// MIG logs migration events.
	MIG *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// Store logs persistence operations.
	Store *slog.Logger
	// Bot logs dispatcher and flow handler activity.
	Bot *slog.Logger
)

func init() {
	wireComponents()
}

// Init configures the global logger from config. Safe to call once.
func Init(cfg *config.Config) error {
	initOnce.Do(func() {
		levelVar.Set(parseLevel(cfg.Logging.Level))

		opts := &slog.HandlerOptions{Level: &levelVar}
		var handler slog.Handler
		switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
		case "text", "kv", "pretty":
			handler = slog.NewTextHandler(os.Stdout, opts)
		default:
			handler = slog.NewJSONHandler(os.Stdout, opts)
		}

		L = slog.New(handler)
		slog.SetDefault(L)
		wireComponents()
	})
	return nil
}

func wireComponents() {
	DB = L.With("component", "db")
	MIG = L.With("component", "db.migrate")
	TG = L.With("component", "tg")
	Store = L.With("component", "store")
	Bot = L.With("component", "bot")
}

// Component returns a child logger tagged with the given component name.
func Component(name string) *slog.Logger {
	return L.With("component", name)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
