package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/logging"
)

// recoverMiddleware catches panics in handlers so a single bad update cannot
// take the bot down.
func recoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logging.TG.Error("panic recovered",
					slog.String("event", "tg.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}

// loggerMiddleware logs one receipt line per update.
func loggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		upd := c.Update()

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.Int("update_id", upd.ID),
		}
		if user := c.Sender(); user != nil {
			attrs = append(attrs, slog.Int64("user_id", user.ID))
		}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.Int64("chat_id", chat.ID))
		}
		switch {
		case upd.Callback != nil:
			unique, payload := parseCallback(upd.Callback)
			attrs = append(attrs, slog.String("cb_key", logging.SanitizeLimit(unique, 64)))
			if payload != "" {
				attrs = append(attrs, slog.String("payload", logging.SanitizeLimit(payload, 128)))
			}
		case upd.Message != nil:
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logging.SanitizeLimit(t, 256)))
			}
		}

		err := next(c)
		if err != nil {
			attrs[0] = slog.String("status", "error")
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		attrs = append(attrs, slog.Duration("duration", logging.RoundMS(time.Since(start))))
		logging.TG.LogAttrs(context.Background(), slog.LevelDebug, "update.handled", attrs...)
		return err
	}
}

// rateLimitMiddleware enforces a minimum interval between messages from the
// same user. Callbacks pass through so inline keyboards stay responsive.
func rateLimitMiddleware(interval time.Duration) tele.MiddlewareFunc {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || interval <= 0 || c.Callback() != nil {
				return next(c)
			}

			now := time.Now()
			lastSeenMu.Lock()
			if last, ok := lastSeen[user.ID]; ok && now.Sub(last) < interval {
				lastSeenMu.Unlock()
				logging.TG.Warn("rate limit",
					slog.String("event", "tg.rate_limit"),
					slog.Int64("user_id", user.ID),
				)
				return nil
			}
			lastSeen[user.ID] = now
			lastSeenMu.Unlock()
			return next(c)
		}
	}
}

// adminOnly wraps a handler so that only the configured admin can run it.
func adminOnly(adminID int64, next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || c.Sender().ID != adminID {
			return c.Send("This command is available to the administrator only.")
		}
		return next(c)
	}
}
