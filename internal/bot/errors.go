package bot

import (
	"log/slog"

	"github.com/servicefix/fixbot/internal/logging"
	"github.com/servicefix/fixbot/internal/storage"
)

// userMessage turns a store error into text safe to show the user. Each
// error kind reads differently so the user knows whether to fix the input,
// wait, or give up.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	switch storage.KindOf(err) {
	case storage.KindValidation:
		return "That doesn't look right: " + err.Error()
	case storage.KindNotFound:
		return "Nothing found: " + err.Error()
	case storage.KindIllegalTransition:
		return "That step isn't possible anymore: " + err.Error()
	case storage.KindUnauthorized:
		return "You are not allowed to do that."
	case storage.KindDuplicate:
		return "Already done: " + err.Error()
	case storage.KindState:
		return "Not possible right now: " + err.Error()
	}
	logging.Bot.Error("unexpected error",
		slog.String("event", "bot.error"),
		slog.String("err", err.Error()),
	)
	return "Something went wrong on our side. Please try again later."
}
