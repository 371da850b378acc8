package bot

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/logging"
)

// Command is a bot command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
}

// Registry holds the bot's commands and callback handlers.
type Registry struct {
	commands map[string]Command

	callbacksMu      sync.RWMutex
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry creates an empty Registry with a default unknown-callback
// response.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds a command. Invalid or duplicate registrations are
// logged and skipped.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	if name == "" || !strings.HasPrefix(name, "/") || cmd.Handler == nil {
		logging.Bot.Warn("command registration skipped",
			slog.String("event", "register.command.skip"),
			slog.String("name", name),
		)
		return
	}
	if _, exists := r.commands[name]; exists {
		logging.Bot.Warn("duplicate command registration",
			slog.String("event", "register.command.duplicate"),
			slog.String("name", name),
		)
		return
	}
	r.commands[name] = cmd
}

// Commands returns all registered commands keyed by name.
func (r *Registry) Commands() map[string]Command {
	return r.commands
}

// MenuCommands returns the commands shown in the Telegram command menu,
// sorted by name. Hidden and admin-only commands are left out.
func (r *Registry) MenuCommands() []tele.Command {
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Hidden || cmd.AdminOnly {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// RegisterCallback maps an inline keyboard unique to its handler.
func (r *Registry) RegisterCallback(unique string, handler tele.HandlerFunc) {
	if unique == "" || handler == nil {
		logging.Bot.Warn("callback registration skipped",
			slog.String("event", "register.callback.skip"),
			slog.String("unique", unique),
		)
		return
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[unique]; exists {
		logging.Bot.Warn("duplicate callback registration",
			slog.String("event", "register.callback.duplicate"),
			slog.String("unique", unique),
		)
		return
	}
	r.callbacks[unique] = handler
}

// Callback returns the handler for a unique.
func (r *Registry) Callback(unique string) (tele.HandlerFunc, bool) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	h, ok := r.callbacks[unique]
	return h, ok
}

// DispatchCallback is the single OnCallback endpoint. It acknowledges the
// callback, parses its unique and routes to the registered handler.
func (r *Registry) DispatchCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	_ = c.Respond()

	unique, _ := parseCallback(cb)
	handler, ok := r.Callback(unique)
	if !ok {
		logging.Bot.Warn("unknown callback",
			slog.String("event", "callback.not_found"),
			slog.String("unique", logging.SanitizeLimit(unique, 64)),
		)
		return r.callbackNotFound(c)
	}
	return handler(c)
}
