// Package bot wires commands, conversation flows and inline callbacks onto
// a Telegram bot serving an appliance repair desk.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/config"
	"github.com/servicefix/fixbot/internal/logging"
	"github.com/servicefix/fixbot/internal/refdata"
	"github.com/servicefix/fixbot/internal/session"
	"github.com/servicefix/fixbot/internal/storage"
)

// Bot holds the assembled Telegram bot and its collaborators.
type Bot struct {
	cfg      *config.Config
	store    storage.Store
	catalog  *refdata.Catalog
	sessions *session.Manager
	registry *Registry
	tb       *tele.Bot
}

// New assembles the bot: poller, middleware, command and callback wiring.
func New(cfg *config.Config, store storage.Store, catalog *refdata.Catalog) (*Bot, error) {
	settings := tele.Settings{
		Token:     cfg.Telegram.Token,
		Poller:    buildPoller(cfg),
		ParseMode: tele.ModeHTML,
	}

	start := time.Now()
	tb, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("bot initialization failed: %w", err)
	}

	b := &Bot{
		cfg:      cfg,
		store:    store,
		catalog:  catalog,
		sessions: session.NewManager(cfg.SessionTTL()),
		registry: NewRegistry(),
		tb:       tb,
	}
	b.sessions.Register(b.bookingFlow())
	b.sessions.Register(b.registerFlow())
	b.sessions.Register(b.feedbackFlow())
	b.sessions.Register(b.assignFlow())
	b.setupCommands()
	b.setupCallbacks()
	b.wire()

	logging.TG.Info("bot assembled",
		slog.String("event", "bot.build"),
		slog.Int("commands", len(b.registry.Commands())),
		slog.Duration("duration", logging.RoundMS(time.Since(start))),
	)
	return b, nil
}

func buildPoller(cfg *config.Config) tele.Poller {
	if strings.EqualFold(cfg.Telegram.RunMode, config.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	timeout := cfg.Telegram.LongPollTimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	return &tele.LongPoller{Timeout: time.Duration(timeout) * time.Second}
}

// wire attaches middleware and routes every registered command.
func (b *Bot) wire() {
	b.tb.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return recoverMiddleware(loggerMiddleware(next))
	})
	b.tb.Use(rateLimitMiddleware(b.cfg.RateLimitInterval()))

	for name, cmd := range b.registry.Commands() {
		h := cmd.Handler
		if cmd.AdminOnly {
			h = adminOnly(b.cfg.Telegram.AdminID, h)
		}
		if name != "/cancel" && name != "/back" && name != "/start" {
			h = b.guardFlow(h)
		}
		b.tb.Handle(name, h)
	}

	b.tb.Handle(tele.OnCallback, b.registry.DispatchCallback)
	b.tb.Handle(tele.OnText, b.handleText)

	if err := b.tb.SetCommands(b.registry.MenuCommands()); err != nil {
		logging.TG.Warn("failed to publish command menu",
			slog.String("event", "bot.set_commands"),
			slog.String("err", err.Error()),
		)
	}
}

// Run starts the bot and blocks until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	logging.TG.Info("bot starting",
		slog.String("event", "bot.start"),
		slog.String("mode", b.cfg.Telegram.RunMode),
	)
	b.sessions.StartSweeper(ctx, b.cfg.SessionTTL())

	done := make(chan struct{})
	go func() {
		b.tb.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.tb.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-done:
		return nil
	}
}

// guardFlow intercepts commands sent in the middle of a conversation. The
// user confirms before the flow is dropped, so a typo cannot destroy their
// progress.
func (b *Bot) guardFlow(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return next(c)
		}
		flow, active := b.sessions.Active(sender.ID)
		if !active {
			return next(c)
		}
		return c.Send(
			fmt.Sprintf("You're in the middle of <b>%s</b>. Abort it?", flow),
			inlineButtonsRows([]inlineBtn{
				{Text: "Abort", Unique: cbAbortFlow},
				{Text: "Keep going", Unique: cbResumeFlow},
			}))
	}
}

// handleText routes plain messages. The sender's role is resolved per
// message and the active flow goes to the matching handler variant.
func (b *Bot) handleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	flow, active := b.sessions.Active(sender.ID)
	if !active {
		return c.Send("I didn't catch that. Try /help for the list of commands.")
	}

	role := resolveRole(context.Background(), b.store, b.cfg.Telegram.AdminID, sender.ID)
	for _, h := range b.flowHandlers(role) {
		if h.CanHandle(flow, c.Text()) {
			return h.Process(c)
		}
	}
	b.sessions.Cancel(sender.ID)
	return c.Send("That conversation isn't available to you anymore.", removeKeyboard())
}

// promptStep sends the step's prompt with its option keyboard.
func (b *Bot) promptStep(c tele.Context, step *session.Step) error {
	return c.Send(step.Prompt, stepMarkup(step))
}

func stepMarkup(step *session.Step) *tele.ReplyMarkup {
	if step == nil || len(step.Options) == 0 {
		return removeKeyboard()
	}
	return replyButtons(chunkLabels(step.Options, 2)...)
}

// startFlow opens a flow for the sender and prompts the first step.
func (b *Bot) startFlow(c tele.Context, name string) error {
	step, err := b.sessions.Start(c.Sender().ID, name)
	if err != nil {
		return err
	}
	return b.promptStep(c, step)
}

// notify sends a message to a user outside a handler, best effort.
func (b *Bot) notify(userID int64, text string, markup ...*tele.ReplyMarkup) {
	var opts []any
	for _, m := range markup {
		opts = append(opts, m)
	}
	if _, err := b.tb.Send(&tele.User{ID: userID}, text, opts...); err != nil {
		logging.TG.Warn("notification failed",
			slog.String("event", "tg.notify"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (b *Bot) notifyAdmin(text string, markup ...*tele.ReplyMarkup) {
	b.notify(b.cfg.Telegram.AdminID, text, markup...)
}
