package bot

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/logging"
	"github.com/servicefix/fixbot/internal/storage"
)

// flowHandler processes free-form text belonging to an active conversation.
// Each variant owns the flows its role may drive; the text dispatcher walks
// the chain for the sender's resolved role and hands the message to the
// first handler that claims it.
type flowHandler interface {
	CanHandle(flow, text string) bool
	Process(c tele.Context) error
}

// customerFlows covers the conversations any user may hold.
type customerFlows struct{ b *Bot }

func (h customerFlows) CanHandle(flow, _ string) bool {
	return flow == flowBook || flow == flowFeedback
}

func (h customerFlows) Process(c tele.Context) error { return h.b.advanceFlow(c) }

// technicianFlows covers technician onboarding. It sits in every chain
// because registering is how a customer becomes a technician.
type technicianFlows struct{ b *Bot }

func (h technicianFlows) CanHandle(flow, _ string) bool {
	return flow == flowRegister
}

func (h technicianFlows) Process(c tele.Context) error { return h.b.advanceFlow(c) }

// adminFlows covers conversations only the configured admin may drive.
type adminFlows struct{ b *Bot }

func (h adminFlows) CanHandle(flow, _ string) bool {
	return flow == flowAssign
}

func (h adminFlows) Process(c tele.Context) error { return h.b.advanceFlow(c) }

// flowHandlers returns the handler chain for a role, most privileged first.
func (b *Bot) flowHandlers(role storage.Role) []flowHandler {
	switch role {
	case storage.RoleAdmin:
		return []flowHandler{adminFlows{b}, technicianFlows{b}, customerFlows{b}}
	case storage.RoleTechnician:
		return []flowHandler{technicianFlows{b}, customerFlows{b}}
	default:
		return []flowHandler{customerFlows{b}, technicianFlows{b}}
	}
}

// advanceFlow feeds the message into the sender's session and prompts the
// next step, a retry, or nothing when the finalizer already replied.
func (b *Bot) advanceFlow(c tele.Context) error {
	out, err := b.sessions.Advance(c.Sender().ID, c.Text())
	if err != nil {
		// Finalizers report to the user themselves; just log here.
		logging.Bot.Error("flow advance failed",
			slog.String("event", "flow.error"),
			slog.Int64("user_id", c.Sender().ID),
			slog.String("err", err.Error()),
		)
		return nil
	}
	switch {
	case out.Done:
		return nil
	case out.Retry:
		return c.Send(out.RetryMsg, stepMarkup(out.Next))
	default:
		return b.promptStep(c, out.Next)
	}
}
