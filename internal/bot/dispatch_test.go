package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/config"
	"github.com/servicefix/fixbot/internal/session"
	"github.com/servicefix/fixbot/internal/storage"
)

const testAdminID int64 = 999

// ctxStub covers the slice of tele.Context the routing layer touches.
// Anything else panics through the embedded interface.
type ctxStub struct {
	tele.Context
	sender *tele.User
	text   string
	sent   []string
}

func (s *ctxStub) Sender() *tele.User { return s.sender }
func (s *ctxStub) Text() string       { return s.text }
func (s *ctxStub) Send(what interface{}, _ ...interface{}) error {
	if msg, ok := what.(string); ok {
		s.sent = append(s.sent, msg)
	}
	return nil
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	cfg := &config.Config{}
	cfg.Telegram.AdminID = testAdminID
	b := &Bot{
		cfg:      cfg,
		store:    storage.NewMemory(testCatalog()),
		catalog:  testCatalog(),
		sessions: session.NewManager(30 * time.Minute),
		registry: NewRegistry(),
	}
	b.sessions.Register(b.bookingFlow())
	b.sessions.Register(b.registerFlow())
	b.sessions.Register(b.feedbackFlow())
	b.sessions.Register(b.assignFlow())
	return b
}

func TestCommandMidFlowNeedsConfirmation(t *testing.T) {
	b := newTestBot(t)
	user := &tele.User{ID: 7}
	if _, err := b.sessions.Start(user.ID, flowBook); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ran := false
	guarded := b.guardFlow(func(tele.Context) error {
		ran = true
		return nil
	})

	c := &ctxStub{sender: user}
	if err := guarded(c); err != nil {
		t.Fatalf("guard: %v", err)
	}
	if ran {
		t.Fatal("command ran through an active conversation")
	}
	if !b.sessions.InProgress(user.ID) {
		t.Fatal("session dropped before the user confirmed")
	}
	if len(c.sent) != 1 || !strings.Contains(c.sent[0], "Abort") {
		t.Fatalf("confirmation prompt = %q", c.sent)
	}

	// Keep going re-prompts the current step and keeps the session.
	if err := b.handleResumeFlow(c); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !b.sessions.InProgress(user.ID) {
		t.Fatal("session lost on resume")
	}

	// Abort clears it, and the command then passes straight through.
	if err := b.handleAbortFlow(c); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if b.sessions.InProgress(user.ID) {
		t.Fatal("session survived abort")
	}
	if err := guarded(c); err != nil {
		t.Fatalf("guard after abort: %v", err)
	}
	if !ran {
		t.Fatal("command blocked with no active conversation")
	}
}

func TestTextDispatchByRole(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	// A customer's booking conversation advances through the dispatcher.
	if _, err := b.sessions.Start(7, flowBook); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.handleText(&ctxStub{sender: &tele.User{ID: 7}, text: "AC"}); err != nil {
		t.Fatalf("handleText: %v", err)
	}
	step, err := b.sessions.Current(7)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if step.Field != fieldDistrict {
		t.Fatalf("booking stuck on %q", step.Field)
	}

	// The admin drives the assignment conversation.
	tkt, err := b.store.CreateTicket(ctx, storage.TicketInput{
		CustomerID: 7,
		Appliance:  storage.ApplianceAC,
		District:   "Central",
		Issue:      "Not cooling",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := b.sessions.Start(testAdminID, flowAssign); err != nil {
		t.Fatalf("Start assign: %v", err)
	}
	a := &ctxStub{sender: &tele.User{ID: testAdminID}, text: fmt.Sprintf("#%d", tkt.ID)}
	if err := b.handleText(a); err != nil {
		t.Fatalf("handleText: %v", err)
	}
	step, err = b.sessions.Current(testAdminID)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if step.Field != fieldTech {
		t.Fatalf("assignment stuck on %q", step.Field)
	}

	// A customer holding an assignment session gets cut off.
	if _, err := b.sessions.Start(8, flowAssign); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := &ctxStub{sender: &tele.User{ID: 8}, text: "1"}
	if err := b.handleText(c); err != nil {
		t.Fatalf("handleText: %v", err)
	}
	if b.sessions.InProgress(8) {
		t.Error("admin conversation left with a customer")
	}

	// No session at all gets the usual hint.
	h := &ctxStub{sender: &tele.User{ID: 9}, text: "hello"}
	if err := b.handleText(h); err != nil {
		t.Fatalf("handleText: %v", err)
	}
	if len(h.sent) != 1 || !strings.Contains(h.sent[0], "/help") {
		t.Fatalf("hint = %q", h.sent)
	}
}
