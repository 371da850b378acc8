package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func bookingFlow(t *testing.T, done *map[string]string) *Flow {
	t.Helper()
	return &Flow{
		Name: "book",
		Steps: []Step{
			{
				Field:   "appliance",
				Prompt:  "Which appliance needs repair?",
				Options: []string{"AC", "Fridge"},
				Validate: func(input string, _ map[string]string) (string, error) {
					switch strings.ToLower(input) {
					case "ac":
						return "AC", nil
					case "fridge":
						return "Fridge", nil
					}
					return "", NewInputError("pick AC or Fridge")
				},
			},
			{
				Field:  "district",
				Prompt: "Which district are you in?",
				Validate: func(input string, _ map[string]string) (string, error) {
					if input != "Central" {
						return "", NewInputError("unknown district, try again")
					}
					return "Central", nil
				},
			},
			{Field: "issue", Prompt: "Describe the issue."},
			{Field: "notes", Prompt: "Anything else? Send /skip to leave empty.", Optional: true},
		},
		Finalize: func(_ int64, data map[string]string) error {
			*done = data
			return nil
		},
	}
}

func TestFlowRoundTrip(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	first, err := m.Start(7, "book")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.Field != "appliance" {
		t.Fatalf("first step = %q, want appliance", first.Field)
	}
	if !m.InProgress(7) {
		t.Fatal("InProgress = false after Start")
	}

	out, err := m.Advance(7, "ac")
	if err != nil {
		t.Fatalf("Advance appliance: %v", err)
	}
	if out.Done || out.Retry || out.Next.Field != "district" {
		t.Fatalf("after appliance: %+v", out)
	}

	for _, input := range []string{"Central", "not cooling at all"} {
		if out, err = m.Advance(7, input); err != nil {
			t.Fatalf("Advance %q: %v", input, err)
		}
	}
	if out.Next.Field != "notes" {
		t.Fatalf("expected notes step, got %+v", out)
	}

	out, err = m.Advance(7, "/skip")
	if err != nil {
		t.Fatalf("Advance skip: %v", err)
	}
	if !out.Done {
		t.Fatalf("flow not done: %+v", out)
	}
	if done["appliance"] != "AC" || done["district"] != "Central" ||
		done["issue"] != "not cooling at all" || done["notes"] != "" {
		t.Errorf("finalized data: %+v", done)
	}
	if m.InProgress(7) {
		t.Error("session survived finalize")
	}
}

func TestFlowRetryOnInvalidInput(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	if _, err := m.Start(7, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Advance(7, "AC"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	out, err := m.Advance(7, "Atlantis")
	if err != nil {
		t.Fatalf("Advance invalid district: %v", err)
	}
	if !out.Retry || out.Next.Field != "district" || out.RetryMsg == "" {
		t.Fatalf("expected retry on district, got %+v", out)
	}

	// Still on the same step, a valid answer proceeds.
	out, err = m.Advance(7, "Central")
	if err != nil {
		t.Fatalf("Advance valid district: %v", err)
	}
	if out.Retry || out.Next.Field != "issue" {
		t.Fatalf("after retry: %+v", out)
	}
}

func TestFlowBack(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	if _, err := m.Start(7, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Back on the first step stays on the first step.
	step, err := m.Back(7)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if step.Field != "appliance" {
		t.Fatalf("back on first step landed on %q", step.Field)
	}

	if _, err := m.Advance(7, "AC"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := m.Advance(7, "Central"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	step, err = m.Back(7)
	if err != nil {
		t.Fatalf("Back: %v", err)
	}
	if step.Field != "district" {
		t.Fatalf("back landed on %q, want district", step.Field)
	}

	// The discarded answer must be re-collected.
	out, err := m.Advance(7, "Central")
	if err != nil {
		t.Fatalf("Advance after back: %v", err)
	}
	if out.Next.Field != "issue" {
		t.Fatalf("after redo: %+v", out)
	}
}

func TestFlowCancel(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	if _, err := m.Start(7, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Cancel(7) {
		t.Error("Cancel returned false for a live session")
	}
	if m.InProgress(7) {
		t.Error("session survived Cancel")
	}
	if _, err := m.Advance(7, "AC"); err == nil {
		t.Error("Advance succeeded after Cancel")
	}
	if m.Cancel(7) {
		t.Error("Cancel returned true with no session")
	}
}

func TestSessionTTLEviction(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	current := time.Now()
	m.now = func() time.Time { return current }

	if _, err := m.Start(7, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	current = current.Add(29 * time.Minute)
	if !m.InProgress(7) {
		t.Fatal("session evicted before TTL")
	}

	// Activity refreshes the deadline.
	if _, err := m.Advance(7, "AC"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	current = current.Add(29 * time.Minute)
	if !m.InProgress(7) {
		t.Fatal("session evicted despite recent activity")
	}

	current = current.Add(2 * time.Minute)
	if m.InProgress(7) {
		t.Fatal("session survived past TTL")
	}
	if _, err := m.Advance(7, "Central"); err == nil {
		t.Error("Advance succeeded on an expired session")
	}
}

func TestSweepReclaimsAbandonedSessions(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	current := time.Now()
	m.now = func() time.Time { return current }

	if _, err := m.Start(7, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(8, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Advance(8, "AC"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if n := m.Sweep(); n != 0 {
		t.Fatalf("Sweep evicted %d fresh sessions", n)
	}

	// User 7 walks away; user 8 keeps answering.
	current = current.Add(29 * time.Minute)
	if _, err := m.Advance(8, "Central"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	current = current.Add(2 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if m.InProgress(7) {
		t.Error("abandoned session still resident after sweep")
	}
	if !m.InProgress(8) {
		t.Error("active session swept")
	}
}

func TestCancelDuringValidationDiscardsAnswer(t *testing.T) {
	m := NewManager(30 * time.Minute)
	m.Register(&Flow{
		Name: "selfcancel",
		Steps: []Step{
			{
				Field:  "v",
				Prompt: "value?",
				Validate: func(input string, _ map[string]string) (string, error) {
					// Simulates the session going away while a slow
					// validator is out talking to the store.
					m.Cancel(7)
					return input, nil
				},
			},
			{Field: "w", Prompt: "more?"},
		},
	})

	if _, err := m.Start(7, "selfcancel"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Advance(7, "x"); err == nil {
		t.Fatal("Advance merged into a cancelled session")
	}
	if m.InProgress(7) {
		t.Error("cancelled session came back")
	}
}

func TestRestartDuringValidationKeepsNewSession(t *testing.T) {
	m := NewManager(30 * time.Minute)
	m.Register(&Flow{
		Name: "selfrestart",
		Steps: []Step{
			{
				Field:  "v",
				Prompt: "value?",
				Validate: func(input string, _ map[string]string) (string, error) {
					if _, err := m.Start(7, "selfrestart"); err != nil {
						t.Fatalf("restart: %v", err)
					}
					return input, nil
				},
			},
			{Field: "w", Prompt: "more?"},
		},
	})

	if _, err := m.Start(7, "selfrestart"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Advance(7, "x"); err == nil {
		t.Fatal("Advance merged into a replaced session")
	}
	step, err := m.Current(7)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if step.Field != "v" {
		t.Errorf("replacement session on %q, want first step", step.Field)
	}
}

func TestStartReplacesExistingSession(t *testing.T) {
	var done map[string]string
	m := NewManager(30 * time.Minute)
	m.Register(bookingFlow(t, &done))

	if _, err := m.Start(7, "book"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Advance(7, "AC"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	first, err := m.Start(7, "book")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.Field != "appliance" {
		t.Fatalf("restart landed on %q, want appliance", first.Field)
	}
}

func TestFinalizeErrorClearsSession(t *testing.T) {
	m := NewManager(30 * time.Minute)
	boom := errors.New("store down")
	m.Register(&Flow{
		Name:  "oneshot",
		Steps: []Step{{Field: "v", Prompt: "value?"}},
		Finalize: func(_ int64, _ map[string]string) error {
			return boom
		},
	})

	if _, err := m.Start(7, "oneshot"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Advance(7, "x"); !errors.Is(err, boom) {
		t.Fatalf("Advance = %v, want finalizer error", err)
	}
	if m.InProgress(7) {
		t.Error("session survived failed finalize")
	}
}

func TestUnknownFlow(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Start(7, "nope"); err == nil {
		t.Error("Start succeeded for unregistered flow")
	}
}
