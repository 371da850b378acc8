package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/servicefix/fixbot/internal/logging"
)

// Session is one user's position inside a flow.
type Session struct {
	Flow    string
	Step    int
	Data    map[string]string
	touched time.Time
}

// Outcome reports what happened to an answer fed into Advance.
type Outcome struct {
	// Done is set once the final step was accepted and the finalizer ran.
	Done bool
	// Next is the step to prompt for, nil when Done.
	Next *Step
	// Retry is set when the answer was rejected; Next repeats the
	// current step and RetryMsg explains what to fix.
	Retry    bool
	RetryMsg string
	// Data is the full answer set, populated when Done.
	Data map[string]string
}

// Manager tracks active conversations keyed by Telegram user id. Sessions
// idle longer than the TTL are evicted lazily on the next access, and a
// background sweep reclaims the ones their owners abandoned for good.
type Manager struct {
	mu       sync.RWMutex
	ttl      time.Duration
	flows    map[string]*Flow
	sessions map[int64]*Session

	now func() time.Time
}

// NewManager builds a manager with the given idle TTL.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		ttl:      ttl,
		flows:    make(map[string]*Flow),
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// Register adds a flow to the registry. Registering twice under one name is
// a wiring bug, so it panics.
func (m *Manager) Register(f *Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[f.Name]; ok {
		panic(fmt.Sprintf("session: flow %q registered twice", f.Name))
	}
	if len(f.Steps) == 0 {
		panic(fmt.Sprintf("session: flow %q has no steps", f.Name))
	}
	m.flows[f.Name] = f
}

func (m *Manager) expired(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.touched) > m.ttl
}

// getLocked returns the live session for a user, evicting it if stale.
func (m *Manager) getLocked(userID int64) *Session {
	s, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	if m.expired(s) {
		delete(m.sessions, userID)
		logging.Bot.Debug("session expired",
			slog.String("event", "session.expire"),
			slog.Int64("user_id", userID),
			slog.String("flow", s.Flow),
		)
		return nil
	}
	return s
}

// Sweep drops every session idle past the TTL and returns how many went.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// StartSweeper sweeps on a timer until the context is cancelled, so
// abandoned conversations do not stay resident until their owner returns.
func (m *Manager) StartSweeper(ctx context.Context, every time.Duration) {
	if m.ttl <= 0 || every <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := m.Sweep(); n > 0 {
					logging.Bot.Debug("idle sessions swept",
						slog.String("event", "session.sweep"),
						slog.Int("evicted", n),
					)
				}
			}
		}
	}()
}

// InProgress reports whether the user has a live conversation.
func (m *Manager) InProgress(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(userID) != nil
}

// Active returns the name of the user's live flow.
func (m *Manager) Active(userID int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.getLocked(userID); s != nil {
		return s.Flow, true
	}
	return "", false
}

// Start opens a flow for the user, replacing any previous session, and
// returns the first step to prompt.
func (m *Manager) Start(userID int64, flowName string) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flows[flowName]
	if !ok {
		return nil, fmt.Errorf("session: unknown flow %q", flowName)
	}
	m.sessions[userID] = &Session{
		Flow:    flowName,
		Data:    make(map[string]string),
		touched: m.now(),
	}
	logging.Bot.Debug("flow started",
		slog.String("event", "session.start"),
		slog.Int64("user_id", userID),
		slog.String("flow", flowName),
	)
	return f.step(0), nil
}

// Advance feeds the user's answer into the current step. On acceptance the
// session moves forward; accepting the last step runs the finalizer and
// clears the session. A rejected answer keeps the session in place.
func (m *Manager) Advance(userID int64, input string) (*Outcome, error) {
	m.mu.Lock()
	s := m.getLocked(userID)
	if s == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: no active flow for user %d", userID)
	}
	f := m.flows[s.Flow]
	stepIdx := s.Step
	step := f.step(stepIdx)
	answers := make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		answers[k] = v
	}
	m.mu.Unlock()

	// Validators may reach into the store, so the answer is checked without
	// the lock. The session is re-checked before the value is merged.
	value, err := step.accept(input, answers)
	if err != nil {
		if ie, ok := err.(*InputError); ok {
			return &Outcome{Retry: true, RetryMsg: ie.Error(), Next: step}, nil
		}
		return nil, err
	}

	m.mu.Lock()
	if cur, ok := m.sessions[userID]; !ok || cur != s || cur.Step != stepIdx {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: conversation changed for user %d", userID)
	}

	s.Data[step.Field] = value
	s.Step++
	s.touched = m.now()

	if next := f.step(s.Step); next != nil {
		m.mu.Unlock()
		return &Outcome{Next: next}, nil
	}

	// Final step accepted. Release the lock before the finalizer runs so
	// it can use the manager, then clear on success.
	data := s.Data
	m.mu.Unlock()

	if f.Finalize != nil {
		if err := f.Finalize(userID, data); err != nil {
			m.Cancel(userID)
			return nil, err
		}
	}
	m.Cancel(userID)
	logging.Bot.Debug("flow finished",
		slog.String("event", "session.finish"),
		slog.Int64("user_id", userID),
		slog.String("flow", f.Name),
	)
	return &Outcome{Done: true, Data: data}, nil
}

// Current returns the step the user is being asked right now.
func (m *Manager) Current(userID int64) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(userID)
	if s == nil {
		return nil, fmt.Errorf("session: no active flow for user %d", userID)
	}
	return m.flows[s.Flow].step(s.Step), nil
}

// Back moves one step backwards, discarding that step's answer. On the first
// step it stays put. Returns the step to prompt again.
func (m *Manager) Back(userID int64) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(userID)
	if s == nil {
		return nil, fmt.Errorf("session: no active flow for user %d", userID)
	}
	f := m.flows[s.Flow]
	if s.Step > 0 {
		s.Step--
		delete(s.Data, f.Steps[s.Step].Field)
	}
	s.touched = m.now()
	return f.step(s.Step), nil
}

// Cancel drops the user's session. It reports whether one existed.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	delete(m.sessions, userID)
	return ok
}
