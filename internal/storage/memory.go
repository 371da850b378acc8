package storage

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests and development. A single mutex
// serializes every write, giving the same per-record ordering the Postgres
// store gets from row locks.
type Memory struct {
	mu        sync.Mutex
	districts DistrictChecker

	tickets  map[int64]*Ticket
	techs    map[int64]*Technician
	feedback map[int64]*Feedback

	nextTicketID   int64
	nextFeedbackID int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory(districts DistrictChecker) *Memory {
	return &Memory{
		districts: districts,
		tickets:   make(map[int64]*Ticket),
		techs:     make(map[int64]*Technician),
		feedback:  make(map[int64]*Feedback),
	}
}

// CreateTicket validates fields and opens a ticket in status New.
func (m *Memory) CreateTicket(_ context.Context, in TicketInput) (*Ticket, error) {
	if err := ValidateTicketInput(in, m.districts); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTicketID++
	now := time.Now()
	t := &Ticket{
		ID:          m.nextTicketID,
		CustomerID:  in.CustomerID,
		Appliance:   in.Appliance,
		District:    in.District,
		Issue:       strings.TrimSpace(in.Issue),
		Description: strings.TrimSpace(in.Description),
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.tickets[t.ID] = t

	out := *t
	return &out, nil
}

// Ticket returns a ticket by id.
func (m *Memory) Ticket(_ context.Context, id int64) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, NewError(KindNotFound, "ticket #%d not found", id)
	}
	out := *t
	return &out, nil
}

// UpdateTicketStatus moves a ticket along the lifecycle.
func (m *Memory) UpdateTicketStatus(_ context.Context, id int64, next TicketStatus, actor Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return NewError(KindNotFound, "ticket #%d not found", id)
	}
	if err := CheckTransition(t, next); err != nil {
		return err
	}
	if err := AuthorizeStatusChange(t, next, actor); err != nil {
		return err
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

// AssignTechnician puts a New ticket into Assigned.
func (m *Memory) AssignTechnician(_ context.Context, ticketID, techID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignLocked(ticketID, techID, StatusNew)
}

// ReassignTechnician moves an Assigned ticket to another approved technician.
func (m *Memory) ReassignTechnician(_ context.Context, ticketID, techID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignLocked(ticketID, techID, StatusAssigned)
}

func (m *Memory) assignLocked(ticketID, techID int64, wantStatus TicketStatus) error {
	tech, ok := m.techs[techID]
	if !ok {
		return NewError(KindNotFound, "technician %d not found", techID)
	}
	if tech.Status != TechApproved {
		return NewError(KindState, "technician %d is not approved", techID)
	}
	t, ok := m.tickets[ticketID]
	if !ok {
		return NewError(KindNotFound, "ticket #%d not found", ticketID)
	}
	if t.Status != wantStatus {
		return NewError(KindIllegalTransition, "ticket #%d is %s, not %s", ticketID, t.Status, wantStatus)
	}
	t.TechnicianID = sql.NullInt64{Int64: techID, Valid: true}
	t.Status = StatusAssigned
	t.UpdatedAt = time.Now()
	return nil
}

// TicketsForTechnician lists a technician's active jobs, oldest first.
func (m *Memory) TicketsForTechnician(_ context.Context, techID int64) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Ticket
	for _, t := range m.tickets {
		if t.AssignedTo(techID) && (t.Status == StatusAssigned || t.Status == StatusInProgress) {
			out = append(out, *t)
		}
	}
	sortTicketsAsc(out)
	return out, nil
}

// TicketsForCustomer lists a customer's tickets, newest first.
func (m *Memory) TicketsForCustomer(_ context.Context, customerID int64) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Ticket
	for _, t := range m.tickets {
		if t.CustomerID == customerID {
			out = append(out, *t)
		}
	}
	sortTicketsAsc(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Tickets lists tickets matching the filter, oldest first.
func (m *Memory) Tickets(_ context.Context, f TicketFilter) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Ticket
	for _, t := range m.tickets {
		if matchTicket(t, f) {
			out = append(out, *t)
		}
	}
	sortTicketsAsc(out)
	return out, nil
}

func matchTicket(t *Ticket, f TicketFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.District != "" && !strings.EqualFold(t.District, f.District) {
		return false
	}
	if f.Appliance != "" && t.Appliance != f.Appliance {
		return false
	}
	if f.CreatedOn != nil {
		y1, m1, d1 := t.CreatedAt.Date()
		y2, m2, d2 := f.CreatedOn.Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		haystack := strings.ToLower(strings.Join([]string{
			string(t.Appliance), t.Issue, t.District, t.Description,
		}, "\n"))
		if !strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}

func sortTicketsAsc(ts []Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}

// RegisterTechnician files a pending registration keyed by user id.
func (m *Memory) RegisterTechnician(_ context.Context, id int64, name, phone, skills string) (*Technician, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewError(KindValidation, "technician name must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.techs[id]; exists {
		return nil, NewError(KindDuplicate, "technician %d is already registered", id)
	}
	tech := &Technician{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		Skills:    strings.TrimSpace(skills),
		Status:    TechPending,
		CreatedAt: time.Now(),
	}
	m.techs[id] = tech

	out := *tech
	return &out, nil
}

// Technician returns a technician by user id.
func (m *Memory) Technician(_ context.Context, id int64) (*Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tech, ok := m.techs[id]
	if !ok {
		return nil, NewError(KindNotFound, "technician %d not found", id)
	}
	out := *tech
	return &out, nil
}

// Technicians lists technicians, optionally filtered by status.
func (m *Memory) Technicians(_ context.Context, status TechnicianStatus) ([]Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Technician
	for _, tech := range m.techs {
		if status != "" && tech.Status != status {
			continue
		}
		out = append(out, *tech)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SetTechnicianStatus approves or rejects a registration.
func (m *Memory) SetTechnicianStatus(_ context.Context, id int64, status TechnicianStatus) error {
	if status != TechApproved && status != TechRejected {
		return NewError(KindValidation, "technician status must be approved or rejected, got %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tech, ok := m.techs[id]
	if !ok {
		return NewError(KindNotFound, "technician %d not found", id)
	}
	if status == TechRejected && m.activeTicketCountLocked(id) > 0 {
		return NewError(KindState, "technician %d still holds active tickets", id)
	}
	tech.Status = status
	return nil
}

func (m *Memory) activeTicketCountLocked(techID int64) int {
	n := 0
	for _, t := range m.tickets {
		if t.AssignedTo(techID) && (t.Status == StatusAssigned || t.Status == StatusInProgress) {
			n++
		}
	}
	return n
}

// RecordFeedback stores the single feedback for a Completed ticket.
func (m *Memory) RecordFeedback(_ context.Context, ticketID int64, rating int, comment string) (*Feedback, error) {
	if err := ValidateRating(rating); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, NewError(KindNotFound, "ticket #%d not found", ticketID)
	}
	if t.Status != StatusCompleted {
		return nil, NewError(KindState, "ticket #%d is %s; feedback requires a completed ticket", ticketID, t.Status)
	}
	for _, fb := range m.feedback {
		if fb.TicketID == ticketID {
			return nil, NewError(KindDuplicate, "feedback for ticket #%d already exists", ticketID)
		}
	}

	m.nextFeedbackID++
	fb := &Feedback{
		ID:        m.nextFeedbackID,
		TicketID:  ticketID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: time.Now(),
	}
	m.feedback[fb.ID] = fb
	t.Status = StatusClosedWithFeedback
	t.UpdatedAt = time.Now()

	out := *fb
	return &out, nil
}

// FeedbackForTicket returns the feedback left for a ticket, if any.
func (m *Memory) FeedbackForTicket(_ context.Context, ticketID int64) (*Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fb := range m.feedback {
		if fb.TicketID == ticketID {
			out := *fb
			return &out, nil
		}
	}
	return nil, NewError(KindNotFound, "no feedback for ticket #%d", ticketID)
}

// Feedbacks lists all feedback, newest first.
func (m *Memory) Feedbacks(_ context.Context) ([]Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Feedback, 0, len(m.feedback))
	for _, fb := range m.feedback {
		out = append(out, *fb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Stats aggregates counters across all records.
func (m *Memory) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Stats{}
	for _, t := range m.tickets {
		s.TotalTickets++
		switch t.Status {
		case StatusCompleted, StatusClosedWithFeedback:
			s.CompletedTickets++
		case StatusCancelled:
			s.CancelledTickets++
		default:
			s.OpenTickets++
		}
		if t.TechnicianID.Valid {
			s.AssignedTickets++
		}
	}
	for _, tech := range m.techs {
		switch tech.Status {
		case TechPending:
			s.PendingTechs++
		case TechApproved:
			s.ApprovedTechs++
		}
	}
	return s, nil
}

// TopTechnicians ranks technicians by completed tickets.
func (m *Memory) TopTechnicians(_ context.Context, limit int) ([]TechnicianLoad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[int64]int64)
	for _, t := range m.tickets {
		if t.TechnicianID.Valid && (t.Status == StatusCompleted || t.Status == StatusClosedWithFeedback) {
			counts[t.TechnicianID.Int64]++
		}
	}
	var out []TechnicianLoad
	for id, n := range counts {
		tech, ok := m.techs[id]
		if !ok {
			continue
		}
		out = append(out, TechnicianLoad{Technician: *tech, Completed: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Completed == out[j].Completed {
			return out[i].Technician.ID < out[j].Technician.ID
		}
		return out[i].Completed > out[j].Completed
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ExportAll returns a read-only snapshot of every record.
func (m *Memory) ExportAll(ctx context.Context) (*Snapshot, error) {
	tickets, err := m.Tickets(ctx, TicketFilter{})
	if err != nil {
		return nil, err
	}
	techs, err := m.Technicians(ctx, "")
	if err != nil {
		return nil, err
	}
	fbs, err := m.Feedbacks(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Tickets: tickets, Technicians: techs, Feedback: fbs}, nil
}
