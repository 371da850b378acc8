package storage

import (
	"context"
	"time"
)

// TicketFilter narrows ticket listings. Zero values mean "any".
type TicketFilter struct {
	Status    TicketStatus
	District  string
	Appliance Appliance
	// CreatedOn keeps tickets created on the given calendar day.
	CreatedOn *time.Time
	// Keyword matches appliance, issue, district or description, case-insensitively.
	Keyword string
}

// Stats aggregates counters for the admin report.
type Stats struct {
	TotalTickets     int64
	OpenTickets      int64
	CompletedTickets int64
	CancelledTickets int64
	AssignedTickets  int64
	PendingTechs     int64
	ApprovedTechs    int64
}

// TechnicianLoad pairs a technician with the number of tickets they finished.
type TechnicianLoad struct {
	Technician Technician
	Completed  int64
}

// Snapshot is the read-only projection handed to the CSV formatter.
type Snapshot struct {
	Tickets     []Ticket
	Technicians []Technician
	Feedback    []Feedback
}

// Store owns all durable ticket, technician and feedback records. Every
// operation is atomic with respect to a single record.
type Store interface {
	// CreateTicket validates fields and opens a ticket in status New.
	CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error)
	// Ticket returns a ticket by id.
	Ticket(ctx context.Context, id int64) (*Ticket, error)
	// UpdateTicketStatus moves a ticket along the lifecycle after
	// authorization and transition checks.
	UpdateTicketStatus(ctx context.Context, id int64, next TicketStatus, actor Actor) error
	// AssignTechnician puts a New ticket into Assigned. The technician must
	// be approved; any other ticket status is refused.
	AssignTechnician(ctx context.Context, ticketID, techID int64) error
	// ReassignTechnician moves an Assigned ticket to another approved
	// technician without touching the status.
	ReassignTechnician(ctx context.Context, ticketID, techID int64) error
	// TicketsForTechnician lists the technician's active jobs
	// (Assigned/InProgress), ordered by creation time ascending.
	TicketsForTechnician(ctx context.Context, techID int64) ([]Ticket, error)
	// TicketsForCustomer lists a customer's tickets, newest first.
	TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error)
	// Tickets lists tickets matching the filter, ordered by creation time
	// ascending.
	Tickets(ctx context.Context, f TicketFilter) ([]Ticket, error)

	// RegisterTechnician files a pending registration keyed by user id.
	RegisterTechnician(ctx context.Context, id int64, name, phone, skills string) (*Technician, error)
	// Technician returns a technician by user id.
	Technician(ctx context.Context, id int64) (*Technician, error)
	// Technicians lists technicians, optionally filtered by status.
	Technicians(ctx context.Context, status TechnicianStatus) ([]Technician, error)
	// SetTechnicianStatus approves or rejects a registration. Rejection is
	// refused while the technician holds active tickets.
	SetTechnicianStatus(ctx context.Context, id int64, status TechnicianStatus) error

	// RecordFeedback stores the single feedback for a Completed ticket and
	// advances the ticket to ClosedWithFeedback.
	RecordFeedback(ctx context.Context, ticketID int64, rating int, comment string) (*Feedback, error)
	// FeedbackForTicket returns the feedback left for a ticket, if any.
	FeedbackForTicket(ctx context.Context, ticketID int64) (*Feedback, error)
	// Feedbacks lists all feedback, newest first.
	Feedbacks(ctx context.Context) ([]Feedback, error)

	// Stats aggregates counters across all records.
	Stats(ctx context.Context) (*Stats, error)
	// TopTechnicians ranks technicians by completed tickets, best first.
	TopTechnicians(ctx context.Context, limit int) ([]TechnicianLoad, error)
	// ExportAll returns a read-only snapshot of every record.
	ExportAll(ctx context.Context) (*Snapshot, error)
}
