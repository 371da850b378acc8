package storage

import (
	"database/sql"
	"strings"
	"time"
)

// TicketStatus is the lifecycle state of a repair ticket.
type TicketStatus string

const (
	StatusNew                TicketStatus = "new"
	StatusAssigned           TicketStatus = "assigned"
	StatusInProgress         TicketStatus = "in_progress"
	StatusCompleted          TicketStatus = "completed"
	StatusClosedWithFeedback TicketStatus = "closed_with_feedback"
	StatusCancelled          TicketStatus = "cancelled"
)

// ticketTransitions is the complete forward-only transition table.
// Cancelled and ClosedWithFeedback are terminal.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	StatusNew:                {StatusAssigned, StatusCancelled},
	StatusAssigned:           {StatusInProgress, StatusCancelled},
	StatusInProgress:         {StatusCompleted},
	StatusCompleted:          {StatusClosedWithFeedback},
	StatusClosedWithFeedback: {},
	StatusCancelled:          {},
}

// CanTransitionTo reports whether next is a permitted successor of s.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range ticketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s TicketStatus) Terminal() bool {
	return len(ticketTransitions[s]) == 0
}

// Valid reports whether s is a known status value.
func (s TicketStatus) Valid() bool {
	_, ok := ticketTransitions[s]
	return ok
}

// Appliance is the fixed category of serviced appliances.
type Appliance string

const (
	ApplianceAC             Appliance = "AC"
	ApplianceFridge         Appliance = "Fridge"
	ApplianceWashingMachine Appliance = "Washing Machine"
	ApplianceOther          Appliance = "Other"
)

// Appliances lists the selectable categories in display order.
func Appliances() []Appliance {
	return []Appliance{ApplianceAC, ApplianceFridge, ApplianceWashingMachine, ApplianceOther}
}

// ParseAppliance maps user input to an appliance category.
func ParseAppliance(input string) (Appliance, bool) {
	needle := strings.ToLower(strings.TrimSpace(input))
	for _, a := range Appliances() {
		if needle == strings.ToLower(string(a)) {
			return a, true
		}
	}
	return "", false
}

// Role identifies who is acting in a store operation.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// Actor is the authenticated identity behind a mutating call.
type Actor struct {
	ID   int64
	Role Role
}

// Ticket is a customer's repair request and its lifecycle state.
type Ticket struct {
	ID           int64         `db:"id"`
	CustomerID   int64         `db:"customer_id"`
	Appliance    Appliance     `db:"appliance"`
	District     string        `db:"district"`
	Issue        string        `db:"issue"`
	Description  string        `db:"description"`
	Status       TicketStatus  `db:"status"`
	TechnicianID sql.NullInt64 `db:"technician_id"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// AssignedTo reports whether the ticket is currently held by techID.
func (t *Ticket) AssignedTo(techID int64) bool {
	return t.TechnicianID.Valid && t.TechnicianID.Int64 == techID
}

// TechnicianStatus is the admin-controlled registration state.
type TechnicianStatus string

const (
	TechPending  TechnicianStatus = "pending"
	TechApproved TechnicianStatus = "approved"
	TechRejected TechnicianStatus = "rejected"
)

// Technician is a service provider; its ID equals the Telegram user ID.
type Technician struct {
	ID        int64            `db:"id"`
	Name      string           `db:"name"`
	Phone     string           `db:"phone"`
	Skills    string           `db:"skills"`
	Status    TechnicianStatus `db:"status"`
	CreatedAt time.Time        `db:"created_at"`
}

// Feedback is a customer's rating for a completed ticket. At most one exists
// per ticket.
type Feedback struct {
	ID        int64     `db:"id"`
	TicketID  int64     `db:"ticket_id"`
	Rating    int       `db:"rating"`
	Comment   string    `db:"comment"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	// RatingMin and RatingMax bound the feedback scale.
	RatingMin = 1
	RatingMax = 5
)

// TicketInput carries the fields required to open a ticket.
type TicketInput struct {
	CustomerID  int64
	Appliance   Appliance
	District    string
	Issue       string
	Description string
}

// DistrictChecker validates districts against reference data.
type DistrictChecker interface {
	IsDistrict(input string) bool
}

// ValidateTicketInput enforces the creation constraints shared by all store
// implementations.
func ValidateTicketInput(in TicketInput, districts DistrictChecker) error {
	if in.CustomerID == 0 {
		return NewError(KindValidation, "customer id is required")
	}
	if _, ok := ParseAppliance(string(in.Appliance)); !ok {
		return NewError(KindValidation, "unknown appliance category %q", in.Appliance)
	}
	if strings.TrimSpace(in.Issue) == "" {
		return NewError(KindValidation, "issue summary must not be empty")
	}
	if districts != nil && !districts.IsDistrict(in.District) {
		return NewError(KindValidation, "unknown district %q", in.District)
	}
	return nil
}

// AuthorizeStatusChange enforces who may move a ticket between states:
// the assigned technician or the admin, except that the owning customer may
// cancel a ticket that is still New.
func AuthorizeStatusChange(t *Ticket, next TicketStatus, actor Actor) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	if actor.Role == RoleCustomer {
		if next == StatusCancelled && t.Status == StatusNew && actor.ID == t.CustomerID {
			return nil
		}
		return NewError(KindUnauthorized, "customers may only cancel their own new tickets")
	}
	if actor.Role == RoleTechnician && t.AssignedTo(actor.ID) {
		return nil
	}
	return NewError(KindUnauthorized, "actor %d may not change ticket #%d", actor.ID, t.ID)
}

// CheckTransition validates the status value and the transition table.
func CheckTransition(t *Ticket, next TicketStatus) error {
	if !next.Valid() {
		return NewError(KindValidation, "unknown ticket status %q", next)
	}
	if !t.Status.CanTransitionTo(next) {
		return NewError(KindIllegalTransition, "ticket #%d cannot move from %s to %s", t.ID, t.Status, next)
	}
	return nil
}

// ValidateRating enforces the bounded feedback scale.
func ValidateRating(rating int) error {
	if rating < RatingMin || rating > RatingMax {
		return NewError(KindValidation, "rating must be between %d and %d", RatingMin, RatingMax)
	}
	return nil
}
