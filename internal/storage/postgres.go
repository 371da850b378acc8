package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/servicefix/fixbot/internal/logging"
)

// Compile-time interface checks for both store implementations.
var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)

const uniqueViolation = "23505"

// Postgres is the durable Store backed by a Postgres database. Per-ticket
// writes serialize through row locks (SELECT ... FOR UPDATE).
type Postgres struct {
	db        *sqlx.DB
	districts DistrictChecker
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB, districts DistrictChecker) *Postgres {
	return &Postgres{db: db, districts: districts}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// CreateTicket validates fields and opens a ticket in status New.
func (p *Postgres) CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error) {
	if err := ValidateTicketInput(in, p.districts); err != nil {
		return nil, err
	}

	start := time.Now()
	var t Ticket
	err := p.db.GetContext(ctx, &t, `
		INSERT INTO tickets (customer_id, appliance, district, issue, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		in.CustomerID, in.Appliance, in.District,
		strings.TrimSpace(in.Issue), strings.TrimSpace(in.Description), StatusNew,
	)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	logging.Store.Info("ticket created",
		slog.String("event", "ticket.create"),
		slog.Int64("ticket_id", t.ID),
		slog.Int64("customer_id", t.CustomerID),
		slog.String("district", t.District),
		slog.Duration("duration", logging.RoundMS(time.Since(start))),
	)
	return &t, nil
}

// Ticket returns a ticket by id.
func (p *Postgres) Ticket(ctx context.Context, id int64) (*Ticket, error) {
	var t Ticket
	err := p.db.GetContext(ctx, &t, `SELECT * FROM tickets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(KindNotFound, "ticket #%d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &t, nil
}

func (p *Postgres) ticketForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*Ticket, error) {
	var t Ticket
	err := tx.GetContext(ctx, &t, `SELECT * FROM tickets WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(KindNotFound, "ticket #%d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock ticket: %w", err)
	}
	return &t, nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateTicketStatus moves a ticket along the lifecycle.
func (p *Postgres) UpdateTicketStatus(ctx context.Context, id int64, next TicketStatus, actor Actor) error {
	err := p.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := p.ticketForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(t, next); err != nil {
			return err
		}
		if err := AuthorizeStatusChange(t, next, actor); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = $1, updated_at = now() WHERE id = $2`, next, id)
		if err != nil {
			return fmt.Errorf("update ticket status: %w", err)
		}
		return nil
	})
	if err == nil {
		logging.Store.Info("ticket status updated",
			slog.String("event", "ticket.status"),
			slog.Int64("ticket_id", id),
			slog.String("status", string(next)),
			slog.Int64("actor_id", actor.ID),
		)
	}
	return err
}

// AssignTechnician puts a New ticket into Assigned.
func (p *Postgres) AssignTechnician(ctx context.Context, ticketID, techID int64) error {
	return p.assign(ctx, ticketID, techID, StatusNew)
}

// ReassignTechnician moves an Assigned ticket to another approved technician.
func (p *Postgres) ReassignTechnician(ctx context.Context, ticketID, techID int64) error {
	return p.assign(ctx, ticketID, techID, StatusAssigned)
}

func (p *Postgres) assign(ctx context.Context, ticketID, techID int64, wantStatus TicketStatus) error {
	err := p.inTx(ctx, func(tx *sqlx.Tx) error {
		var tech Technician
		err := tx.GetContext(ctx, &tech, `SELECT * FROM technicians WHERE id = $1`, techID)
		if errors.Is(err, sql.ErrNoRows) {
			return NewError(KindNotFound, "technician %d not found", techID)
		}
		if err != nil {
			return fmt.Errorf("get technician: %w", err)
		}
		if tech.Status != TechApproved {
			return NewError(KindState, "technician %d is not approved", techID)
		}

		t, err := p.ticketForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if t.Status != wantStatus {
			return NewError(KindIllegalTransition, "ticket #%d is %s, not %s", ticketID, t.Status, wantStatus)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE tickets SET technician_id = $1, status = $2, updated_at = now()
			WHERE id = $3`, techID, StatusAssigned, ticketID)
		if err != nil {
			return fmt.Errorf("assign technician: %w", err)
		}
		return nil
	})
	if err == nil {
		logging.Store.Info("ticket assigned",
			slog.String("event", "ticket.assign"),
			slog.Int64("ticket_id", ticketID),
			slog.Int64("technician_id", techID),
		)
	}
	return err
}

// TicketsForTechnician lists a technician's active jobs, oldest first.
func (p *Postgres) TicketsForTechnician(ctx context.Context, techID int64) ([]Ticket, error) {
	var out []Ticket
	err := p.db.SelectContext(ctx, &out, `
		SELECT * FROM tickets
		WHERE technician_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC, id ASC`,
		techID, StatusAssigned, StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("tickets for technician: %w", err)
	}
	return out, nil
}

// TicketsForCustomer lists a customer's tickets, newest first.
func (p *Postgres) TicketsForCustomer(ctx context.Context, customerID int64) ([]Ticket, error) {
	var out []Ticket
	err := p.db.SelectContext(ctx, &out, `
		SELECT * FROM tickets WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("tickets for customer: %w", err)
	}
	return out, nil
}

// Tickets lists tickets matching the filter, oldest first.
func (p *Postgres) Tickets(ctx context.Context, f TicketFilter) ([]Ticket, error) {
	query := `SELECT * FROM tickets WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		query += ` AND status = ` + arg(f.Status)
	}
	if f.District != "" {
		query += ` AND lower(district) = lower(` + arg(f.District) + `)`
	}
	if f.Appliance != "" {
		query += ` AND appliance = ` + arg(f.Appliance)
	}
	if f.CreatedOn != nil {
		query += ` AND created_at::date = ` + arg(f.CreatedOn.Format("2006-01-02")) + `::date`
	}
	if f.Keyword != "" {
		ph := arg("%" + strings.ToLower(f.Keyword) + "%")
		query += ` AND (lower(appliance) LIKE ` + ph +
			` OR lower(issue) LIKE ` + ph +
			` OR lower(district) LIKE ` + ph +
			` OR lower(description) LIKE ` + ph + `)`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var out []Ticket
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return out, nil
}

// RegisterTechnician files a pending registration keyed by user id.
func (p *Postgres) RegisterTechnician(ctx context.Context, id int64, name, phone, skills string) (*Technician, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewError(KindValidation, "technician name must not be empty")
	}

	var tech Technician
	err := p.db.GetContext(ctx, &tech, `
		INSERT INTO technicians (id, name, phone, skills, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		id, strings.TrimSpace(name), strings.TrimSpace(phone), strings.TrimSpace(skills), TechPending,
	)
	if isUniqueViolation(err) {
		return nil, WrapError(KindDuplicate, err, "technician %d is already registered", id)
	}
	if err != nil {
		return nil, fmt.Errorf("register technician: %w", err)
	}
	logging.Store.Info("technician registered",
		slog.String("event", "technician.register"),
		slog.Int64("technician_id", tech.ID),
	)
	return &tech, nil
}

// Technician returns a technician by user id.
func (p *Postgres) Technician(ctx context.Context, id int64) (*Technician, error) {
	var tech Technician
	err := p.db.GetContext(ctx, &tech, `SELECT * FROM technicians WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(KindNotFound, "technician %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get technician: %w", err)
	}
	return &tech, nil
}

// Technicians lists technicians, optionally filtered by status.
func (p *Postgres) Technicians(ctx context.Context, status TechnicianStatus) ([]Technician, error) {
	var out []Technician
	var err error
	if status == "" {
		err = p.db.SelectContext(ctx, &out,
			`SELECT * FROM technicians ORDER BY created_at ASC, id ASC`)
	} else {
		err = p.db.SelectContext(ctx, &out,
			`SELECT * FROM technicians WHERE status = $1 ORDER BY created_at ASC, id ASC`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	return out, nil
}

// SetTechnicianStatus approves or rejects a registration. Rejection is
// refused while the technician holds Assigned or InProgress tickets.
func (p *Postgres) SetTechnicianStatus(ctx context.Context, id int64, status TechnicianStatus) error {
	if status != TechApproved && status != TechRejected {
		return NewError(KindValidation, "technician status must be approved or rejected, got %q", status)
	}
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		var current TechnicianStatus
		err := tx.GetContext(ctx, &current,
			`SELECT status FROM technicians WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return NewError(KindNotFound, "technician %d not found", id)
		}
		if err != nil {
			return fmt.Errorf("lock technician: %w", err)
		}
		if status == TechRejected {
			var active int64
			err := tx.GetContext(ctx, &active, `
				SELECT count(*) FROM tickets
				WHERE technician_id = $1 AND status IN ($2, $3)`,
				id, StatusAssigned, StatusInProgress)
			if err != nil {
				return fmt.Errorf("count active tickets: %w", err)
			}
			if active > 0 {
				return NewError(KindState, "technician %d still holds active tickets", id)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE technicians SET status = $1 WHERE id = $2`, status, id); err != nil {
			return fmt.Errorf("set technician status: %w", err)
		}
		return nil
	})
}

// RecordFeedback stores the single feedback for a Completed ticket and
// advances the ticket to ClosedWithFeedback.
func (p *Postgres) RecordFeedback(ctx context.Context, ticketID int64, rating int, comment string) (*Feedback, error) {
	if err := ValidateRating(rating); err != nil {
		return nil, err
	}

	var fb Feedback
	err := p.inTx(ctx, func(tx *sqlx.Tx) error {
		t, err := p.ticketForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if t.Status != StatusCompleted {
			return NewError(KindState, "ticket #%d is %s; feedback requires a completed ticket", ticketID, t.Status)
		}
		err = tx.GetContext(ctx, &fb, `
			INSERT INTO feedback (ticket_id, rating, comment)
			VALUES ($1, $2, $3)
			RETURNING *`, ticketID, rating, strings.TrimSpace(comment))
		if isUniqueViolation(err) {
			return WrapError(KindDuplicate, err, "feedback for ticket #%d already exists", ticketID)
		}
		if err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE tickets SET status = $1, updated_at = now() WHERE id = $2`,
			StatusClosedWithFeedback, ticketID)
		if err != nil {
			return fmt.Errorf("close ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.Store.Info("feedback recorded",
		slog.String("event", "feedback.record"),
		slog.Int64("ticket_id", ticketID),
		slog.Int("rating", rating),
	)
	return &fb, nil
}

// FeedbackForTicket returns the feedback left for a ticket, if any.
func (p *Postgres) FeedbackForTicket(ctx context.Context, ticketID int64) (*Feedback, error) {
	var fb Feedback
	err := p.db.GetContext(ctx, &fb, `SELECT * FROM feedback WHERE ticket_id = $1`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(KindNotFound, "no feedback for ticket #%d", ticketID)
	}
	if err != nil {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	return &fb, nil
}

// Feedbacks lists all feedback, newest first.
func (p *Postgres) Feedbacks(ctx context.Context) ([]Feedback, error) {
	var out []Feedback
	err := p.db.SelectContext(ctx, &out,
		`SELECT * FROM feedback ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return out, nil
}

// Stats aggregates counters across all records.
func (p *Postgres) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := p.db.GetContext(ctx, &s, `
		SELECT
			count(*)                                                        AS totaltickets,
			count(*) FILTER (WHERE status IN ('new','assigned','in_progress'))            AS opentickets,
			count(*) FILTER (WHERE status IN ('completed','closed_with_feedback'))        AS completedtickets,
			count(*) FILTER (WHERE status = 'cancelled')                    AS cancelledtickets,
			count(*) FILTER (WHERE technician_id IS NOT NULL)               AS assignedtickets
		FROM tickets`)
	if err != nil {
		return nil, fmt.Errorf("ticket stats: %w", err)
	}
	err = p.db.GetContext(ctx, &s, `
		SELECT
			count(*) FILTER (WHERE status = 'pending')  AS pendingtechs,
			count(*) FILTER (WHERE status = 'approved') AS approvedtechs
		FROM technicians`)
	if err != nil {
		return nil, fmt.Errorf("technician stats: %w", err)
	}
	return &s, nil
}

// TopTechnicians ranks technicians by completed tickets.
func (p *Postgres) TopTechnicians(ctx context.Context, limit int) ([]TechnicianLoad, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := p.db.QueryxContext(ctx, `
		SELECT t.id, t.name, t.phone, t.skills, t.status, t.created_at, count(k.id) AS completed
		FROM technicians t
		JOIN tickets k ON k.technician_id = t.id
			AND k.status IN ($1, $2)
		GROUP BY t.id
		ORDER BY completed DESC, t.id ASC
		LIMIT $3`,
		StatusCompleted, StatusClosedWithFeedback, limit)
	if err != nil {
		return nil, fmt.Errorf("top technicians: %w", err)
	}
	defer rows.Close()

	var out []TechnicianLoad
	for rows.Next() {
		var tl TechnicianLoad
		if err := rows.Scan(
			&tl.Technician.ID, &tl.Technician.Name, &tl.Technician.Phone,
			&tl.Technician.Skills, &tl.Technician.Status, &tl.Technician.CreatedAt,
			&tl.Completed,
		); err != nil {
			return nil, fmt.Errorf("scan technician load: %w", err)
		}
		out = append(out, tl)
	}
	return out, rows.Err()
}

// ExportAll returns a read-only snapshot of every record.
func (p *Postgres) ExportAll(ctx context.Context) (*Snapshot, error) {
	tickets, err := p.Tickets(ctx, TicketFilter{})
	if err != nil {
		return nil, err
	}
	techs, err := p.Technicians(ctx, "")
	if err != nil {
		return nil, err
	}
	fbs, err := p.Feedbacks(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Tickets: tickets, Technicians: techs, Feedback: fbs}, nil
}
