// Package export renders store records as CSV for the admin export
// commands. Output goes to any writer; the bot sends it as a document.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/servicefix/fixbot/internal/storage"
)

const timeLayout = time.RFC3339

// Tickets writes all tickets as CSV, one row per ticket.
func Tickets(w io.Writer, tickets []storage.Ticket) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "customer_id", "appliance", "district", "issue",
		"description", "status", "technician_id", "created_at", "updated_at",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write ticket header: %w", err)
	}
	for _, t := range tickets {
		techID := ""
		if t.TechnicianID.Valid {
			techID = strconv.FormatInt(t.TechnicianID.Int64, 10)
		}
		row := []string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.CustomerID, 10),
			string(t.Appliance),
			t.District,
			t.Issue,
			t.Description,
			string(t.Status),
			techID,
			t.CreatedAt.Format(timeLayout),
			t.UpdatedAt.Format(timeLayout),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write ticket row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Technicians writes all technicians as CSV.
func Technicians(w io.Writer, techs []storage.Technician) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "phone", "skills", "status", "created_at"}); err != nil {
		return fmt.Errorf("write technician header: %w", err)
	}
	for _, t := range techs {
		row := []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			t.Phone,
			t.Skills,
			string(t.Status),
			t.CreatedAt.Format(timeLayout),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write technician row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Feedback writes all feedback entries as CSV.
func Feedback(w io.Writer, fbs []storage.Feedback) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "ticket_id", "rating", "comment", "created_at"}); err != nil {
		return fmt.Errorf("write feedback header: %w", err)
	}
	for _, fb := range fbs {
		row := []string{
			strconv.FormatInt(fb.ID, 10),
			strconv.FormatInt(fb.TicketID, 10),
			strconv.Itoa(fb.Rating),
			fb.Comment,
			fb.CreatedAt.Format(timeLayout),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write feedback row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
