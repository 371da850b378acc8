package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/servicefix/fixbot/internal/storage"
)

// statusLabels maps lifecycle states to the words users see.
var statusLabels = map[storage.TicketStatus]string{
	storage.StatusNew:                "🆕 New",
	storage.StatusAssigned:           "👷 Assigned",
	storage.StatusInProgress:         "🔧 In progress",
	storage.StatusCompleted:          "✅ Completed",
	storage.StatusClosedWithFeedback: "⭐ Closed",
	storage.StatusCancelled:          "❌ Cancelled",
}

func statusLabel(s storage.TicketStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func esc(s string) string { return html.EscapeString(s) }

// renderTicketLine is the one-line list form of a ticket.
func renderTicketLine(t *storage.Ticket) string {
	return fmt.Sprintf("#%d · %s · %s · %s · %s",
		t.ID, esc(string(t.Appliance)), esc(t.District),
		esc(t.Issue), statusLabel(t.Status))
}

// renderTicket is the full card shown by /ticketdetails and /status.
func renderTicket(t *storage.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Ticket #%d</b>\n", t.ID)
	fmt.Fprintf(&b, "Appliance: %s\n", esc(string(t.Appliance)))
	fmt.Fprintf(&b, "District: %s\n", esc(t.District))
	fmt.Fprintf(&b, "Issue: %s\n", esc(t.Issue))
	if t.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", esc(t.Description))
	}
	fmt.Fprintf(&b, "Status: %s\n", statusLabel(t.Status))
	if t.TechnicianID.Valid {
		fmt.Fprintf(&b, "Technician: %d\n", t.TechnicianID.Int64)
	}
	fmt.Fprintf(&b, "Opened: %s", t.CreatedAt.Format("02 Jan 2006 15:04"))
	return b.String()
}

func renderTicketList(title string, tickets []storage.Ticket) string {
	if len(tickets) == 0 {
		return title + "\n\nNothing here yet."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for i := range tickets {
		b.WriteString("\n")
		b.WriteString(renderTicketLine(&tickets[i]))
	}
	return b.String()
}

func renderTechnician(t *storage.Technician) string {
	return fmt.Sprintf("<b>%s</b> (id %d)\nPhone: %s\nSkills: %s\nStatus: %s",
		esc(t.Name), t.ID, esc(t.Phone), esc(t.Skills), t.Status)
}

func renderTechnicianList(title string, techs []storage.Technician) string {
	if len(techs) == 0 {
		return title + "\n\nNobody here yet."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for i := range techs {
		t := &techs[i]
		fmt.Fprintf(&b, "\n%d · %s · %s · %s", t.ID, esc(t.Name), esc(t.Skills), t.Status)
	}
	return b.String()
}

func renderFeedback(fb *storage.Feedback) string {
	stars := strings.Repeat("⭐", fb.Rating)
	if fb.Comment == "" {
		return fmt.Sprintf("Ticket #%d: %s", fb.TicketID, stars)
	}
	return fmt.Sprintf("Ticket #%d: %s\n%s", fb.TicketID, stars, esc(fb.Comment))
}

func renderStats(s *storage.Stats) string {
	var b strings.Builder
	b.WriteString("<b>Service desk stats</b>\n")
	fmt.Fprintf(&b, "\nTickets: %d total", s.TotalTickets)
	fmt.Fprintf(&b, "\n  open: %d", s.OpenTickets)
	fmt.Fprintf(&b, "\n  completed: %d", s.CompletedTickets)
	fmt.Fprintf(&b, "\n  cancelled: %d", s.CancelledTickets)
	fmt.Fprintf(&b, "\n  with technician: %d", s.AssignedTickets)
	fmt.Fprintf(&b, "\n\nTechnicians: %d approved, %d pending", s.ApprovedTechs, s.PendingTechs)
	return b.String()
}
