package bot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/export"
	"github.com/servicefix/fixbot/internal/logging"
	"github.com/servicefix/fixbot/internal/storage"
)

func (b *Bot) handleAdmin(c tele.Context) error {
	return c.Send("<b>Admin commands</b>\n" +
		"/assign [ticket] [tech] - hand a new ticket to a technician\n" +
		"/reassign &lt;ticket&gt; &lt;tech&gt; - move an assigned ticket\n" +
		"/listall /listnew /listassigned - ticket lists\n" +
		"/ticketdetails &lt;ticket&gt; - full ticket card\n" +
		"/userhistory &lt;user&gt; - a customer's tickets\n" +
		"/searchtickets &lt;keyword&gt; - search open text fields\n" +
		"/ticketsbydistrict &lt;district&gt; - filter by district\n" +
		"/ticketsbydate &lt;YYYY-MM-DD&gt; - filter by day\n" +
		"/completeticket /cancelticketadmin &lt;ticket&gt; - force lifecycle moves\n" +
		"/bulkassign &lt;tech&gt; &lt;tickets...&gt; - assign several at once\n" +
		"/bulkcancel &lt;tickets...&gt; - cancel several at once\n" +
		"/listtechs /pendingapproval - technician lists\n" +
		"/approvetech /rejecttech &lt;tech&gt; - registration decisions\n" +
		"/feedbacks /feedbackbyticket &lt;ticket&gt; - ratings\n" +
		"/stats /toptechs - aggregates\n" +
		"/exporttickets /exporttechs /exportfeedback - CSV dumps")
}

// handleAssign routes between the three /assign shapes: no arguments lists
// new tickets, one argument offers technicians, two perform the assignment.
func (b *Bot) handleAssign(c tele.Context) error {
	args := c.Args()
	switch len(args) {
	case 0:
		// With no arguments the assignment runs as a conversation.
		return b.startFlow(c, flowAssign)
	case 1:
		id, err := parseID(args[0])
		if err != nil {
			return c.Send("Usage: /assign &lt;ticket&gt; [tech]")
		}
		return b.sendTechnicianPicker(c, id)
	default:
		ticketID, err1 := parseID(args[0])
		techID, err2 := parseID(args[1])
		if err1 != nil || err2 != nil {
			return c.Send("Usage: /assign &lt;ticket&gt; &lt;tech&gt;")
		}
		return b.assignTicket(c, ticketID, techID)
	}
}

func (b *Bot) sendTechnicianPicker(c tele.Context, ticketID int64) error {
	techs, err := b.store.Technicians(context.Background(), storage.TechApproved)
	if err != nil {
		return c.Send(userMessage(err))
	}
	if len(techs) == 0 {
		return c.Send("No approved technicians yet.")
	}
	var buttons []inlineBtn
	for i := range techs {
		t := &techs[i]
		buttons = append(buttons, inlineBtn{
			Text:   fmt.Sprintf("%s · %s", t.Name, t.Skills),
			Unique: cbAssignPick,
			Data:   pairPayload(ticketID, t.ID),
		})
	}
	return c.Send(fmt.Sprintf("Who takes ticket #%d?", ticketID), inlineButtons(buttons))
}

func (b *Bot) assignTicket(c tele.Context, ticketID, techID int64) error {
	ctx := context.Background()
	if err := b.store.AssignTechnician(ctx, ticketID, techID); err != nil {
		return c.Send(userMessage(err))
	}
	if t, err := b.store.Ticket(ctx, ticketID); err == nil {
		b.notify(techID, fmt.Sprintf("You've got a new job:\n\n%s", renderTicket(t)))
		b.notify(t.CustomerID, fmt.Sprintf(
			"A technician was assigned to your ticket <b>#%d</b>.", ticketID))
	}
	return c.Send(fmt.Sprintf("Ticket #%d assigned to technician %d.", ticketID, techID))
}

func (b *Bot) handleReassign(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /reassign &lt;ticket&gt; &lt;tech&gt;")
	}
	ticketID, err1 := parseID(args[0])
	techID, err2 := parseID(args[1])
	if err1 != nil || err2 != nil {
		return c.Send("Usage: /reassign &lt;ticket&gt; &lt;tech&gt;")
	}

	ctx := context.Background()
	if err := b.store.ReassignTechnician(ctx, ticketID, techID); err != nil {
		return c.Send(userMessage(err))
	}
	if t, err := b.store.Ticket(ctx, ticketID); err == nil {
		b.notify(techID, fmt.Sprintf("A job was moved to you:\n\n%s", renderTicket(t)))
	}
	return c.Send(fmt.Sprintf("Ticket #%d moved to technician %d.", ticketID, techID))
}

func (b *Bot) listTickets(c tele.Context, title string, filter storage.TicketFilter) error {
	tickets, err := b.store.Tickets(context.Background(), filter)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderTicketList(title, tickets))
}

func (b *Bot) handleListAll(c tele.Context) error {
	return b.listTickets(c, "<b>All tickets</b>", storage.TicketFilter{})
}

func (b *Bot) handleListNew(c tele.Context) error {
	return b.listTickets(c, "<b>New tickets</b>", storage.TicketFilter{Status: storage.StatusNew})
}

func (b *Bot) handleListAssigned(c tele.Context) error {
	return b.listTickets(c, "<b>Assigned tickets</b>", storage.TicketFilter{Status: storage.StatusAssigned})
}

func (b *Bot) handleTicketDetails(c tele.Context) error {
	if len(c.Args()) == 0 {
		return c.Send("Usage: /ticketdetails &lt;ticket&gt;")
	}
	id, err := parseID(c.Args()[0])
	if err != nil {
		return c.Send("Usage: /ticketdetails &lt;ticket&gt;")
	}
	t, err := b.store.Ticket(context.Background(), id)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderTicket(t))
}

func (b *Bot) handleUserHistory(c tele.Context) error {
	if len(c.Args()) == 0 {
		return c.Send("Usage: /userhistory &lt;user&gt;")
	}
	userID, err := parseID(c.Args()[0])
	if err != nil {
		return c.Send("Usage: /userhistory &lt;user&gt;")
	}
	tickets, err := b.store.TicketsForCustomer(context.Background(), userID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderTicketList(fmt.Sprintf("<b>Tickets of user %d</b>", userID), tickets))
}

func (b *Bot) handleSearchTickets(c tele.Context) error {
	keyword := strings.TrimSpace(strings.Join(c.Args(), " "))
	if keyword == "" {
		return c.Send("Usage: /searchtickets &lt;keyword&gt;")
	}
	return b.listTickets(c,
		fmt.Sprintf("<b>Tickets matching %q</b>", esc(keyword)),
		storage.TicketFilter{Keyword: keyword})
}

func (b *Bot) handleTicketsByDistrict(c tele.Context) error {
	input := strings.TrimSpace(strings.Join(c.Args(), " "))
	if input == "" {
		return c.Send("Usage: /ticketsbydistrict &lt;district&gt;")
	}
	district, ok := b.catalog.ResolveDistrict(input)
	if !ok {
		msg := "Unknown district."
		if hints := b.catalog.SuggestDistricts(input, 3); len(hints) > 0 {
			msg += " Did you mean: " + strings.Join(hints, ", ") + "?"
		}
		return c.Send(msg)
	}
	return b.listTickets(c,
		fmt.Sprintf("<b>Tickets in %s</b>", esc(district)),
		storage.TicketFilter{District: district})
}

func (b *Bot) handleTicketsByDate(c tele.Context) error {
	if len(c.Args()) == 0 {
		return c.Send("Usage: /ticketsbydate &lt;YYYY-MM-DD&gt;")
	}
	day, err := time.Parse("2006-01-02", c.Args()[0])
	if err != nil {
		return c.Send("Dates look like 2025-03-14.")
	}
	return b.listTickets(c,
		fmt.Sprintf("<b>Tickets from %s</b>", day.Format("02 Jan 2006")),
		storage.TicketFilter{CreatedOn: &day})
}

func (b *Bot) forceStatus(c tele.Context, next storage.TicketStatus, usage, okMsg string) error {
	if len(c.Args()) == 0 {
		return c.Send(usage)
	}
	id, err := parseID(c.Args()[0])
	if err != nil {
		return c.Send(usage)
	}
	actor := storage.Actor{ID: c.Sender().ID, Role: storage.RoleAdmin}
	if err := b.store.UpdateTicketStatus(context.Background(), id, next, actor); err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf(okMsg, id))
}

func (b *Bot) handleCompleteTicket(c tele.Context) error {
	return b.forceStatus(c, storage.StatusCompleted,
		"Usage: /completeticket &lt;ticket&gt;", "Ticket #%d marked completed.")
}

func (b *Bot) handleCancelTicketAdmin(c tele.Context) error {
	return b.forceStatus(c, storage.StatusCancelled,
		"Usage: /cancelticketadmin &lt;ticket&gt;", "Ticket #%d cancelled.")
}

func (b *Bot) handleBulkAssign(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /bulkassign &lt;tech&gt; &lt;ticket&gt; [ticket...]")
	}
	techID, err := parseID(args[0])
	if err != nil {
		return c.Send("Usage: /bulkassign &lt;tech&gt; &lt;ticket&gt; [ticket...]")
	}

	ctx := context.Background()
	var done, failed []string
	for _, raw := range args[1:] {
		id, err := parseID(raw)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: not a ticket number", raw))
			continue
		}
		if err := b.store.AssignTechnician(ctx, id, techID); err != nil {
			failed = append(failed, fmt.Sprintf("#%d: %s", id, err))
			continue
		}
		done = append(done, fmt.Sprintf("#%d", id))
	}
	if len(done) > 0 {
		b.notify(techID, fmt.Sprintf("You've got new jobs: %s. See /myjobs.", strings.Join(done, ", ")))
	}
	return c.Send(bulkReport("Assigned", done, failed))
}

func (b *Bot) handleBulkCancel(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /bulkcancel &lt;ticket&gt; [ticket...]")
	}

	ctx := context.Background()
	actor := storage.Actor{ID: c.Sender().ID, Role: storage.RoleAdmin}
	var done, failed []string
	for _, raw := range args {
		id, err := parseID(raw)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: not a ticket number", raw))
			continue
		}
		if err := b.store.UpdateTicketStatus(ctx, id, storage.StatusCancelled, actor); err != nil {
			failed = append(failed, fmt.Sprintf("#%d: %s", id, err))
			continue
		}
		done = append(done, fmt.Sprintf("#%d", id))
	}
	return c.Send(bulkReport("Cancelled", done, failed))
}

func bulkReport(verb string, done, failed []string) string {
	var sb strings.Builder
	if len(done) > 0 {
		fmt.Fprintf(&sb, "%s: %s", verb, strings.Join(done, ", "))
	}
	if len(failed) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Skipped:\n")
		sb.WriteString(esc(strings.Join(failed, "\n")))
	}
	if sb.Len() == 0 {
		return "Nothing to do."
	}
	return sb.String()
}

func (b *Bot) handleListTechs(c tele.Context) error {
	techs, err := b.store.Technicians(context.Background(), "")
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderTechnicianList("<b>All technicians</b>", techs))
}

// handlePendingApproval lists pending applications with decision buttons.
func (b *Bot) handlePendingApproval(c tele.Context) error {
	techs, err := b.store.Technicians(context.Background(), storage.TechPending)
	if err != nil {
		return c.Send(userMessage(err))
	}
	if len(techs) == 0 {
		return c.Send("No applications waiting.")
	}
	for i := range techs {
		t := &techs[i]
		payload := strconv.FormatInt(t.ID, 10)
		if err := c.Send(renderTechnician(t), inlineButtonsRows([]inlineBtn{
			{Text: "✅ Approve", Unique: cbApproveTech, Data: payload},
			{Text: "❌ Reject", Unique: cbRejectTech, Data: payload},
		})); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) decideTechnician(c tele.Context, techID int64, status storage.TechnicianStatus) error {
	ctx := context.Background()
	if err := b.store.SetTechnicianStatus(ctx, techID, status); err != nil {
		return c.Send(userMessage(err))
	}
	if status == storage.TechApproved {
		b.notify(techID, "You're approved! New jobs will show up under /myjobs.")
		return c.Send(fmt.Sprintf("Technician %d approved.", techID))
	}
	b.notify(techID, "Your technician application was rejected.")
	return c.Send(fmt.Sprintf("Technician %d rejected.", techID))
}

func (b *Bot) handleApproveTech(c tele.Context) error {
	return b.decideTechArg(c, storage.TechApproved, "Usage: /approvetech &lt;tech&gt;")
}

func (b *Bot) handleRejectTech(c tele.Context) error {
	return b.decideTechArg(c, storage.TechRejected, "Usage: /rejecttech &lt;tech&gt;")
}

func (b *Bot) decideTechArg(c tele.Context, status storage.TechnicianStatus, usage string) error {
	if len(c.Args()) == 0 {
		return c.Send(usage)
	}
	techID, err := parseID(c.Args()[0])
	if err != nil {
		return c.Send(usage)
	}
	return b.decideTechnician(c, techID, status)
}

func (b *Bot) handleFeedbacks(c tele.Context) error {
	fbs, err := b.store.Feedbacks(context.Background())
	if err != nil {
		return c.Send(userMessage(err))
	}
	if len(fbs) == 0 {
		return c.Send("No feedback yet.")
	}
	var parts []string
	for i := range fbs {
		parts = append(parts, renderFeedback(&fbs[i]))
	}
	return c.Send("<b>Feedback</b>\n\n" + strings.Join(parts, "\n\n"))
}

func (b *Bot) handleFeedbackByTicket(c tele.Context) error {
	if len(c.Args()) == 0 {
		return c.Send("Usage: /feedbackbyticket &lt;ticket&gt;")
	}
	id, err := parseID(c.Args()[0])
	if err != nil {
		return c.Send("Usage: /feedbackbyticket &lt;ticket&gt;")
	}
	fb, err := b.store.FeedbackForTicket(context.Background(), id)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderFeedback(fb))
}

func (b *Bot) handleStats(c tele.Context) error {
	stats, err := b.store.Stats(context.Background())
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderStats(stats))
}

func (b *Bot) handleTopTechs(c tele.Context) error {
	limit := 5
	if len(c.Args()) > 0 {
		if n, err := strconv.Atoi(c.Args()[0]); err == nil && n > 0 {
			limit = n
		}
	}
	top, err := b.store.TopTechnicians(context.Background(), limit)
	if err != nil {
		return c.Send(userMessage(err))
	}
	if len(top) == 0 {
		return c.Send("No completed jobs yet.")
	}
	var sb strings.Builder
	sb.WriteString("<b>Top technicians</b>\n")
	for i, tl := range top {
		fmt.Fprintf(&sb, "\n%d. %s - %d completed", i+1, esc(tl.Technician.Name), tl.Completed)
	}
	return c.Send(sb.String())
}

func (b *Bot) sendCSV(c tele.Context, name string, render func(*bytes.Buffer, *storage.Snapshot) error) error {
	snap, err := b.store.ExportAll(context.Background())
	if err != nil {
		return c.Send(userMessage(err))
	}
	var buf bytes.Buffer
	if err := render(&buf, snap); err != nil {
		return c.Send(userMessage(err))
	}
	fileName := fmt.Sprintf("%s-%s.csv", name, time.Now().Format("20060102"))

	// Keep a copy on disk when an export directory is configured.
	if dir := b.cfg.Export.Dir; dir != "" {
		path := filepath.Join(dir, fileName)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			logging.Bot.Warn("export copy failed",
				slog.String("event", "export.write"),
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
		}
	}

	doc := &tele.Document{
		File:     tele.FromReader(&buf),
		FileName: fileName,
	}
	return c.Send(doc)
}

func (b *Bot) handleExportTickets(c tele.Context) error {
	return b.sendCSV(c, "tickets", func(buf *bytes.Buffer, s *storage.Snapshot) error {
		return export.Tickets(buf, s.Tickets)
	})
}

func (b *Bot) handleExportTechs(c tele.Context) error {
	return b.sendCSV(c, "technicians", func(buf *bytes.Buffer, s *storage.Snapshot) error {
		return export.Technicians(buf, s.Technicians)
	})
}

func (b *Bot) handleExportFeedback(c tele.Context) error {
	return b.sendCSV(c, "feedback", func(buf *bytes.Buffer, s *storage.Snapshot) error {
		return export.Feedback(buf, s.Feedback)
	})
}
