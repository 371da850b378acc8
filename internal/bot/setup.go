package bot

import (
	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/storage"
)

// setupCommands registers every command with its menu metadata.
func (b *Bot) setupCommands() {
	register := func(name, desc string, h tele.HandlerFunc) {
		b.registry.RegisterCommand(name, Command{Handler: h, Description: desc})
	}
	registerHidden := func(name, desc string, h tele.HandlerFunc) {
		b.registry.RegisterCommand(name, Command{Handler: h, Description: desc, Hidden: true})
	}
	registerAdmin := func(name, desc string, h tele.HandlerFunc) {
		b.registry.RegisterCommand(name, Command{Handler: h, Description: desc, AdminOnly: true})
	}

	register("/start", "start over", b.handleStart)
	register("/help", "list available commands", b.handleHelp)
	register("/book", "request an appliance repair", b.handleBook)
	register("/status", "your recent tickets", b.handleStatus)
	register("/mytickets", "all of your tickets", b.handleMyTickets)
	register("/cancelticket", "cancel an unassigned ticket", b.handleCancelTicket)
	register("/feedback", "rate a completed job", b.handleFeedback)
	register("/register", "apply as a technician", b.handleRegister)
	register("/cancel", "abort the current conversation", b.handleCancel)
	register("/back", "go one question back", b.handleBack)

	registerHidden("/myjobs", "your active jobs", b.handleMyJobs)
	registerHidden("/startjob", "mark a job in progress", b.handleStartJob)
	registerHidden("/finishjob", "mark a job completed", b.handleFinishJob)

	registerAdmin("/admin", "admin command overview", b.handleAdmin)
	registerAdmin("/assign", "assign a ticket", b.handleAssign)
	registerAdmin("/reassign", "move an assigned ticket", b.handleReassign)
	registerAdmin("/listall", "all tickets", b.handleListAll)
	registerAdmin("/listnew", "new tickets", b.handleListNew)
	registerAdmin("/listassigned", "assigned tickets", b.handleListAssigned)
	registerAdmin("/ticketdetails", "full ticket card", b.handleTicketDetails)
	registerAdmin("/userhistory", "a customer's tickets", b.handleUserHistory)
	registerAdmin("/searchtickets", "search tickets by keyword", b.handleSearchTickets)
	registerAdmin("/ticketsbydistrict", "tickets in a district", b.handleTicketsByDistrict)
	registerAdmin("/ticketsbydate", "tickets from a day", b.handleTicketsByDate)
	registerAdmin("/completeticket", "force-complete a ticket", b.handleCompleteTicket)
	registerAdmin("/cancelticketadmin", "force-cancel a ticket", b.handleCancelTicketAdmin)
	registerAdmin("/bulkassign", "assign several tickets", b.handleBulkAssign)
	registerAdmin("/bulkcancel", "cancel several tickets", b.handleBulkCancel)
	registerAdmin("/listtechs", "all technicians", b.handleListTechs)
	registerAdmin("/pendingapproval", "pending applications", b.handlePendingApproval)
	registerAdmin("/approvetech", "approve a technician", b.handleApproveTech)
	registerAdmin("/rejecttech", "reject a technician", b.handleRejectTech)
	registerAdmin("/feedbacks", "all feedback", b.handleFeedbacks)
	registerAdmin("/feedbackbyticket", "feedback for a ticket", b.handleFeedbackByTicket)
	registerAdmin("/stats", "service desk stats", b.handleStats)
	registerAdmin("/toptechs", "top technicians", b.handleTopTechs)
	registerAdmin("/exporttickets", "export tickets as CSV", b.handleExportTickets)
	registerAdmin("/exporttechs", "export technicians as CSV", b.handleExportTechs)
	registerAdmin("/exportfeedback", "export feedback as CSV", b.handleExportFeedback)
}

// setupCallbacks registers inline keyboard handlers.
func (b *Bot) setupCallbacks() {
	b.registry.RegisterCallback(cbApproveTech, b.adminCallback(func(c tele.Context) error {
		techID, err := payloadInt64(c)
		if err != nil {
			return c.Send("Broken callback payload.")
		}
		return b.decideTechnician(c, techID, storage.TechApproved)
	}))

	b.registry.RegisterCallback(cbRejectTech, b.adminCallback(func(c tele.Context) error {
		techID, err := payloadInt64(c)
		if err != nil {
			return c.Send("Broken callback payload.")
		}
		return b.decideTechnician(c, techID, storage.TechRejected)
	}))

	// assign_pick carries either a ticket id (open the technician picker)
	// or "ticket|tech" (perform the assignment).
	b.registry.RegisterCallback(cbAssignPick, b.adminCallback(func(c tele.Context) error {
		if ticketID, techID, err := payloadTwoInt64(c); err == nil {
			return b.assignTicket(c, ticketID, techID)
		}
		ticketID, err := payloadInt64(c)
		if err != nil {
			return c.Send("Broken callback payload.")
		}
		return b.sendTechnicianPicker(c, ticketID)
	}))

	b.registry.RegisterCallback(cbCancelTkt, func(c tele.Context) error {
		ticketID, err := payloadInt64(c)
		if err != nil {
			return c.Send("Broken callback payload.")
		}
		return b.cancelOwnTicket(c, ticketID)
	})

	b.registry.RegisterCallback(cbAbortFlow, b.handleAbortFlow)
	b.registry.RegisterCallback(cbResumeFlow, b.handleResumeFlow)
}

func (b *Bot) handleAbortFlow(c tele.Context) error {
	b.sessions.Cancel(c.Sender().ID)
	return c.Send("Conversation dropped. Send the command again.", removeKeyboard())
}

func (b *Bot) handleResumeFlow(c tele.Context) error {
	step, err := b.sessions.Current(c.Sender().ID)
	if err != nil {
		return c.Send("That conversation is gone. Start again with a command.")
	}
	return b.promptStep(c, step)
}

// adminCallback restricts a callback to the configured admin. Inline
// keyboards land in the admin chat, but the sender is still checked.
func (b *Bot) adminCallback(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || c.Sender().ID != b.cfg.Telegram.AdminID {
			return nil
		}
		return next(c)
	}
}
