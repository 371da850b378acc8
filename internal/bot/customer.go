package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/storage"
)

func (b *Bot) handleStart(c tele.Context) error {
	b.sessions.Cancel(c.Sender().ID)
	return c.Send("Welcome to the appliance repair desk!\n\n" +
		"/book - request a repair\n" +
		"/status - check your tickets\n" +
		"/feedback - rate a finished job\n" +
		"/register - join as a technician\n" +
		"/help - everything else")
}

func (b *Bot) handleHelp(c tele.Context) error {
	role := resolveRole(context.Background(), b.store, b.cfg.Telegram.AdminID, c.Sender().ID)

	var sb strings.Builder
	sb.WriteString("<b>Customer commands</b>\n")
	sb.WriteString("/book - open a repair ticket\n")
	sb.WriteString("/status - your recent tickets\n")
	sb.WriteString("/mytickets - all of your tickets\n")
	sb.WriteString("/cancelticket - cancel a ticket that hasn't been assigned\n")
	sb.WriteString("/feedback - rate a completed job\n")
	sb.WriteString("/register - apply as a technician\n")
	sb.WriteString("/cancel - abort the current conversation\n")
	sb.WriteString("/back - go one question back\n")

	if role == storage.RoleTechnician {
		sb.WriteString("\n<b>Technician commands</b>\n")
		sb.WriteString("/myjobs - your active jobs\n")
		sb.WriteString("/startjob - mark a job in progress\n")
		sb.WriteString("/finishjob - mark a job completed\n")
	}
	if role == storage.RoleAdmin {
		sb.WriteString("\n<b>Admin</b>\n")
		sb.WriteString("/admin - admin command overview\n")
	}
	return c.Send(sb.String())
}

func (b *Bot) handleBook(c tele.Context) error {
	return b.startFlow(c, flowBook)
}

func (b *Bot) handleStatus(c tele.Context) error {
	tickets, err := b.store.TicketsForCustomer(context.Background(), c.Sender().ID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	if len(tickets) > 5 {
		tickets = tickets[:5]
	}
	return c.Send(renderTicketList("<b>Your recent tickets</b>", tickets))
}

func (b *Bot) handleMyTickets(c tele.Context) error {
	tickets, err := b.store.TicketsForCustomer(context.Background(), c.Sender().ID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderTicketList("<b>All your tickets</b>", tickets))
}

// handleCancelTicket cancels one of the sender's New tickets. With no
// argument it offers the cancellable tickets as inline buttons.
func (b *Bot) handleCancelTicket(c tele.Context) error {
	ctx := context.Background()

	if len(c.Args()) > 0 {
		id, err := parseID(c.Args()[0])
		if err != nil {
			return c.Send("Send the ticket number, like /cancelticket 42.")
		}
		return b.cancelOwnTicket(c, id)
	}

	tickets, err := b.store.TicketsForCustomer(ctx, c.Sender().ID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	var buttons []inlineBtn
	for i := range tickets {
		t := &tickets[i]
		if t.Status != storage.StatusNew {
			continue
		}
		buttons = append(buttons, inlineBtn{
			Text:   renderTicketLine(t),
			Unique: cbCancelTkt,
			Data:   strconv.FormatInt(t.ID, 10),
		})
	}
	if len(buttons) == 0 {
		return c.Send("You have no tickets that can still be cancelled.")
	}
	return c.Send("Which ticket do you want to cancel?", inlineButtons(buttons))
}

func (b *Bot) cancelOwnTicket(c tele.Context, ticketID int64) error {
	ctx := context.Background()
	err := b.store.UpdateTicketStatus(ctx, ticketID, storage.StatusCancelled,
		storage.Actor{ID: c.Sender().ID, Role: storage.RoleCustomer})
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(fmt.Sprintf("Ticket #%d cancelled.", ticketID))
}

func (b *Bot) handleFeedback(c tele.Context) error {
	return b.startFlow(c, flowFeedback)
}

func (b *Bot) handleCancel(c tele.Context) error {
	if b.sessions.Cancel(c.Sender().ID) {
		return c.Send("Okay, conversation dropped.", removeKeyboard())
	}
	return c.Send("Nothing to cancel.")
}

func (b *Bot) handleBack(c tele.Context) error {
	step, err := b.sessions.Back(c.Sender().ID)
	if err != nil {
		return c.Send("There's no conversation to step back in.")
	}
	return b.promptStep(c, step)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
}
