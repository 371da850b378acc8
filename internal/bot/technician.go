package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/servicefix/fixbot/internal/storage"
)

func (b *Bot) handleRegister(c tele.Context) error {
	ctx := context.Background()
	if tech, err := b.store.Technician(ctx, c.Sender().ID); err == nil {
		switch tech.Status {
		case storage.TechApproved:
			return c.Send("You are already registered and approved.")
		case storage.TechPending:
			return c.Send("Your application is still waiting for approval.")
		case storage.TechRejected:
			return c.Send("Your previous application was rejected. Contact the administrator.")
		}
	}
	return b.startFlow(c, flowRegister)
}

func (b *Bot) requireTechnician(c tele.Context) (*storage.Technician, error) {
	tech, err := b.store.Technician(context.Background(), c.Sender().ID)
	if err != nil || tech.Status != storage.TechApproved {
		return nil, c.Send("This command is for approved technicians. Use /register to apply.")
	}
	return tech, nil
}

func (b *Bot) handleMyJobs(c tele.Context) error {
	if _, err := b.requireTechnician(c); err != nil {
		return err
	}
	jobs, err := b.store.TicketsForTechnician(context.Background(), c.Sender().ID)
	if err != nil {
		return c.Send(userMessage(err))
	}
	return c.Send(renderTicketList("<b>Your active jobs</b>", jobs))
}

func (b *Bot) handleStartJob(c tele.Context) error {
	return b.moveOwnJob(c, storage.StatusInProgress, "Job #%d is now in progress.")
}

func (b *Bot) handleFinishJob(c tele.Context) error {
	return b.moveOwnJob(c, storage.StatusCompleted, "Job #%d marked completed. Nice work!")
}

// moveOwnJob advances one of the technician's jobs and pings the customer
// when the work is done.
func (b *Bot) moveOwnJob(c tele.Context, next storage.TicketStatus, doneMsg string) error {
	if _, err := b.requireTechnician(c); err != nil {
		return err
	}
	if len(c.Args()) == 0 {
		return c.Send("Which job? Send the ticket number, like /startjob 42.")
	}
	id, err := parseID(c.Args()[0])
	if err != nil {
		return c.Send("Send the ticket number, like 42.")
	}

	ctx := context.Background()
	actor := storage.Actor{ID: c.Sender().ID, Role: storage.RoleTechnician}
	if err := b.store.UpdateTicketStatus(ctx, id, next, actor); err != nil {
		return c.Send(userMessage(err))
	}

	if next == storage.StatusCompleted {
		if t, err := b.store.Ticket(ctx, id); err == nil {
			b.notify(t.CustomerID, fmt.Sprintf(
				"Your repair (ticket <b>#%d</b>) is done. Use /feedback to rate the job.", id))
		}
	}
	return c.Send(fmt.Sprintf(doneMsg, id))
}
