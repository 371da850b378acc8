package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/servicefix/fixbot/internal/refdata"
	"github.com/servicefix/fixbot/internal/session"
	"github.com/servicefix/fixbot/internal/storage"
)

// Flow names double as session registry keys.
const (
	flowBook     = "book"
	flowRegister = "register"
	flowFeedback = "feedback"
	flowAssign   = "assign"
)

// Answer keys inside flow data maps.
const (
	fieldAppliance = "appliance"
	fieldDistrict  = "district"
	fieldIssue     = "issue"
	fieldDetails   = "details"
	fieldName      = "name"
	fieldPhone     = "phone"
	fieldSkills    = "skills"
	fieldTicket    = "ticket"
	fieldRating    = "rating"
	fieldComment   = "comment"
	fieldTech      = "technician"
)

func applianceLabels() []string {
	apps := storage.Appliances()
	out := make([]string, len(apps))
	for i, a := range apps {
		out[i] = string(a)
	}
	return out
}

func validateAppliance(input string, _ map[string]string) (string, error) {
	a, ok := storage.ParseAppliance(input)
	if !ok {
		return "", session.NewInputError(
			"Pick one of: " + strings.Join(applianceLabels(), ", "))
	}
	return string(a), nil
}

func validateDistrict(catalog *refdata.Catalog) session.Validator {
	return func(input string, _ map[string]string) (string, error) {
		if name, ok := catalog.ResolveDistrict(input); ok {
			return name, nil
		}
		msg := "I don't know that district."
		if hints := catalog.SuggestDistricts(input, 3); len(hints) > 0 {
			msg += " Did you mean: " + strings.Join(hints, ", ") + "?"
		}
		return "", session.NewInputError(msg)
	}
}

func validateIssue(catalog *refdata.Catalog) session.Validator {
	return func(input string, data map[string]string) (string, error) {
		input = strings.TrimSpace(input)
		if input == "" {
			msg := "Tell me what's wrong in a few words."
			if hints := catalog.ComplaintTypes(data[fieldAppliance]); len(hints) > 0 {
				if len(hints) > 3 {
					hints = hints[:3]
				}
				msg += " For example: " + strings.Join(hints, ", ") + "."
			}
			return "", session.NewInputError(msg)
		}
		return input, nil
	}
}

func validatePhone(input string, _ map[string]string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, input)
	if len(digits) < 10 {
		return "", session.NewInputError("That phone number looks too short. Send at least 10 digits.")
	}
	return strings.TrimSpace(input), nil
}

func validateRating(input string, _ map[string]string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || storage.ValidateRating(n) != nil {
		return "", session.NewInputError(fmt.Sprintf(
			"Rate the job from %d to %d.", storage.RatingMin, storage.RatingMax))
	}
	return strconv.Itoa(n), nil
}

// bookingFlow walks a customer from appliance to a created ticket.
func (b *Bot) bookingFlow() *session.Flow {
	return &session.Flow{
		Name: flowBook,
		Steps: []session.Step{
			{
				Field:    fieldAppliance,
				Prompt:   "Which appliance needs repair?",
				Options:  applianceLabels(),
				Validate: validateAppliance,
			},
			{
				Field:    fieldDistrict,
				Prompt:   "Which district are you in?",
				Options:  b.catalog.Districts(),
				Validate: validateDistrict(b.catalog),
			},
			{
				Field:    fieldIssue,
				Prompt:   "Describe the problem in a few words.",
				Validate: validateIssue(b.catalog),
			},
			{
				Field:    fieldDetails,
				Prompt:   "Anything else the technician should know? Send /skip if not.",
				Optional: true,
			},
		},
		Finalize: b.finishBooking,
	}
}

func (b *Bot) finishBooking(userID int64, data map[string]string) error {
	ctx := context.Background()
	t, err := b.store.CreateTicket(ctx, storage.TicketInput{
		CustomerID:  userID,
		Appliance:   storage.Appliance(data[fieldAppliance]),
		District:    data[fieldDistrict],
		Issue:       data[fieldIssue],
		Description: data[fieldDetails],
	})
	if err != nil {
		b.notify(userID, userMessage(err))
		return err
	}
	b.notify(userID, fmt.Sprintf(
		"Your request is in. Ticket <b>#%d</b>.\nUse /status to track it.", t.ID))
	b.notifyAdmin(fmt.Sprintf("New ticket:\n\n%s", renderTicket(t)),
		inlineButtons([]inlineBtn{
			{Text: "Assign technician", Unique: cbAssignPick, Data: strconv.FormatInt(t.ID, 10)},
		}))
	return nil
}

// registerFlow signs a technician up for admin approval.
func (b *Bot) registerFlow() *session.Flow {
	return &session.Flow{
		Name: flowRegister,
		Steps: []session.Step{
			{Field: fieldName, Prompt: "What's your full name?"},
			{Field: fieldPhone, Prompt: "Your contact phone number?", Validate: validatePhone},
			{
				Field:   fieldSkills,
				Prompt:  "Which appliances do you service? (free text)",
				Options: applianceLabels(),
			},
		},
		Finalize: b.finishRegistration,
	}
}

func (b *Bot) finishRegistration(userID int64, data map[string]string) error {
	ctx := context.Background()
	tech, err := b.store.RegisterTechnician(ctx, userID,
		data[fieldName], data[fieldPhone], data[fieldSkills])
	if err != nil {
		b.notify(userID, userMessage(err))
		return err
	}
	b.notify(userID, "Thanks! Your application is waiting for approval.")
	b.notifyAdmin(fmt.Sprintf("Technician application:\n\n%s", renderTechnician(tech)),
		inlineButtonsRows([]inlineBtn{
			{Text: "✅ Approve", Unique: cbApproveTech, Data: strconv.FormatInt(userID, 10)},
			{Text: "❌ Reject", Unique: cbRejectTech, Data: strconv.FormatInt(userID, 10)},
		}))
	return nil
}

// assignFlow walks the admin from a new ticket to an approved technician.
func (b *Bot) assignFlow() *session.Flow {
	return &session.Flow{
		Name: flowAssign,
		Steps: []session.Step{
			{
				Field:    fieldTicket,
				Prompt:   "Which ticket number should be assigned?",
				Validate: b.validateAssignTicket,
			},
			{
				Field:    fieldTech,
				Prompt:   "Who takes it? Send the technician's id (see /listtechs).",
				Validate: b.validateAssignTech,
			},
		},
		Finalize: b.finishAssign,
	}
}

func (b *Bot) validateAssignTicket(input string, _ map[string]string) (string, error) {
	id, err := parseID(strings.TrimSpace(input))
	if err != nil {
		return "", session.NewInputError("Send the ticket number, like 42.")
	}
	t, err := b.store.Ticket(context.Background(), id)
	if err != nil {
		return "", session.NewInputError(fmt.Sprintf("I can't find ticket #%d.", id))
	}
	if t.Status != storage.StatusNew {
		return "", session.NewInputError(fmt.Sprintf(
			"Ticket #%d is already %s, only new tickets can be assigned.", id, t.Status))
	}
	return strconv.FormatInt(id, 10), nil
}

func (b *Bot) validateAssignTech(input string, _ map[string]string) (string, error) {
	id, err := parseID(strings.TrimSpace(input))
	if err != nil {
		return "", session.NewInputError("Send the technician's numeric id.")
	}
	tech, err := b.store.Technician(context.Background(), id)
	if err != nil {
		return "", session.NewInputError(fmt.Sprintf(
			"I don't know technician %d. Try /listtechs.", id))
	}
	if tech.Status != storage.TechApproved {
		return "", session.NewInputError(fmt.Sprintf("%s isn't approved yet.", tech.Name))
	}
	return strconv.FormatInt(id, 10), nil
}

func (b *Bot) finishAssign(userID int64, data map[string]string) error {
	ctx := context.Background()
	ticketID, _ := strconv.ParseInt(data[fieldTicket], 10, 64)
	techID, _ := strconv.ParseInt(data[fieldTech], 10, 64)

	if err := b.store.AssignTechnician(ctx, ticketID, techID); err != nil {
		b.notify(userID, userMessage(err))
		return err
	}
	if t, err := b.store.Ticket(ctx, ticketID); err == nil {
		b.notify(techID, fmt.Sprintf("You've got a new job:\n\n%s", renderTicket(t)))
		b.notify(t.CustomerID, fmt.Sprintf(
			"A technician was assigned to your ticket <b>#%d</b>.", ticketID))
	}
	b.notify(userID, fmt.Sprintf("Ticket #%d assigned to technician %d.", ticketID, techID))
	return nil
}

// feedbackFlow collects a rating for one of the user's completed tickets.
func (b *Bot) feedbackFlow() *session.Flow {
	return &session.Flow{
		Name: flowFeedback,
		Steps: []session.Step{
			{
				Field:    fieldTicket,
				Prompt:   "Which ticket number is this about?",
				Validate: b.validateFeedbackTicket,
			},
			{
				Field:    fieldRating,
				Prompt:   "How was the job? Rate 1 to 5.",
				Options:  []string{"1", "2", "3", "4", "5"},
				Validate: validateRating,
			},
			{
				Field:    fieldComment,
				Prompt:   "Any comments? Send /skip if not.",
				Optional: true,
			},
		},
		Finalize: b.finishFeedback,
	}
}

func (b *Bot) validateFeedbackTicket(input string, _ map[string]string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(input), "#"), 10, 64)
	if err != nil {
		return "", session.NewInputError("Send the ticket number, like 42.")
	}
	t, err := b.store.Ticket(context.Background(), id)
	if err != nil {
		return "", session.NewInputError(fmt.Sprintf("I can't find ticket #%d.", id))
	}
	if t.Status != storage.StatusCompleted {
		return "", session.NewInputError(fmt.Sprintf(
			"Ticket #%d isn't completed yet, so it can't be rated.", id))
	}
	return strconv.FormatInt(id, 10), nil
}

func (b *Bot) finishFeedback(userID int64, data map[string]string) error {
	ctx := context.Background()
	ticketID, _ := strconv.ParseInt(data[fieldTicket], 10, 64)
	rating, _ := strconv.Atoi(data[fieldRating])

	t, err := b.store.Ticket(ctx, ticketID)
	if err != nil {
		b.notify(userID, userMessage(err))
		return err
	}
	if t.CustomerID != userID {
		err := storage.NewError(storage.KindUnauthorized, "ticket #%d belongs to someone else", ticketID)
		b.notify(userID, userMessage(err))
		return err
	}

	fb, err := b.store.RecordFeedback(ctx, ticketID, rating, data[fieldComment])
	if err != nil {
		b.notify(userID, userMessage(err))
		return err
	}
	b.notify(userID, "Thank you for the feedback!")
	b.notifyAdmin("New feedback:\n\n" + renderFeedback(fb))
	return nil
}
