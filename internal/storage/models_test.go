package storage

import "testing"

func TestTicketTransitions(t *testing.T) {
	allowed := map[[2]TicketStatus]bool{
		{StatusNew, StatusAssigned}:                true,
		{StatusNew, StatusCancelled}:               true,
		{StatusAssigned, StatusInProgress}:         true,
		{StatusAssigned, StatusCancelled}:          true,
		{StatusInProgress, StatusCompleted}:        true,
		{StatusCompleted, StatusClosedWithFeedback}: true,
	}
	statuses := []TicketStatus{
		StatusNew, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusClosedWithFeedback, StatusCancelled,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]TicketStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTicketStatusTerminal(t *testing.T) {
	terminal := map[TicketStatus]bool{
		StatusClosedWithFeedback: true,
		StatusCancelled:          true,
	}
	for _, s := range []TicketStatus{
		StatusNew, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusClosedWithFeedback, StatusCancelled,
	} {
		if got := s.Terminal(); got != terminal[s] {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, terminal[s])
		}
	}
	if TicketStatus("bogus").Valid() {
		t.Error("bogus status reported as valid")
	}
}

func TestParseAppliance(t *testing.T) {
	cases := []struct {
		in   string
		want Appliance
		ok   bool
	}{
		{"AC", ApplianceAC, true},
		{"ac", ApplianceAC, true},
		{"  Fridge ", ApplianceFridge, true},
		{"washing machine", ApplianceWashingMachine, true},
		{"Other", ApplianceOther, true},
		{"Microwave", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseAppliance(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseAppliance(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

type districtSet map[string]bool

func (d districtSet) IsDistrict(input string) bool { return d[input] }

func TestValidateTicketInput(t *testing.T) {
	districts := districtSet{"Central": true}
	valid := TicketInput{
		CustomerID: 100,
		Appliance:  ApplianceAC,
		District:   "Central",
		Issue:      "Not cooling",
	}
	if err := ValidateTicketInput(valid, districts); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TicketInput)
	}{
		{"missing customer", func(in *TicketInput) { in.CustomerID = 0 }},
		{"unknown appliance", func(in *TicketInput) { in.Appliance = "Toaster" }},
		{"blank issue", func(in *TicketInput) { in.Issue = "   " }},
		{"unknown district", func(in *TicketInput) { in.District = "Atlantis" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in := valid
			c.mutate(&in)
			err := ValidateTicketInput(in, districts)
			if !IsKind(err, KindValidation) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestAuthorizeStatusChange(t *testing.T) {
	newTicket := func(status TicketStatus, techID int64) *Ticket {
		tk := &Ticket{ID: 1, CustomerID: 100, Status: status}
		if techID != 0 {
			tk.TechnicianID.Valid = true
			tk.TechnicianID.Int64 = techID
		}
		return tk
	}

	cases := []struct {
		name   string
		ticket *Ticket
		next   TicketStatus
		actor  Actor
		ok     bool
	}{
		{"admin anything", newTicket(StatusAssigned, 200), StatusCancelled, Actor{1, RoleAdmin}, true},
		{"customer cancels own new", newTicket(StatusNew, 0), StatusCancelled, Actor{100, RoleCustomer}, true},
		{"customer cancels foreign", newTicket(StatusNew, 0), StatusCancelled, Actor{101, RoleCustomer}, false},
		{"customer cancels assigned", newTicket(StatusAssigned, 200), StatusCancelled, Actor{100, RoleCustomer}, false},
		{"customer completes", newTicket(StatusInProgress, 200), StatusCompleted, Actor{100, RoleCustomer}, false},
		{"assigned technician", newTicket(StatusAssigned, 200), StatusInProgress, Actor{200, RoleTechnician}, true},
		{"other technician", newTicket(StatusAssigned, 200), StatusInProgress, Actor{201, RoleTechnician}, false},
		{"unassigned technician", newTicket(StatusNew, 0), StatusCancelled, Actor{200, RoleTechnician}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := AuthorizeStatusChange(c.ticket, c.next, c.actor)
			if c.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !c.ok && !IsKind(err, KindUnauthorized) {
				t.Errorf("got %v, want authorization error", err)
			}
		})
	}
}

func TestValidateRating(t *testing.T) {
	for _, r := range []int{1, 3, 5} {
		if err := ValidateRating(r); err != nil {
			t.Errorf("ValidateRating(%d) = %v, want nil", r, err)
		}
	}
	for _, r := range []int{0, -1, 6, 42} {
		if err := ValidateRating(r); !IsKind(err, KindValidation) {
			t.Errorf("ValidateRating(%d) = %v, want validation error", r, err)
		}
	}
}
