package bot

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallback(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		unique  string
		payload string
	}{
		{"nil", nil, "", ""},
		{"unique set", &tele.Callback{Unique: "approve_tech", Data: "200"}, "approve_tech", "200"},
		{"encoded", &tele.Callback{Data: "\fassign_pick|42|200"}, "assign_pick", "42|200"},
		{"escaped encoding", &tele.Callback{Data: "\\fcancel_ticket|42"}, "cancel_ticket", "42"},
		{"no payload", &tele.Callback{Data: "\fabort_flow"}, "abort_flow", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			unique, payload := parseCallback(c.cb)
			if unique != c.unique || payload != c.payload {
				t.Errorf("parseCallback = (%q, %q), want (%q, %q)", unique, payload, c.unique, c.payload)
			}
		})
	}
}

func TestPairPayloadRoundTrip(t *testing.T) {
	cb := &tele.Callback{Data: "\fassign_pick|" + pairPayload(42, 200)}
	unique, payload := parseCallback(cb)
	if unique != "assign_pick" {
		t.Fatalf("unique = %q", unique)
	}
	if payload != "42|200" {
		t.Fatalf("payload = %q", payload)
	}
}
