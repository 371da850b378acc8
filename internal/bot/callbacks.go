package bot

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques used by inline keyboards across the bot.
const (
	cbApproveTech = "approve_tech"
	cbRejectTech  = "reject_tech"
	cbAssignPick  = "assign_pick"
	cbCancelTkt   = "cancel_ticket"
	cbAbortFlow   = "abort_flow"
	cbResumeFlow  = "resume_flow"
)

// parseCallback parses Telebot's \f<unique>|<payload> encoding. Unique may
// also be present on the callback itself depending on how it arrived.
func parseCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	parts := strings.SplitN(raw, "|", 2)
	unique := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload
}

// payloadInt64 parses a callback payload holding a single id.
func payloadInt64(c tele.Context) (int64, error) {
	_, payload := parseCallback(c.Callback())
	return strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
}

// payloadTwoInt64 parses a "<a>|<b>" payload into two ids.
func payloadTwoInt64(c tele.Context) (int64, int64, error) {
	_, payload := parseCallback(c.Callback())
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 {
		return 0, 0, strconv.ErrSyntax
	}
	a, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// pairPayload encodes two ids for payloadTwoInt64.
func pairPayload(a, b int64) string {
	return strconv.FormatInt(a, 10) + "|" + strconv.FormatInt(b, 10)
}
