package bot

import (
	"errors"
	"strings"
	"testing"

	"github.com/servicefix/fixbot/internal/storage"
)

func TestUserMessageDistinguishesKinds(t *testing.T) {
	kinds := []storage.Kind{
		storage.KindValidation,
		storage.KindNotFound,
		storage.KindIllegalTransition,
		storage.KindUnauthorized,
		storage.KindDuplicate,
		storage.KindState,
	}
	seen := make(map[string]storage.Kind)
	for _, k := range kinds {
		msg := userMessage(storage.NewError(k, "detail"))
		if msg == "" {
			t.Errorf("empty message for kind %s", k)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("kinds %s and %s map to the same message %q", prev, k, msg)
		}
		seen[msg] = k
	}
}

func TestUserMessageHidesInternalErrors(t *testing.T) {
	msg := userMessage(errors.New("pq: connection refused"))
	if strings.Contains(msg, "pq:") {
		t.Errorf("internal detail leaked: %q", msg)
	}
	if msg == "" {
		t.Error("empty fallback message")
	}
}

func TestUserMessageNil(t *testing.T) {
	if got := userMessage(nil); got != "" {
		t.Errorf("userMessage(nil) = %q, want empty", got)
	}
}
