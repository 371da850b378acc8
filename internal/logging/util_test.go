package logging

import (
	"testing"
	"time"
)

func TestSanitizeStripsControlRunes(t *testing.T) {
	in := "hello\x00 world\x1b[0m\ttab"
	got := Sanitize(in)
	want := "hello world[0m\ttab"
	if got != want {
		t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
	}
}

func TestSanitizeLimitTruncatesRunes(t *testing.T) {
	if got := SanitizeLimit("абвгд", 3); got != "абв" {
		t.Fatalf("SanitizeLimit = %q, want %q", got, "абв")
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("SanitizeLimit with max=0 = %q, want empty", got)
	}
}

func TestRoundMS(t *testing.T) {
	if got := RoundMS(1500 * time.Microsecond); got != 2*time.Millisecond {
		t.Fatalf("RoundMS = %v, want 2ms", got)
	}
	if got := RoundMS(-time.Second); got != 0 {
		t.Fatalf("RoundMS negative = %v, want 0", got)
	}
}
