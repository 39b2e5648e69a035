package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "send it to a@b.com or call +62 812 3456 7890"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
}

func TestRedactEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	in := "send it to a@b.com or call +62 812 3456 7890"
	got := Text(in)
	if got == in {
		t.Fatalf("expected redaction")
	}
	if want := "[REDACTED_EMAIL]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
	if want := "[REDACTED_PHONE]"; !strings.Contains(got, want) {
		t.Fatalf("expected %q in output", want)
	}
}

func TestRedactDictatedCardNumber(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Text("the card number is 4111 1111 1111 1111 thanks")
	if !strings.Contains(got, "[REDACTED_NUMBER]") {
		t.Fatalf("expected card run redacted, got %q", got)
	}
	if strings.Contains(got, "4111") {
		t.Fatalf("expected digits removed, got %q", got)
	}
}
