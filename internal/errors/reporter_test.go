package errors

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestErrorString(t *testing.T) {
	err := New(ErrorUnterminatedBlock, "transfer", "block 2 has no terminator")
	want := "error[E0801]: transfer: block 2 has no terminator"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestErrorStringWithoutFunction(t *testing.T) {
	err := New(ErrorBadManifest, "", "contract name is missing")
	want := "error[E1001]: contract name is missing"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestWarningLevel(t *testing.T) {
	err := NewWarning(ErrorUndefinedRead, "f", "msg")
	if err.Level != Warning {
		t.Errorf("expected warning level, got %s", err.Level)
	}
}

func TestFormatLocatesBlock(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	r := NewReporter("Token")
	out := r.Format(New(ErrorUndefinedRead, "transfer", "variable x is read before any assignment reaches it").
		InBlock(3).
		WithNote("no definition flows in from block 1"))

	for _, want := range []string{
		"error[E0901]:",
		"Token::transfer block3",
		"note: no definition flows in from block 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatWithoutLocation(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	r := NewReporter("Token")
	out := r.Format(New(ErrorBadManifest, "", "unknown target"))

	if !strings.Contains(out, "--> Token\n") {
		t.Errorf("expected bare contract location:\n%s", out)
	}
	if strings.Contains(out, "block") {
		t.Errorf("unexpected block location:\n%s", out)
	}
}
