package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"
)

func TestPlainRendering(t *testing.T) {
	SetOutput(&bytes.Buffer{}, termenv.Ascii)

	for _, render := range []func(string) string{
		RenderAccent, RenderPass, RenderWarn, RenderFail, RenderMuted, RenderBold, RenderHeader,
	} {
		if got := render("ok"); got != "ok" {
			t.Errorf("expected plain text without color, got %q", got)
		}
	}
}

func TestColorRendering(t *testing.T) {
	SetOutput(&bytes.Buffer{}, termenv.TrueColor)
	defer SetOutput(&bytes.Buffer{}, termenv.Ascii)

	if got := RenderPass("ok"); got == "ok" || !strings.Contains(got, "ok") {
		t.Errorf("expected escape codes around text, got %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	SetOutput(&bytes.Buffer{}, termenv.Ascii)

	tests := []struct {
		pct   int
		width int
		want  string
	}{
		{0, 10, "░░░░░░░░░░   0%"},
		{50, 10, "█████░░░░░  50%"},
		{100, 4, "████ 100%"},
		{150, 4, "████ 100%"},
		{-5, 4, "░░░░   0%"},
		{33, 0, "███░░░░░░░  33%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.pct, tt.width); got != tt.want {
			t.Errorf("ProgressBar(%d, %d) = %q, want %q", tt.pct, tt.width, got, tt.want)
		}
	}
}

func TestConfirmAssumeYes(t *testing.T) {
	ok, err := Confirm("Delete?", "", true)
	if err != nil || !ok {
		t.Errorf("expected assumeYes to confirm, got %v, %v", ok, err)
	}
}

func TestSelectWithoutTerminalReturnsFallback(t *testing.T) {
	if IsTerminal() {
		t.Skip("requires a non-interactive stdin")
	}
	got, err := Select("Pick", []Option{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}}, "b")
	if err != nil || got != "b" {
		t.Errorf("expected fallback %q, got %q, %v", "b", got, err)
	}
}
