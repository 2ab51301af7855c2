// Package ui renders terminal output for the goalritual CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color palette
var (
	ColorAccent = lipgloss.Color("#7D56F4")
	ColorPass   = lipgloss.Color("#25A065")
	ColorWarn   = lipgloss.Color("#E5C07B")
	ColorFail   = lipgloss.Color("#E05252")
	ColorMuted  = lipgloss.Color("#626262")
)

var (
	renderer *lipgloss.Renderer

	accentStyle lipgloss.Style
	passStyle   lipgloss.Style
	warnStyle   lipgloss.Style
	failStyle   lipgloss.Style
	mutedStyle  lipgloss.Style
	boldStyle   lipgloss.Style
	headerStyle lipgloss.Style
)

func init() {
	SetOutput(os.Stdout, detectProfile(os.Stdout))
}

// detectProfile honors NO_COLOR and the terminal's reported capabilities.
func detectProfile(w io.Writer) termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}

// SetOutput rebuilds the styles for w using profile. termenv.Ascii disables
// color entirely.
func SetOutput(w io.Writer, profile termenv.Profile) {
	renderer = lipgloss.NewRenderer(w, termenv.WithProfile(profile))

	accentStyle = renderer.NewStyle().Foreground(ColorAccent)
	passStyle = renderer.NewStyle().Foreground(ColorPass)
	warnStyle = renderer.NewStyle().Foreground(ColorWarn)
	failStyle = renderer.NewStyle().Foreground(ColorFail)
	mutedStyle = renderer.NewStyle().Foreground(ColorMuted)
	boldStyle = renderer.NewStyle().Bold(true)
	headerStyle = renderer.NewStyle().Bold(true).Foreground(ColorAccent)
}

// DisableColor switches to plain output.
func DisableColor() {
	SetOutput(os.Stdout, termenv.Ascii)
}

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders s as a success.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders s as a warning.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders s as a failure.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders s de-emphasized.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderBold renders s in bold.
func RenderBold(s string) string { return boldStyle.Render(s) }

// RenderHeader renders a section header.
func RenderHeader(s string) string { return headerStyle.Render(s) }

// ProgressBar draws pct (0-100) as a bar of width cells followed by the
// percentage, e.g. "█████░░░░░  50%".
func ProgressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if width <= 0 {
		width = 10
	}
	filled := pct * width / 100

	style := accentStyle
	if pct == 100 {
		style = passStyle
	}
	bar := style.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3d%%", bar, pct)
}
