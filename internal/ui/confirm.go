package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrNotInteractive is returned by Confirm when no terminal is attached and
// the caller did not pass assumeYes.
var ErrNotInteractive = errors.New("confirmation required: stdin is not a terminal (use --yes)")

// IsTerminal reports whether stdin and stdout are both terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Confirm asks a yes/no question. assumeYes skips the prompt. Without a
// terminal it refuses rather than guessing.
func Confirm(title, description string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !IsTerminal() {
		return false, ErrNotInteractive
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return ok, nil
}

// Option is one choice offered by Select.
type Option struct {
	Label string
	Value string
}

// Select asks the user to pick one option. Without a terminal it returns
// fallback.
func Select(title string, options []Option, fallback string) (string, error) {
	if !IsTerminal() || len(options) == 0 {
		return fallback, nil
	}

	opts := make([]huh.Option[string], 0, len(options))
	for _, o := range options {
		opts = append(opts, huh.NewOption(o.Label, o.Value))
	}

	choice := fallback
	err := huh.NewSelect[string]().
		Title(title).
		Options(opts...).
		Value(&choice).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", err
		}
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return choice, nil
}
