package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/ai"
	"github.com/goalritual/goalritual/internal/ui"
)

func aiConfig(a *app) *ai.Config {
	return &ai.Config{
		MaxTokens: a.cfg.AI.MaxTokens,
		Timeout:   a.cfg.AI.Timeout,
		Logger:    a.logs.Logger("ai"),
	}
}

// newCompleter returns the configured completer, or nil with a logged
// warning when no API key is available.
func newCompleter(a *app) ai.Completer {
	c, err := ai.NewAnthropicCompleter(a.cfg.AI.APIKey, a.cfg.AI.Model)
	if err != nil {
		a.logger.Printf("Warning: AI disabled: %v", err)
		return nil
	}
	return c
}

var suggestCmd = &cobra.Command{
	Use:     "suggest <goal>",
	GroupID: "ai",
	Short:   "Suggest milestones for a goal",
	Long: `Ask the model for milestone ideas for a goal. Suggestions already
dismissed or matching an existing milestone are filtered out, and the result
is cached with the goal's data so it syncs to your other devices.

Requires ai.api_key in config.toml or ANTHROPIC_API_KEY.

Example usage:
  goalritual suggest marathon
  goalritual suggest marathon --count 5
  goalritual suggest marathon --cached
  goalritual suggest dismiss 0192f7c1`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		count, _ := cmd.Flags().GetInt("count")
		cached, _ := cmd.Flags().GetBool("cached")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		g, err := resolveGoal(loadGoals(ctx, a), args[0])
		if err != nil {
			a.fatalf("%v", err)
		}

		var completer ai.Completer
		if !cached {
			if completer = newCompleter(a); completer == nil {
				a.fatalf("AI is not configured (set ai.api_key or ANTHROPIC_API_KEY)")
			}
		}
		suggester := ai.NewSuggester(completer, a.local, aiConfig(a))

		suggestions := suggester.Cached(ctx, g.ID)
		if !cached {
			a.startAutoSync(ctx)
			fmt.Fprintln(cmd.ErrOrStderr(), ui.RenderMuted("Thinking..."))
			suggestions, err = suggester.Suggest(ctx, g, count)
			if err != nil {
				a.fatalf("%v", err)
			}
		}

		if jsonOutput {
			printJSON(suggestions)
			return
		}
		if len(suggestions) == 0 {
			fmt.Println("No new suggestions.")
			return
		}
		fmt.Println(ui.RenderHeader("Ideas for " + g.Title))
		for _, s := range suggestions {
			fmt.Printf("  %s %s\n", ui.RenderMuted(shortID(s.ID)), s.Text)
		}
		fmt.Println(ui.RenderMuted("\nAdd one with: goalritual milestone add <goal> \"<text>\""))
	},
}

var suggestDismissCmd = &cobra.Command{
	Use:   "dismiss <suggestion-id>",
	Short: "Dismiss a suggestion so it is not proposed again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp()
		defer a.Close()
		ctx := cmd.Context()
		a.startAutoSync(ctx)

		suggester := ai.NewSuggester(nil, a.local, aiConfig(a))
		id := args[0]
		if full := resolveSuggestionID(ctx, a, suggester, id); full != "" {
			id = full
		}
		s, err := suggester.Dismiss(ctx, id)
		if err != nil {
			a.fatalf("%v", err)
		}
		fmt.Printf("%s Dismissed %q\n", ui.RenderPass("✓"), s.Text)
	},
}

// resolveSuggestionID expands a unique id prefix from the suggestion cache.
func resolveSuggestionID(ctx context.Context, a *app, suggester *ai.Suggester, prefix string) string {
	match := ""
	for _, g := range loadGoals(ctx, a) {
		for _, s := range suggester.Cached(ctx, g.ID) {
			if strings.HasPrefix(s.ID, prefix) {
				if match != "" && match != s.ID {
					return ""
				}
				match = s.ID
			}
		}
	}
	return match
}

func init() {
	suggestCmd.Flags().IntP("count", "n", 3, "How many suggestions to ask for")
	suggestCmd.Flags().Bool("cached", false, "Show cached suggestions without calling the model")

	suggestCmd.AddCommand(suggestDismissCmd)
	rootCmd.AddCommand(suggestCmd)
}
