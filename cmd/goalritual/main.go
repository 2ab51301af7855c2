// Command goalritual tracks goals, milestones and habits in a local store and
// keeps them in sync across devices through a per-user remote snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/ui"
)

var (
	dataDirFlag string
	assumeYes   bool
	noColor     bool
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "goalritual",
	Short: "Local-first goal tracking with cross-device sync",
	Long: `goalritual keeps goals, milestones, recurring habits, daily to-dos and a
journal in a local database. When you are logged in, every change is pushed
to a remote snapshot so your other devices can pull or merge it.

Data lives in ~/.goalritual by default (override with --data-dir or
GOALRITUAL_DATA_DIR). Settings are read from config.toml in that directory
and from GOALRITUAL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.DisableColor()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "goals", Title: "Goals:"},
		&cobra.Group{ID: "habits", Title: "Habits and notes:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "ai", Title: "AI:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.goalritual)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to confirmation prompts")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON where supported")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
