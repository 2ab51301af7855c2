package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/benchmark"
	"github.com/goalritual/goalritual/internal/config"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure local write and sync latency",
	Long: `Run a synthetic benchmark in a throwaway directory.

Goals are seeded into a temporary local store, concurrent writers update
them, then the snapshot is pushed, merged and pulled. By default the remote
is a temporary sqlite file; --remote uses the configured sync backend under a
separate benchmark identity, leaving your own data alone.

Example usage:
  goalritual bench
  goalritual bench --goals 500 --writers 16
  goalritual bench --remote --pushes 20`,
	Run: func(cmd *cobra.Command, args []string) {
		goals, _ := cmd.Flags().GetInt("goals")
		milestones, _ := cmd.Flags().GetInt("milestones")
		writers, _ := cmd.Flags().GetInt("writers")
		writes, _ := cmd.Flags().GetInt("writes")
		pushes, _ := cmd.Flags().GetInt("pushes")
		useRemote, _ := cmd.Flags().GetBool("remote")

		bc := benchmark.Config{
			Goals:             goals,
			MilestonesPerGoal: milestones,
			Writers:           writers,
			WritesPerWriter:   writes,
			Pushes:            pushes,
		}

		if useRemote {
			cfg, err := config.Load(dataDirFlag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			bc.Remote = cfg.Remote()

			logs := config.OpenLogs(cfg.Log, cfg.DataDir)
			defer func() { _ = logs.Close() }()
			bc.Logger = logs.Logger("bench")
		}

		fmt.Fprintf(os.Stderr, "Running benchmark (%d goals, %d writers)...\n", goals, writers)
		result, err := benchmark.Run(cmd.Context(), bc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: benchmark failed: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			result.Write.Durations = nil
			result.Push.Durations = nil
			result.Config.Remote.DSN, result.Config.Remote.AuthToken = "", ""
			printJSON(result)
			return
		}
		benchmark.PrintResult(os.Stdout, result)
		if !result.Success {
			os.Exit(1)
		}
	},
}

func init() {
	def := benchmark.DefaultConfig()
	benchCmd.Flags().Int("goals", def.Goals, "Goals to seed")
	benchCmd.Flags().Int("milestones", def.MilestonesPerGoal, "Milestones per goal")
	benchCmd.Flags().Int("writers", def.Writers, "Concurrent local writers")
	benchCmd.Flags().Int("writes", def.WritesPerWriter, "Writes per writer")
	benchCmd.Flags().Int("pushes", def.Pushes, "Timed snapshot pushes")
	benchCmd.Flags().Bool("remote", false, "Sync against the configured backend instead of a temp file")

	rootCmd.AddCommand(benchCmd)
}
