package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/config"
	"github.com/goalritual/goalritual/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage config.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config.toml to the data directory",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path, err := config.WriteDefault(config.ResolveDataDir(dataDirFlag), force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if !force {
				fmt.Fprintf(os.Stderr, "Use --force to overwrite it.\n")
			}
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Println(ui.RenderMuted("Set the AI key with GOALRITUAL_AI_API_KEY or ANTHROPIC_API_KEY."))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(dataDirFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out, err := cfg.Encode()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if cfg.File() == "" {
			fmt.Println(ui.RenderMuted("# no config.toml found; built-in defaults and environment"))
		} else {
			fmt.Println(ui.RenderMuted("# " + cfg.File()))
		}
		fmt.Print(out)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config.toml")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
