package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/goalritual/goalritual/internal/transfer"
	"github.com/goalritual/goalritual/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "advanced",
	Short:   "Export every dataset to a JSON or YAML file",
	Long: `Export every dataset into one document. Without a file the document is
written to stdout. The format follows the file extension (.yaml/.yml for
YAML) unless --format is given.

Example usage:
  goalritual export backup.json
  goalritual export --format yaml > backup.yaml`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		formatFlag, _ := cmd.Flags().GetString("format")

		a := openApp()
		defer a.Close()

		format, err := transfer.ParseFormat(formatFlag)
		if err != nil {
			a.fatalf("%v", err)
		}
		if formatFlag == "" && len(args) == 1 {
			format = transfer.FormatForPath(args[0])
		}

		data, err := transfer.Export(cmd.Context(), a.local, format, time.Now())
		if err != nil {
			a.fatalf("%v", err)
		}

		if len(args) == 0 {
			if _, err := os.Stdout.Write(data); err != nil {
				a.fatalf("failed to write export: %v", err)
			}
			return
		}
		if err := os.WriteFile(args[0], data, 0600); err != nil {
			a.fatalf("failed to write %s: %v", args[0], err)
		}
		fmt.Fprintf(os.Stderr, "%s Exported to %s\n", ui.RenderPass("✓"), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import an export document",
	Long: `Import a document written by export. Datasets present and non-empty in
the file replace the local ones; everything else is kept. The file is fully
validated before anything is written.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		formatFlag, _ := cmd.Flags().GetString("format")

		a := openApp()
		defer a.Close()
		ctx := cmd.Context()

		format := transfer.FormatForPath(args[0])
		if formatFlag != "" {
			f, err := transfer.ParseFormat(formatFlag)
			if err != nil {
				a.fatalf("%v", err)
			}
			format = f
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			a.fatalf("failed to read %s: %v", args[0], err)
		}
		doc, err := transfer.Parse(data, format)
		if err != nil {
			a.fatalf("%v", err)
		}

		desc := fmt.Sprintf("%d goals, %d datasets", len(doc.Goals), len(doc.Fields))
		if doc.ExportedAt != "" {
			desc += ", exported " + doc.ExportedAt
		}
		ok, err := ui.Confirm("Import "+args[0]+"?", desc+". Matching local datasets will be replaced.", assumeYes)
		if err != nil {
			a.fatalf("%v", err)
		}
		if !ok {
			fmt.Println("Cancelled.")
			return
		}

		a.startAutoSync(ctx)
		res, err := transfer.Apply(ctx, a.local, doc)
		if err != nil {
			a.fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(res)
			return
		}
		fmt.Printf("%s Imported %d datasets (%d kept as they were)\n", ui.RenderPass("✓"), len(res.Written), len(res.Kept))
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "", "json or yaml")
	importCmd.Flags().StringP("format", "f", "", "json or yaml (default from extension)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
