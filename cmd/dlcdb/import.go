package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/importer"
)

var (
	importFormat string
	importWrite  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-import devices and records from a CSV file",
	Long: `Imports a CSV batch. Without --write the entire batch runs as a dry run:
every row is validated and merged inside a transaction that is rolled
back at the end, so the preview exercises the real code path.

Formats:
  internal  comma-separated CSV with the canonical column names
  sap       raw semicolon-separated SAP asset export (Windows-1252)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		imp := importer.NewImporter(a.db, a.engine, a.audits, a.logger)
		result, err := imp.Import(cmd.Context(), f, importer.Options{
			Format:   importer.Format(importFormat),
			Tenant:   tenant,
			Username: actor,
			Write:    importWrite,
		})
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(result)
		}
		if result.DryRun {
			fmt.Println("dry run, nothing written (pass --write to commit)")
		}
		for _, msg := range result.Messages {
			fmt.Println(msg)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", string(importer.FormatInternal), "Import format: internal, sap")
	importCmd.Flags().BoolVar(&importWrite, "write", false, "Commit the batch instead of previewing it")
	rootCmd.AddCommand(importCmd)
}
