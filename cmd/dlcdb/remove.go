package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/removal"
)

var removeWrite bool

var removeCmd = &cobra.Command{
	Use:   "remove <file>",
	Short: "Bulk-decommission devices from a CSV file",
	Long: `Creates a terminal REMOVED record for every device named in the CSV.
A row naming an unknown device or an already removed device fails the
whole batch. Without --write the batch runs as a dry run.`,
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

		proc := removal.NewProcessor(a.db, a.engine, a.audits, a.logger)
		result, err := proc.Process(cmd.Context(), f, removal.Options{
			Tenant:   tenant,
			Username: actor,
			Write:    removeWrite,
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
	removeCmd.Flags().BoolVar(&removeWrite, "write", false, "Commit the batch instead of previewing it")
	rootCmd.AddCommand(removeCmd)
}
