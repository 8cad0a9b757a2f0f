package main

import (
	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/db"
	"github.com/dlcdb/dlcdb/pkg/jobs"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := db.Migrate(cmd.Context(), a.db, a.logger); err != nil {
			return err
		}
		if err := a.audits.AutoMigrate(); err != nil {
			return err
		}
		return jobs.NewJobStore(a.db).AutoMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
