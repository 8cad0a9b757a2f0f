package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/pkg/audit"
)

var (
	auditAction string
	auditActor  string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List audit events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		events, err := a.audits.List(audit.ListFilter{
			Tenant: tenant,
			Actor:  auditActor,
			Action: auditAction,
		}, auditLimit)
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(events)
		}

		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			dryRun := ""
			if ev.DryRun {
				dryRun = "dry-run"
			}
			rows = append(rows, []string{
				ev.CreatedAt.Format(time.RFC3339),
				ev.Action,
				ev.Actor,
				orDash(dryRun),
				orDash(ev.Message),
			})
		}
		printTable([]string{"time", "action", "actor", "mode", "message"}, rows)
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action name")
	auditCmd.Flags().StringVar(&auditActor, "by", "", "Filter by acting username")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of events to list")
	rootCmd.AddCommand(auditCmd)
}
