package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/importer"
	"github.com/dlcdb/dlcdb/pkg/jobs"
)

var (
	jobFormat   string
	jobIdempKey string
	jobState    string
	jobLimit    int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled import jobs",
}

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue <file>",
	Short: "Queue a CSV file for import by the worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		job, err := jobs.NewJobStore(a.db).Enqueue(&jobs.ImportJob{
			Tenant:         tenant,
			Format:         jobFormat,
			PayloadPath:    path,
			RequestedBy:    actor,
			IdempotencyKey: jobIdempKey,
		})
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(job)
		}
		cmd.Printf("queued job %s\n", job.ID)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		list, _, _, err := jobs.NewJobStore(a.db).List(jobs.JobListFilter{
			Tenant: tenant,
			State:  jobState,
		}, jobLimit, "")
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(list)
		}

		rows := make([][]string, 0, len(list))
		for _, j := range list {
			rows = append(rows, []string{
				j.ID,
				j.Format,
				string(j.State),
				j.RequestedBy,
				j.RequestedAt.Format(time.RFC3339),
				orDash(j.Message),
			})
		}
		printTable([]string{"id", "format", "state", "requested-by", "requested-at", "message"}, rows)
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return jobs.NewJobStore(a.db).Cancel(args[0])
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the import job worker pool until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		imp := importer.NewImporter(a.db, a.engine, a.audits, a.logger)
		pool := jobs.NewWorkerPool(jobs.NewJobStore(a.db), imp, jobs.JobConfigFromEnv(), a.logger)
		pool.Run(cmd.Context())
		return nil
	},
}

func init() {
	jobsEnqueueCmd.Flags().StringVar(&jobFormat, "format", string(importer.FormatInternal), "Import format: internal, sap")
	jobsEnqueueCmd.Flags().StringVar(&jobIdempKey, "idempotency-key", "", "Dedupe key; reuses a queued job with the same key")
	jobsListCmd.Flags().StringVar(&jobState, "state", "", "Filter by state (queued, running, succeeded, failed, canceled)")
	jobsListCmd.Flags().IntVar(&jobLimit, "limit", 20, "Maximum number of jobs to list")

	jobsCmd.AddCommand(jobsEnqueueCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(workerCmd)
}
