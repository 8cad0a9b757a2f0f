package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
	"github.com/dlcdb/dlcdb/pkg/audit"
	"github.com/dlcdb/dlcdb/pkg/tenancy"
)

var (
	dbType    string
	dbDSN     string
	tenant    string
	actor     string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "dlcdb",
	Short: "Device lifecycle database",
	Long: `dlcdb tracks devices through their lifecycle as an append-only record
history: ordered, in a room, lent, lost, removed. Bulk imports, bulk
removals and inventory verification all run as atomic batches.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		mode := tenancy.Mode(envOr("DLCDB_TENANCY_MODE", string(tenancy.ModeMulti)))
		tc, err := tenancy.NewResolver(mode).Resolve(tenant)
		if err != nil {
			return err
		}
		tc.Actor = actor
		tenant = tc.Tenant
		cmd.SetContext(tenancy.WithTenant(cmd.Context(), tc))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbType, "db-type", envOr("DLCDB_DB_TYPE", "sqlite"), "Database type: postgres, mysql, sqlite")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", os.Getenv("DLCDB_DB_DSN"), "Database DSN (sqlite defaults to dlcdb.db)")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", envOr("DLCDB_TENANT", tenancy.DefaultTenant), "Tenant the operation runs in")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", os.Getenv("DLCDB_ACTOR"), "Acting username recorded on created records")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// app bundles the shared service handles behind every subcommand.
type app struct {
	db     *gorm.DB
	engine *lifecycle.Engine
	audits *audit.Store
	logger *slog.Logger
}

// newApp connects to the database and wires the service layer. Tenant
// resolution has already happened in the root command's PersistentPreRunE.
// The schema is not migrated here; run "dlcdb migrate" once per deployment.
func newApp() (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	gormDB, err := db.Connect(dbType, dbDSN)
	if err != nil {
		return nil, err
	}

	return &app{
		db:     gormDB,
		engine: lifecycle.NewEngine(gormDB, lifecycle.ConfigFromEnv(), logger),
		audits: audit.NewStore(gormDB),
		logger: logger,
	}, nil
}
