// Package removal implements the bulk decommissioning processor: a CSV of
// device identifiers is turned into terminal REMOVED records, all inside one
// all-or-nothing transaction.
package removal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/importer"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
	"github.com/dlcdb/dlcdb/pkg/audit"
	"github.com/dlcdb/dlcdb/pkg/tenancy"
)

// Options controls one removal run.
type Options struct {
	Tenant   string
	Username string
	// Write commits the batch; false runs the identical logic and rolls back.
	Write bool
}

// Result carries the aggregate outcome of one removal run.
type Result struct {
	RecordsCreated int
	DryRun         bool
	Messages       []string
}

var errDryRun = errors.New("dry-run rollback")

// knownDispositions is the vocabulary accepted in the DISPOSITION_STATE column.
var knownDispositions = map[string]bool{
	models.DispositionSold:      true,
	models.DispositionScrapped:  true,
	models.DispositionSurrender: true,
	models.DispositionStolen:    true,
	models.DispositionDuplicate: true,
	models.DispositionUnknown:   true,
}

// Processor applies bulk removal batches.
type Processor struct {
	db     *gorm.DB
	engine *lifecycle.Engine
	audits *audit.Store
	logger *slog.Logger
}

// NewProcessor creates a removal processor over the given database handle.
func NewProcessor(db *gorm.DB, engine *lifecycle.Engine, audits *audit.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{db: db, engine: engine, audits: audits, logger: logger}
}

// Process runs one removal batch. Every row must resolve to a device and pass
// the transition check; a single bad row rolls back the whole batch, so a
// partially removed batch is never observable. A row naming an already removed
// device fails the batch with the ID of the existing terminal record.
func (p *Processor) Process(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	if tc, ok := tenancy.TenantFromContext(ctx); ok {
		if opts.Tenant == "" {
			opts.Tenant = tc.Tenant
		}
		if opts.Username == "" {
			opts.Username = tc.Actor
		}
	}

	headers, rows, err := importer.ParseCSV(r)
	if err != nil {
		return nil, err
	}
	if err := importer.ValidateHeaders(headers, importer.RemovalHeaders); err != nil {
		return nil, err
	}

	result := &Result{}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		devices := service.NewDeviceRepository(tx)
		users := service.NewUserRepository(tx)
		engine := p.engine.WithTx(tx)

		// Every acting username in the batch must exist before any row runs.
		seen := map[string]bool{}
		for _, row := range rows {
			actor := rowActor(row, opts.Username)
			if actor == "" {
				return lifecycle.NewValidationError(importer.ColUsername, "no acting username given")
			}
			if seen[actor] {
				continue
			}
			if _, err := users.GetByUsername(ctx, actor); err != nil {
				return err
			}
			seen[actor] = true
		}

		for n, row := range rows {
			if err := p.removeOne(ctx, devices, engine, row, opts, result); err != nil {
				return fmt.Errorf("row %d: %w", n+1, err)
			}
		}

		result.Messages = append(result.Messages, fmt.Sprintf(
			"removal: %d records created", result.RecordsCreated))

		if err := p.audits.WithTx(tx).Record(&audit.Event{
			Tenant:       opts.Tenant,
			Actor:        opts.Username,
			Action:       audit.ActionRemovalRun,
			ResourceType: "removal",
			Message:      strings.Join(result.Messages, "; "),
			DryRun:       !opts.Write,
		}); err != nil {
			return err
		}

		if !opts.Write {
			return errDryRun
		}
		return nil
	})

	if errors.Is(err, errDryRun) {
		result.DryRun = true
		err = nil
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info("removal finished",
		"tenant", opts.Tenant,
		"actor", opts.Username,
		"dryRun", result.DryRun,
		"recordsCreated", result.RecordsCreated)
	return result, nil
}

// removeOne applies one removal row.
func (p *Processor) removeOne(ctx context.Context, devices *service.DeviceRepository, engine *lifecycle.Engine, row importer.Row, opts Options, result *Result) error {
	device, err := devices.GetByIdentifiers(ctx, row.Get(importer.ColEdvID), row.Get(importer.ColSapID))
	if err != nil {
		return err
	}

	state := strings.ToUpper(row.Get(importer.ColDispositionState))
	if state == "" {
		state = models.DispositionUnknown
	}
	if !knownDispositions[state] {
		return lifecycle.NewValidationError(importer.ColDispositionState,
			"unknown disposition state %q", row.Get(importer.ColDispositionState))
	}

	removedDate, err := parseRemovedDate(row.Get(importer.ColRemovedDate))
	if err != nil {
		return err
	}

	if _, err := engine.CreateRecord(ctx, device.UUID, rowActor(row, opts.Username), lifecycle.Removed{
		DispositionState: state,
		RemovedInfo:      row.Get(importer.ColRemovedInfo),
		RemovedDate:      removedDate,
		Note:             row.Get(importer.ColNote),
	}); err != nil {
		return err
	}
	result.RecordsCreated++
	return nil
}

// rowActor resolves the acting username for one row: the row's USERNAME
// column wins, the batch-level username is the fallback.
func rowActor(row importer.Row, fallback string) string {
	if actor := row.Get(importer.ColUsername); actor != "" {
		return actor
	}
	return fallback
}

// parseRemovedDate parses the REMOVED_DATE cell; an empty cell defaults to
// the current day.
func parseRemovedDate(s string) (*time.Time, error) {
	if s == "" {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		return &now, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, lifecycle.NewValidationError(importer.ColRemovedDate,
			"invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}
