// Package importer implements bulk CSV import of devices and records: header
// validation, SAP export cleaning, reference-data pre-creation and the
// tenant-scoped merge rules, all inside one all-or-nothing transaction.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
	"github.com/dlcdb/dlcdb/pkg/audit"
	"github.com/dlcdb/dlcdb/pkg/cache"
	"github.com/dlcdb/dlcdb/pkg/tenancy"
)

// Format selects the import source format.
type Format string

const (
	// FormatInternal is the internal CSV format with explicit typed columns.
	FormatInternal Format = "internal"
	// FormatSAP is the raw multi-tenant SAP asset export, cleaned before import.
	FormatSAP Format = "sap"
)

// Options controls one import run.
type Options struct {
	Format   Format
	Tenant   string
	Username string
	// Write commits the batch. When false the identical logic runs inside a
	// transaction that is always rolled back (import preview).
	Write bool
}

// Result carries the aggregate outcome of one import run.
type Result struct {
	DevicesCreated int
	DevicesSkipped int
	RecordsCreated int
	DryRun         bool
	Messages       []string
}

// errDryRun forces the batch transaction to roll back after a dry run.
var errDryRun = errors.New("dry-run rollback")

// Importer reconciles external CSV rows into devices and records.
type Importer struct {
	db     *gorm.DB
	engine *lifecycle.Engine
	audits *audit.Store
	refIDs *cache.Cache[uint]
	logger *slog.Logger
}

// NewImporter creates an importer over the given database handle.
func NewImporter(db *gorm.DB, engine *lifecycle.Engine, audits *audit.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		db:     db,
		engine: engine,
		audits: audits,
		refIDs: cache.New[uint](4096, 15*time.Minute),
		logger: logger,
	}
}

// Import runs one batch. Validation, reference-data resolution and the row
// merge all happen inside the same transaction, so any failure rolls back the
// entire batch; partial application is never observable.
func (i *Importer) Import(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	if tc, ok := tenancy.TenantFromContext(ctx); ok {
		if opts.Tenant == "" {
			opts.Tenant = tc.Tenant
		}
		if opts.Username == "" {
			opts.Username = tc.Actor
		}
	}

	if opts.Format == FormatSAP {
		cleaned, err := CleanSAP(r, opts.Tenant)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(cleaned)
	}

	headers, rows, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	if err := ValidateHeaders(headers, InternalHeaders); err != nil {
		return nil, err
	}

	result := &Result{}
	resolved := map[string]uint{}

	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := service.NewUserRepository(tx).GetByUsername(ctx, opts.Username); err != nil {
			return err
		}

		refs, err := i.resolveReferences(ctx, tx, rows, resolved)
		if err != nil {
			return err
		}

		for n, row := range rows {
			if err := i.mergeRow(ctx, tx, row, opts, refs, result); err != nil {
				return fmt.Errorf("row %d: %w", n+1, err)
			}
		}

		result.Messages = append(result.Messages, fmt.Sprintf(
			"%s import: %d devices created, %d skipped, %d records created",
			formatName(opts.Format), result.DevicesCreated, result.DevicesSkipped, result.RecordsCreated))

		if err := i.audits.WithTx(tx).Record(&audit.Event{
			Tenant:       opts.Tenant,
			Actor:        opts.Username,
			Action:       audit.ActionImportRun,
			ResourceType: "import",
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

	if opts.Write {
		// Only committed reference rows may enter the cache.
		for key, id := range resolved {
			i.refIDs.Set(key, id)
		}
	}

	i.logger.Info("import finished",
		"format", opts.Format,
		"tenant", opts.Tenant,
		"actor", opts.Username,
		"dryRun", result.DryRun,
		"devicesCreated", result.DevicesCreated,
		"devicesSkipped", result.DevicesSkipped,
		"recordsCreated", result.RecordsCreated)
	return result, nil
}

// references holds the pre-resolved FK IDs for one batch, keyed by
// lower-cased name.
type references struct {
	suppliers     map[string]uint
	manufacturers map[string]uint
	deviceTypes   map[string]uint
	rooms         map[string]uint
}

// resolveReferences scans all rows once and get-or-creates every distinct
// referenced supplier, manufacturer, device type and room before any device
// is created, so duplicate creation cannot depend on row order.
func (i *Importer) resolveReferences(ctx context.Context, tx *gorm.DB, rows []Row, resolved map[string]uint) (*references, error) {
	refRepo := service.NewRefDataRepository(tx)
	roomRepo := service.NewRoomRepository(tx)

	refs := &references{
		suppliers:     map[string]uint{},
		manufacturers: map[string]uint{},
		deviceTypes:   map[string]uint{},
		rooms:         map[string]uint{},
	}

	resolve := func(kind, name string, create func(context.Context, string) (uint, error), dest map[string]uint) error {
		if name == "" {
			return nil
		}
		key := kind + ":" + strings.ToLower(name)
		if _, ok := dest[strings.ToLower(name)]; ok {
			return nil
		}
		if id, ok := i.refIDs.Get(key); ok {
			dest[strings.ToLower(name)] = id
			return nil
		}
		id, err := create(ctx, name)
		if err != nil {
			return err
		}
		dest[strings.ToLower(name)] = id
		resolved[key] = id
		return nil
	}

	for _, row := range rows {
		if err := resolve("supplier", row.Get(ColSupplier), refRepo.GetOrCreateSupplier, refs.suppliers); err != nil {
			return nil, err
		}
		if err := resolve("manufacturer", row.Get(ColManufacturer), refRepo.GetOrCreateManufacturer, refs.manufacturers); err != nil {
			return nil, err
		}
		if err := resolve("devicetype", row.Get(ColDeviceType), refRepo.GetOrCreateDeviceType, refs.deviceTypes); err != nil {
			return nil, err
		}
		if number := row.Get(ColRoom); number != "" {
			if _, ok := refs.rooms[strings.ToLower(number)]; !ok {
				room, err := roomRepo.GetOrCreateByNumber(ctx, number)
				if err != nil {
					return nil, err
				}
				refs.rooms[strings.ToLower(number)] = room.ID
			}
		}
	}
	return refs, nil
}

// mergeRow applies one row according to the format's merge rules.
func (i *Importer) mergeRow(ctx context.Context, tx *gorm.DB, row Row, opts Options, refs *references, result *Result) error {
	devices := service.NewDeviceRepository(tx)
	engine := i.engine.WithTx(tx)

	device, err := buildDevice(row, opts.Tenant, refs)
	if err != nil {
		return err
	}

	if opts.Format == FormatInternal || device.SapID == nil {
		if err := i.createDevice(ctx, devices, device, result); err != nil {
			return err
		}
		return i.createRowRecord(ctx, engine, device, row, opts, refs, result)
	}

	// SAP merge: the SAP-ID is the cross-tenant stable identity.
	existing, err := devices.GetBySapID(ctx, *device.SapID)
	switch {
	case err == nil && existing.Tenant != device.Tenant:
		// Another tenant owns this asset; this batch is not authoritative.
		result.DevicesSkipped++
		return nil
	case err == nil:
		// Same tenant: refresh the record only. Device attributes entered
		// here are considered more authoritative than periodic SAP
		// re-exports, so they stay untouched. Removed devices are not
		// resurrected by a re-export.
		active, aerr := engine.GetActiveRecord(ctx, existing.UUID)
		if aerr != nil {
			return aerr
		}
		if active != nil && active.Type == models.RecordRemoved {
			result.DevicesSkipped++
			return nil
		}
		return i.createRowRecord(ctx, engine, existing, row, opts, refs, result)
	case errors.Is(err, service.ErrDeviceNotFound):
		if err := i.createDevice(ctx, devices, device, result); err != nil {
			return err
		}
		return i.createRowRecord(ctx, engine, device, row, opts, refs, result)
	default:
		return err
	}
}

// createDevice inserts a new device. An EDV-ID already held by another device
// (deleted ones included) never fails the import; the ID is disambiguated with
// a suffix and the rename is reported in the batch messages.
func (i *Importer) createDevice(ctx context.Context, devices *service.DeviceRepository, device *models.Device, result *Result) error {
	if device.EdvID != nil {
		taken, err := devices.EdvIDExists(ctx, *device.EdvID)
		if err != nil {
			return err
		}
		if taken {
			suffixed := *device.EdvID + "-" + uuid.NewString()[:8]
			result.Messages = append(result.Messages, fmt.Sprintf(
				"edv-id collision, %s renamed to %s", *device.EdvID, suffixed))
			device.EdvID = &suffixed
		}
	}
	if err := devices.Create(ctx, device); err != nil {
		return err
	}
	result.DevicesCreated++
	return nil
}

// createRowRecord creates the record described by the row's RECORD_TYPE
// column, if any, through the lifecycle engine.
func (i *Importer) createRowRecord(ctx context.Context, engine *lifecycle.Engine, device *models.Device, row Row, opts Options, refs *references, result *Result) error {
	spec, err := rowRecordSpec(row, refs)
	if err != nil {
		return err
	}
	if spec == nil {
		return nil
	}
	if _, err := engine.CreateRecord(ctx, device.UUID, opts.Username, spec); err != nil {
		return err
	}
	result.RecordsCreated++
	return nil
}

// rowRecordSpec derives the typed record creation path from the RECORD_TYPE
// column. Rows without a usable kind produce no record. LENT is not importable
// in bulk: loans need a person and dates the CSV contract does not carry.
func rowRecordSpec(row Row, refs *references) (lifecycle.RecordSpec, error) {
	kind := models.RecordType(strings.ToUpper(row.Get(ColRecordType)))
	if kind == "" {
		// Infer from the room column when the type column is absent.
		if row.Get(ColRoom) != "" {
			kind = models.RecordInRoom
		} else {
			return nil, nil
		}
	}

	switch kind {
	case models.RecordInRoom:
		roomID, ok := refs.rooms[strings.ToLower(row.Get(ColRoom))]
		if !ok {
			return nil, lifecycle.NewValidationError(ColRoom, "an in-room record needs a room")
		}
		return lifecycle.InRoom{RoomID: roomID, Note: row.Get(ColNote)}, nil
	case models.RecordOrdered:
		date, err := parseISODate(ColPurchaseDate, row.Get(ColPurchaseDate))
		if err != nil {
			return nil, err
		}
		return lifecycle.Ordered{DateOfPurchase: date, Note: row.Get(ColNote)}, nil
	case models.RecordLost:
		return lifecycle.Lost{Note: row.Get(ColNote)}, nil
	case models.RecordRemoved:
		date, err := parseISODate(ColRemovedDate, row.Get(ColRemovedDate))
		if err != nil {
			return nil, err
		}
		return lifecycle.Removed{
			DispositionState: models.DispositionUnknown,
			RemovedInfo:      row.Get(ColNote),
			RemovedDate:      date,
		}, nil
	case models.RecordLent:
		return nil, lifecycle.NewValidationError(ColRecordType, "LENT records cannot be created by bulk import")
	default:
		return nil, lifecycle.NewValidationError(ColRecordType, "unknown record type %q", row.Get(ColRecordType))
	}
}

// buildDevice constructs the in-memory device for one row without saving it.
func buildDevice(row Row, fallbackTenant string, refs *references) (*models.Device, error) {
	tenant := row.Get(ColTenant)
	if tenant == "" {
		tenant = fallbackTenant
	}

	purchase, err := parseISODate(ColPurchaseDate, row.Get(ColPurchaseDate))
	if err != nil {
		return nil, err
	}
	warranty, err := parseISODate(ColWarrantyExpiration, row.Get(ColWarrantyExpiration))
	if err != nil {
		return nil, err
	}
	maintenance, err := parseISODate(ColMaintenanceExpiration, row.Get(ColMaintenanceExpiration))
	if err != nil {
		return nil, err
	}

	device := &models.Device{
		UUID:                              uuid.NewString(),
		Tenant:                            tenant,
		EdvID:                             nullable(row.Get(ColEdvID)),
		SapID:                             nullable(row.Get(ColSapID)),
		Series:                            row.Get(ColSeries),
		SerialNumber:                      row.Get(ColSerialNumber),
		NickName:                          row.Get(ColNickName),
		MacAddress:                        row.Get(ColMacAddress),
		ExtraMacAddresses:                 row.Get(ColExtraMacAddresses),
		CostCentre:                        row.Get(ColCostCentre),
		BookValue:                         row.Get(ColBookValue),
		PurchaseDate:                      purchase,
		WarrantyExpirationDate:            warranty,
		MaintenanceContractExpirationDate: maintenance,
		IsLentable:                        parseTruth(row.Get(ColIsLentable)),
		IsLicence:                         parseTruth(row.Get(ColIsLicence)),
	}

	if name := row.Get(ColSupplier); name != "" {
		if id, ok := refs.suppliers[strings.ToLower(name)]; ok {
			device.SupplierID = &id
		}
	}
	if name := row.Get(ColManufacturer); name != "" {
		if id, ok := refs.manufacturers[strings.ToLower(name)]; ok {
			device.ManufacturerID = &id
		}
	}
	if name := row.Get(ColDeviceType); name != "" {
		if id, ok := refs.deviceTypes[strings.ToLower(name)]; ok {
			device.DeviceTypeID = &id
		}
	}
	return device, nil
}
