// Package lifecycle implements the record state machine for devices: typed
// record creation, the single-active-record invariant, the legal transition
// table, and the copy-transition used by inventory verification.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
)

// Engine creates records and maintains the device→active-record pointer.
// Each creation runs in one atomic transaction: deactivate every prior record
// for the device, insert the new one, repoint the device.
type Engine struct {
	db     *gorm.DB
	rooms  *service.RoomRepository
	people *service.PersonRepository
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates a lifecycle engine over the given database handle.
func NewEngine(db *gorm.DB, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:     db,
		rooms:  service.NewRoomRepository(db),
		people: service.NewPersonRepository(db),
		cfg:    cfg,
		logger: logger,
	}
}

// WithTx returns an engine bound to the given transaction handle, so batch
// operations can compose record creation into their own transaction.
func (e *Engine) WithTx(tx *gorm.DB) *Engine {
	return &Engine{
		db:     tx,
		rooms:  e.rooms.WithTx(tx),
		people: e.people.WithTx(tx),
		cfg:    e.cfg,
		logger: e.logger,
	}
}

// GetActiveRecord returns the device's single active record, or nil when the
// device has no record yet.
func (e *Engine) GetActiveRecord(ctx context.Context, deviceUUID string) (*models.Record, error) {
	var rec models.Record
	err := e.db.WithContext(ctx).
		First(&rec, "device_uuid = ? AND is_active = ?", deviceUUID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateRecord creates a record of the given kind for the device, enforcing
// the transition table and kind-specific validation. On success exactly one
// record for the device is active: the returned one.
func (e *Engine) CreateRecord(ctx context.Context, deviceUUID, actor string, spec RecordSpec) (*models.Record, error) {
	now := time.Now().UTC()
	if err := spec.validate(e.cfg, now); err != nil {
		return nil, err
	}

	var created *models.Record
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := loadDevice(ctx, tx, deviceUUID)
		if err != nil {
			return err
		}

		active, err := e.WithTx(tx).GetActiveRecord(ctx, deviceUUID)
		if err != nil {
			return err
		}

		if err := checkTransition(device, active, spec.Kind()); err != nil {
			return err
		}

		rec := &models.Record{
			DeviceUUID: deviceUUID,
			Type:       spec.Kind(),
			IsActive:   true,
			CreatedAt:  now,
			CreatedBy:  actor,
		}
		spec.populate(rec)

		if err := insertActive(ctx, tx, device, rec, now); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("record created",
		"device", deviceUUID,
		"kind", created.Type,
		"recordID", created.ID,
		"actor", actor)
	return created, nil
}

// Return closes the device's active loan and creates a fresh in-room record.
// The loan's end date is the only in-place mutation; the return itself is a
// new record, never a converted one. When roomID is nil the single
// auto-return room is used.
func (e *Engine) Return(ctx context.Context, deviceUUID, actor string, roomID *uint, note string) (*models.Record, error) {
	now := time.Now().UTC()

	var created *models.Record
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := loadDevice(ctx, tx, deviceUUID)
		if err != nil {
			return err
		}

		active, err := e.WithTx(tx).GetActiveRecord(ctx, deviceUUID)
		if err != nil {
			return err
		}
		if active == nil || active.Type != models.RecordLent {
			return NewValidationError("record_type", "device %s has no active loan to return", deviceUUID)
		}

		target := roomID
		if target == nil {
			room, err := e.rooms.WithTx(tx).AutoReturnRoom(ctx)
			if err != nil {
				return err
			}
			target = &room.ID
		}

		if err := tx.Model(&models.Record{}).Where("id = ?", active.ID).
			Update("lent_end_date", now).Error; err != nil {
			return fmt.Errorf("closing loan: %w", err)
		}

		rec := &models.Record{
			DeviceUUID: deviceUUID,
			Type:       models.RecordInRoom,
			IsActive:   true,
			CreatedAt:  now,
			CreatedBy:  actor,
			RoomID:     target,
			Note:       note,
		}
		if err := insertActive(ctx, tx, device, rec, now); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan returned", "device", deviceUUID, "recordID", created.ID, "actor", actor)
	return created, nil
}

// ExtendLoan moves the desired end date of the device's active loan. This is
// the one sanctioned in-place mutation besides closing the loan on return.
func (e *Engine) ExtendLoan(ctx context.Context, deviceUUID string, newDesiredEnd time.Time) error {
	now := time.Now().UTC()
	maxFuture := now.AddDate(0, 0, e.cfg.MaxLentFutureDays)
	if newDesiredEnd.After(maxFuture) {
		return NewValidationError("lent_desired_end_date", "desired end date %s lies beyond the allowed horizon of %d days",
			newDesiredEnd.Format(time.DateOnly), e.cfg.MaxLentFutureDays)
	}

	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := e.WithTx(tx).GetActiveRecord(ctx, deviceUUID)
		if err != nil {
			return err
		}
		if active == nil || active.Type != models.RecordLent {
			return NewValidationError("record_type", "device %s has no active loan to extend", deviceUUID)
		}
		if active.LentStartDate != nil && newDesiredEnd.Before(*active.LentStartDate) {
			return NewValidationError("lent_desired_end_date", "desired end date lies before the loan start date")
		}
		return tx.Model(&models.Record{}).Where("id = ?", active.ID).
			Update("lent_desired_end_date", newDesiredEnd).Error
	})
}

// CloneTransition reconfirms the device's current situation in a new room:
// the active record's scalar fields are cloned into a fresh row, reassigned
// to the given room, campaign and actor, and inserted as the new active
// record. Cloning out of LOST clears the lost note; cloning out of REMOVED
// clears the disposition fields; both flip the kind to INROOM, as does
// cloning an ORDERED record (the walk-through proves receipt). A LENT or
// INROOM source keeps its kind.
func (e *Engine) CloneTransition(ctx context.Context, deviceUUID, actor string, roomID uint, inventoryID *uint) (*models.Record, error) {
	now := time.Now().UTC()

	var created *models.Record
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := loadDevice(ctx, tx, deviceUUID)
		if err != nil {
			return err
		}

		active, err := e.WithTx(tx).GetActiveRecord(ctx, deviceUUID)
		if err != nil {
			return err
		}
		if active == nil {
			return NewValidationError("record", "device %s has no record to reconfirm", deviceUUID)
		}

		clone := active.CloneForTransition()
		switch active.Type {
		case models.RecordLost:
			clone.Type = models.RecordInRoom
			clone.Note = ""
		case models.RecordRemoved:
			clone.Type = models.RecordInRoom
			clone.DispositionState = ""
			clone.RemovedInfo = ""
			clone.RemovedDate = nil
		case models.RecordOrdered:
			clone.Type = models.RecordInRoom
		}
		clone.RoomID = &roomID
		clone.InventoryID = inventoryID
		clone.CreatedBy = actor
		clone.CreatedAt = now
		clone.IsActive = true

		if err := insertActive(ctx, tx, device, clone, now); err != nil {
			return err
		}
		created = clone
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("record reconfirmed",
		"device", deviceUUID,
		"kind", created.Type,
		"recordID", created.ID,
		"actor", actor)
	return created, nil
}

// LendingWarnings returns human-readable warnings for a prospective loan,
// currently the contract-expiry-vs-due-date check against the person's
// mirrored directory data.
func (e *Engine) LendingWarnings(ctx context.Context, personID uint, desiredEnd time.Time) ([]string, error) {
	person, err := e.people.GetByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	var warnings []string
	if person.ContractExpiresBefore(desiredEnd) {
		warnings = append(warnings, fmt.Sprintf(
			"contract of %s %s ends %s, before the desired loan end date %s",
			person.FirstName, person.LastName,
			person.ContractEndDate.Format(time.DateOnly),
			desiredEnd.Format(time.DateOnly)))
	}
	return warnings, nil
}

// loadDevice fetches the device inside the transaction and rejects
// soft-deleted devices.
func loadDevice(ctx context.Context, tx *gorm.DB, deviceUUID string) (*models.Device, error) {
	var device models.Device
	err := tx.WithContext(ctx).First(&device, "uuid = ?", deviceUUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("device %q: %w", deviceUUID, service.ErrDeviceNotFound)
	}
	if err != nil {
		return nil, err
	}
	if device.IsDeleted() {
		return nil, fmt.Errorf("device %q: %w", deviceUUID, ErrDeviceDeleted)
	}
	return &device, nil
}

// checkTransition enforces the transition table plus the two gate rules that
// sit outside it: removal is terminal, and lending additionally requires the
// device's is_lentable flag.
func checkTransition(device *models.Device, active *models.Record, to models.RecordType) error {
	var from *models.RecordType
	if active != nil {
		from = &active.Type
	}

	if to == models.RecordRemoved && from != nil && *from == models.RecordRemoved {
		return fmt.Errorf("device %s, record %d: %w", device.UUID, active.ID, ErrAlreadyRemoved)
	}
	if to == models.RecordLent && !device.IsLentable {
		return fmt.Errorf("device %s: %w", device.UUID, ErrNotLentable)
	}
	if !CanTransition(from, to) {
		fromName := "none"
		if from != nil {
			fromName = string(*from)
		}
		return fmt.Errorf("device %s: %s → %s: %w", device.UUID, fromName, to, ErrIllegalTransition)
	}
	return nil
}

// insertActive deactivates every prior record for the device, inserts rec as
// the active one and repoints the device. Must run inside a transaction.
func insertActive(ctx context.Context, tx *gorm.DB, device *models.Device, rec *models.Record, now time.Time) error {
	if err := tx.WithContext(ctx).Model(&models.Record{}).
		Where("device_uuid = ? AND is_active = ?", device.UUID, true).
		Updates(map[string]any{"is_active": false, "effective_until": now}).Error; err != nil {
		return fmt.Errorf("deactivating prior records: %w", err)
	}

	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}

	if err := tx.WithContext(ctx).Model(&models.Device{}).
		Where("uuid = ?", device.UUID).
		Update("active_record_id", rec.ID).Error; err != nil {
		return fmt.Errorf("updating active record pointer: %w", err)
	}
	return nil
}
