// Package service provides GORM-backed repositories over the core schema.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

var (
	// ErrDeviceNotFound is returned when a device lookup matches nothing.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrIdentifierMismatch is returned when an EDV-ID and a SAP-ID both
	// given for a lookup resolve to different devices.
	ErrIdentifierMismatch = errors.New("edv-id and sap-id resolve to different devices")
)

// DeviceRepository provides device persistence operations.
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *DeviceRepository) WithTx(tx *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: tx}
}

// notDeleted scopes a query to devices that are not soft-deleted.
func notDeleted(tx *gorm.DB) *gorm.DB {
	return tx.Where("deleted_at IS NULL")
}

// GetByUUID returns the device with the given UUID. Soft-deleted devices are
// excluded.
func (r *DeviceRepository) GetByUUID(ctx context.Context, uuid string) (*models.Device, error) {
	var d models.Device
	err := r.db.WithContext(ctx).Scopes(notDeleted).First(&d, "uuid = ?", uuid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("device %q: %w", uuid, ErrDeviceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetBySapID returns the device with the given SAP-ID, regardless of tenant.
// The SAP-ID is the cross-tenant stable identity used by import merges.
func (r *DeviceRepository) GetBySapID(ctx context.Context, sapID string) (*models.Device, error) {
	var d models.Device
	err := r.db.WithContext(ctx).Scopes(notDeleted).First(&d, "sap_id = ?", sapID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("sap-id %q: %w", sapID, ErrDeviceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByEdvID returns the device with the given EDV-ID.
func (r *DeviceRepository) GetByEdvID(ctx context.Context, edvID string) (*models.Device, error) {
	var d models.Device
	err := r.db.WithContext(ctx).Scopes(notDeleted).First(&d, "edv_id = ?", edvID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("edv-id %q: %w", edvID, ErrDeviceNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByIdentifiers resolves a device by EDV-ID and/or SAP-ID. With both
// given, they must resolve to the same device; with exactly one given, the
// lookup uses that field alone.
func (r *DeviceRepository) GetByIdentifiers(ctx context.Context, edvID, sapID string) (*models.Device, error) {
	switch {
	case edvID != "" && sapID != "":
		byEdv, err := r.GetByEdvID(ctx, edvID)
		if err != nil {
			return nil, err
		}
		bySap, err := r.GetBySapID(ctx, sapID)
		if err != nil {
			return nil, err
		}
		if byEdv.UUID != bySap.UUID {
			return nil, fmt.Errorf("edv-id %q vs sap-id %q: %w", edvID, sapID, ErrIdentifierMismatch)
		}
		return byEdv, nil
	case edvID != "":
		return r.GetByEdvID(ctx, edvID)
	case sapID != "":
		return r.GetBySapID(ctx, sapID)
	default:
		return nil, fmt.Errorf("no identifier given: %w", ErrDeviceNotFound)
	}
}

// EdvIDExists reports whether any device (deleted or not) already carries the
// given EDV-ID. Deleted devices still hold their identifiers, so the
// uniqueness check must include them.
func (r *DeviceRepository) EdvIDExists(ctx context.Context, edvID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Device{}).Where("edv_id = ?", edvID).Count(&n).Error
	return n > 0, err
}

// Create inserts a new device.
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

// Save persists changes to an existing device.
func (r *DeviceRepository) Save(ctx context.Context, d *models.Device) error {
	if err := r.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("saving device %s: %w", d.UUID, err)
	}
	return nil
}

// SoftDelete marks a device as deleted. Devices are never hard-deleted.
func (r *DeviceRepository) SoftDelete(ctx context.Context, uuid, actor string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Device{}).
		Where("uuid = ? AND deleted_at IS NULL", uuid).
		Updates(map[string]any{"deleted_at": now, "deleted_by": actor})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %q: %w", uuid, ErrDeviceNotFound)
	}
	return nil
}

// DeviceListFilter defines filters for listing devices.
type DeviceListFilter struct {
	Tenant         string
	DeviceTypeID   *uint
	RecordType     models.RecordType
	Lentable       *bool
	IncludeDeleted bool
}

// List returns devices matching the filter, newest first. A non-empty
// RecordType filter matches against the kind of the active record.
func (r *DeviceRepository) List(ctx context.Context, filter DeviceListFilter, limit int) ([]models.Device, error) {
	q := r.db.WithContext(ctx).Model(&models.Device{}).Order("created_at DESC")
	if !filter.IncludeDeleted {
		q = q.Scopes(notDeleted)
	}
	if filter.Tenant != "" {
		q = q.Where("tenant = ?", filter.Tenant)
	}
	if filter.DeviceTypeID != nil {
		q = q.Where("device_type_id = ?", *filter.DeviceTypeID)
	}
	if filter.Lentable != nil {
		q = q.Where("is_lentable = ?", *filter.Lentable)
	}
	if filter.RecordType != "" {
		q = q.Where("active_record_id IN (?)",
			r.db.Model(&models.Record{}).Select("id").Where("record_type = ?", filter.RecordType))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var devices []models.Device
	if err := q.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}
