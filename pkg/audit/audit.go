// Package audit records an audit trail of lifecycle operations: record
// transitions and batch runs (import, removal, inventory verification), with
// the acting user, tenant and dry-run flag.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Action names for audit events.
const (
	ActionRecordCreated = "record.created"
	ActionImportRun     = "import.run"
	ActionRemovalRun    = "removal.run"
	ActionInventoryRun  = "inventory.run"
	ActionDeviceDeleted = "device.deleted"
)

// Event is the GORM model for one audit event.
type Event struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Tenant       string    `gorm:"column:tenant;index:idx_audit_tenant;not null;default:default"`
	Actor        string    `gorm:"column:actor;index:idx_audit_actor;not null"`
	Action       string    `gorm:"column:action;index:idx_audit_action;not null"`
	ResourceType string    `gorm:"column:resource_type"`
	ResourceID   string    `gorm:"column:resource_id"`
	Message      string    `gorm:"column:message"`
	DryRun       bool      `gorm:"column:dry_run;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;index:idx_audit_created;not null"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "audit_events" }

// Store provides database operations for audit events.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new audit Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Event{})
}

// WithTx returns a store bound to the given transaction handle, so batch
// operations record their audit event inside the same transaction (and a
// dry-run rollback takes the event with it).
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Record persists one audit event. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Tenant == "" {
		ev.Tenant = "default"
	}
	if err := s.db.Create(ev).Error; err != nil {
		return fmt.Errorf("recording audit event: %w", err)
	}
	return nil
}

// ListFilter defines filters for listing audit events.
type ListFilter struct {
	Tenant string
	Actor  string
	Action string
}

// List returns events matching the filter, newest first.
func (s *Store) List(filter ListFilter, limit int) ([]Event, error) {
	q := s.db.Model(&Event{}).Order("created_at DESC")
	if filter.Tenant != "" {
		q = q.Where("tenant = ?", filter.Tenant)
	}
	if filter.Actor != "" {
		q = q.Where("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	return events, nil
}

// DeleteOlderThan removes events created before the cutoff and returns how
// many were deleted.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting old audit events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
