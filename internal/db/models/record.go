package models

import (
	"time"
)

// RecordType discriminates the five mutually exclusive record kinds.
type RecordType string

const (
	RecordOrdered RecordType = "ORDERED"
	RecordInRoom  RecordType = "INROOM"
	RecordLent    RecordType = "LENT"
	RecordLost    RecordType = "LOST"
	RecordRemoved RecordType = "REMOVED"
)

// KnownRecordTypes lists every valid discriminator value.
var KnownRecordTypes = []RecordType{
	RecordOrdered, RecordInRoom, RecordLent, RecordLost, RecordRemoved,
}

// Valid returns true if t is one of the five known record kinds.
func (t RecordType) Valid() bool {
	switch t {
	case RecordOrdered, RecordInRoom, RecordLent, RecordLost, RecordRemoved:
		return true
	}
	return false
}

// Record is a timestamped state entry for a device. All five kinds share one
// physical row; kind-specific columns are nullable and only populated for
// their kind. Records are never mutated to change kind - a transition always
// inserts a new row and deactivates the previous one.
type Record struct {
	ID         uint       `gorm:"primaryKey;column:id;autoIncrement"`
	DeviceUUID string     `gorm:"column:device_uuid;index:idx_record_device;not null"`
	Type       RecordType `gorm:"column:record_type;index:idx_record_type;not null"`

	// IsActive marks the single authoritative record per device.
	// EffectiveUntil is set when the record is superseded.
	IsActive       bool       `gorm:"column:is_active;index:idx_record_active;not null;default:false"`
	EffectiveUntil *time.Time `gorm:"column:effective_until"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	CreatedBy string    `gorm:"column:created_by"`

	Note string `gorm:"column:note"`

	// INROOM / LENT
	RoomID *uint `gorm:"column:room_id"`

	// LENT
	PersonID           *uint      `gorm:"column:person_id"`
	LentStartDate      *time.Time `gorm:"column:lent_start_date"`
	LentDesiredEndDate *time.Time `gorm:"column:lent_desired_end_date"`
	LentEndDate        *time.Time `gorm:"column:lent_end_date"`
	LentNote           string     `gorm:"column:lent_note"`
	LentAccessories    string     `gorm:"column:lent_accessories"`

	// REMOVED
	DispositionState string     `gorm:"column:disposition_state"`
	RemovedInfo      string     `gorm:"column:removed_info"`
	RemovedDate      *time.Time `gorm:"column:removed_date"`

	// ORDERED
	DateOfPurchase *time.Time `gorm:"column:date_of_purchase"`

	// InventoryID stamps records created or touched during an inventory
	// verification campaign.
	InventoryID *uint `gorm:"column:inventory_id"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "records" }

// CloneForTransition returns a copy of the record with a cleared primary key
// and activity flags reset, ready to be inserted as a fresh row. Kind-specific
// fields incompatible with the target kind are the caller's responsibility.
func (r *Record) CloneForTransition() *Record {
	clone := *r
	clone.ID = 0
	clone.IsActive = false
	clone.EffectiveUntil = nil
	clone.CreatedAt = time.Time{}
	return &clone
}

// DispositionState values used by removal flows. The list mirrors the
// vocabulary accepted by the removal CSV contract.
const (
	DispositionSold      = "SOLD"
	DispositionScrapped  = "SCRAPPED"
	DispositionSurrender = "SURRENDERED"
	DispositionStolen    = "STOLEN"
	DispositionDuplicate = "DUPLICATE"
	DispositionUnknown   = "UNKNOWN"
)
