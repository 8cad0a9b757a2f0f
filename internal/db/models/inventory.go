package models

import "time"

// Inventory is a named physical verification campaign. At most one campaign
// is active at a time; activating one deactivates all others (enforced by the
// inventory repository on save).
type Inventory struct {
	ID       uint   `gorm:"primaryKey;column:id;autoIncrement"`
	Name     string `gorm:"column:name;uniqueIndex:idx_inventory_name;not null"`
	IsActive bool   `gorm:"column:is_active;index:idx_inventory_active;not null;default:false"`

	StartedAt  *time.Time `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Inventory) TableName() string { return "inventories" }

// Note is a free-text annotation attached to a device and optionally an
// inventory campaign and room. Repeated updates for the same
// (device, inventory, room) key append to the existing text rather than
// creating duplicate rows.
type Note struct {
	ID         uint   `gorm:"primaryKey;column:id;autoIncrement"`
	DeviceUUID string `gorm:"column:device_uuid;index:idx_note_device;not null"`

	InventoryID *uint `gorm:"column:inventory_id;index:idx_note_inventory"`
	RoomID      *uint `gorm:"column:room_id"`

	Text string `gorm:"column:text;not null"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Note) TableName() string { return "notes" }
