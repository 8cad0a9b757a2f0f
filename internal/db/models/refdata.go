package models

import "time"

// Supplier is a vendor reference row, resolved case-insensitively by name
// during bulk import.
type Supplier struct {
	ID        uint      `gorm:"primaryKey;column:id;autoIncrement"`
	Name      string    `gorm:"column:name;uniqueIndex:idx_supplier_name;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (Supplier) TableName() string { return "suppliers" }

// Manufacturer is a manufacturer reference row.
type Manufacturer struct {
	ID        uint      `gorm:"primaryKey;column:id;autoIncrement"`
	Name      string    `gorm:"column:name;uniqueIndex:idx_manufacturer_name;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (Manufacturer) TableName() string { return "manufacturers" }

// DeviceType is a device category reference row ("Notebook", "Monitor", ...).
type DeviceType struct {
	ID        uint      `gorm:"primaryKey;column:id;autoIncrement"`
	Name      string    `gorm:"column:name;uniqueIndex:idx_device_type_name;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName returns the GORM table name.
func (DeviceType) TableName() string { return "device_types" }
