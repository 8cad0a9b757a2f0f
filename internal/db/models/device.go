package models

import (
	"time"
)

// Device is the GORM model for a physical or licensed asset.
//
// EdvID and SapID are two independent external identifier schemes; either,
// both, or neither may be present. Both are unique when present, so an
// absent identifier is stored as NULL, never as the empty string.
type Device struct {
	UUID   string `gorm:"primaryKey;column:uuid;type:varchar(36)"`
	Tenant string `gorm:"column:tenant;index:idx_device_tenant;not null;default:default"`

	EdvID *string `gorm:"column:edv_id;uniqueIndex:idx_device_edv_id"`
	SapID *string `gorm:"column:sap_id;uniqueIndex:idx_device_sap_id"`

	ManufacturerID *uint `gorm:"column:manufacturer_id"`
	DeviceTypeID   *uint `gorm:"column:device_type_id;index:idx_device_type"`
	SupplierID     *uint `gorm:"column:supplier_id"`

	Series       string `gorm:"column:series"`
	SerialNumber string `gorm:"column:serial_number"`
	NickName     string `gorm:"column:nick_name"`

	MacAddress        string `gorm:"column:mac_address"`
	ExtraMacAddresses string `gorm:"column:extra_mac_addresses"`

	CostCentre string `gorm:"column:cost_centre"`
	BookValue  string `gorm:"column:book_value"`

	PurchaseDate                      *time.Time `gorm:"column:purchase_date"`
	WarrantyExpirationDate            *time.Time `gorm:"column:warranty_expiration_date"`
	MaintenanceContractExpirationDate *time.Time `gorm:"column:maintenance_contract_expiration_date"`

	IsLentable bool `gorm:"column:is_lentable;not null;default:false"`
	IsLicence  bool `gorm:"column:is_licence;not null;default:false"`

	// ActiveRecordID points at the single currently authoritative record for
	// this device. NULL only before the first record exists. Written
	// exclusively by the lifecycle engine.
	ActiveRecordID *uint `gorm:"column:active_record_id"`

	DeletedAt *time.Time `gorm:"column:deleted_at;index:idx_device_deleted"`
	DeletedBy string     `gorm:"column:deleted_by"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Device) TableName() string { return "devices" }

// IsDeleted returns true if the device has been soft-deleted.
func (d *Device) IsDeleted() bool { return d.DeletedAt != nil }
