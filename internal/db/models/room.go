package models

import "time"

// Room is a physical location reference row. Two reserved roles exist
// system-wide: the auto-return room (where returned loans default to) and the
// external room (where devices presumed off-site get parked during
// inventory). Each role is held by at most one room; the room repository
// enforces the exclusivity on save.
type Room struct {
	ID     uint   `gorm:"primaryKey;column:id;autoIncrement"`
	Number string `gorm:"column:number;uniqueIndex:idx_room_number;not null"`
	Name   string `gorm:"column:name"`

	IsAutoReturnRoom bool `gorm:"column:is_auto_return_room;not null;default:false"`
	IsExternal       bool `gorm:"column:is_external;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Room) TableName() string { return "rooms" }
