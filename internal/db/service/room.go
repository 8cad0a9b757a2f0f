package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

var (
	// ErrRoomNotFound is returned when a room lookup matches nothing.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNoAutoReturnRoom is returned when a loan return is attempted but no
	// room carries the auto-return flag yet.
	ErrNoAutoReturnRoom = errors.New("no room is flagged as auto-return room; flag exactly one room before processing returns")
	// ErrNoExternalRoom is returned when the inventory workflow needs the
	// external parking room but none is flagged.
	ErrNoExternalRoom = errors.New("no room is flagged as external room; flag exactly one room before running inventories")
)

// RoomRepository provides room persistence operations and enforces the
// exclusivity of the two reserved room roles.
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new RoomRepository.
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *RoomRepository) WithTx(tx *gorm.DB) *RoomRepository {
	return &RoomRepository{db: tx}
}

// GetByID returns the room with the given ID.
func (r *RoomRepository) GetByID(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("room %d: %w", id, ErrRoomNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetByNumber returns the room with the given number.
func (r *RoomRepository) GetByNumber(ctx context.Context, number string) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("room %q: %w", number, ErrRoomNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetOrCreateByNumber returns the room with the given number, creating it if
// it does not exist yet.
func (r *RoomRepository) GetOrCreateByNumber(ctx context.Context, number string) (*models.Room, error) {
	room, err := r.GetByNumber(ctx, number)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, err
	}
	room = &models.Room{Number: number}
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return nil, fmt.Errorf("creating room %q: %w", number, err)
	}
	return room, nil
}

// Save persists a room. When the room carries one of the reserved role flags,
// the flag is cleared on every other room inside the same transaction so each
// role is held by at most one room system-wide.
func (r *RoomRepository) Save(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if room.IsAutoReturnRoom {
			if err := tx.Model(&models.Room{}).Where("id <> ?", room.ID).
				Update("is_auto_return_room", false).Error; err != nil {
				return fmt.Errorf("clearing auto-return flag: %w", err)
			}
		}
		if room.IsExternal {
			if err := tx.Model(&models.Room{}).Where("id <> ?", room.ID).
				Update("is_external", false).Error; err != nil {
				return fmt.Errorf("clearing external flag: %w", err)
			}
		}
		return tx.Save(room).Error
	})
}

// AutoReturnRoom returns the single room flagged as auto-return target.
func (r *RoomRepository) AutoReturnRoom(ctx context.Context) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "is_auto_return_room = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoAutoReturnRoom
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ExternalRoom returns the single room flagged as external parking location.
func (r *RoomRepository) ExternalRoom(ctx context.Context) (*models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).First(&room, "is_external = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoExternalRoom
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}
