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
	// ErrNoActiveInventory is returned when an inventory-scoped operation
	// runs while no campaign is active.
	ErrNoActiveInventory = errors.New("no active inventory campaign; activate one before verifying rooms")
	// ErrInventoryNotFound is returned when an inventory lookup matches nothing.
	ErrInventoryNotFound = errors.New("inventory not found")
)

// InventoryRepository provides verification-campaign persistence operations
// and enforces the single-active-campaign rule.
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *InventoryRepository) WithTx(tx *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: tx}
}

// GetByID returns the campaign with the given ID.
func (r *InventoryRepository) GetByID(ctx context.Context, id uint) (*models.Inventory, error) {
	var inv models.Inventory
	err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("inventory %d: %w", id, ErrInventoryNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Active returns the single active campaign.
func (r *InventoryRepository) Active(ctx context.Context) (*models.Inventory, error) {
	var inv models.Inventory
	err := r.db.WithContext(ctx).First(&inv, "is_active = ?", true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveInventory
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Save persists a campaign. Saving an active campaign deactivates every other
// campaign inside the same transaction, so at most one is active at a time.
func (r *InventoryRepository) Save(ctx context.Context, inv *models.Inventory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if inv.IsActive {
			if err := tx.Model(&models.Inventory{}).Where("id <> ?", inv.ID).
				Update("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivating other inventories: %w", err)
			}
			if inv.StartedAt == nil {
				now := time.Now().UTC()
				inv.StartedAt = &now
			}
		}
		return tx.Save(inv).Error
	})
}

// NoteRepository provides idempotent-append note persistence. Notes are keyed
// by (device, inventory, room): repeated updates for the same key extend the
// existing text instead of creating duplicate rows.
type NoteRepository struct {
	db *gorm.DB
}

// NewNoteRepository creates a new NoteRepository.
func NewNoteRepository(db *gorm.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *NoteRepository) WithTx(tx *gorm.DB) *NoteRepository {
	return &NoteRepository{db: tx}
}

// Append merges text into the note for (deviceUUID, inventoryID, roomID). The
// text is appended on its own line when a note already exists, except that
// appending a line already present is a no-op, keeping repeated identical
// calls idempotent.
func (r *NoteRepository) Append(ctx context.Context, deviceUUID string, inventoryID, roomID *uint, text string) (*models.Note, error) {
	var note models.Note
	q := r.db.WithContext(ctx).Where("device_uuid = ?", deviceUUID)
	q = whereNullable(q, "inventory_id", inventoryID)
	q = whereNullable(q, "room_id", roomID)

	err := q.First(&note).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		note = models.Note{
			DeviceUUID:  deviceUUID,
			InventoryID: inventoryID,
			RoomID:      roomID,
			Text:        text,
		}
		if err := r.db.WithContext(ctx).Create(&note).Error; err != nil {
			return nil, fmt.Errorf("creating note: %w", err)
		}
		return &note, nil
	case err != nil:
		return nil, err
	}

	if containsLine(note.Text, text) {
		return &note, nil
	}
	note.Text = note.Text + "\n" + text
	if err := r.db.WithContext(ctx).Save(&note).Error; err != nil {
		return nil, fmt.Errorf("appending note: %w", err)
	}
	return &note, nil
}

// whereNullable adds an equality or IS NULL condition for a nullable FK.
func whereNullable(q *gorm.DB, column string, id *uint) *gorm.DB {
	if id == nil {
		return q.Where(column + " IS NULL")
	}
	return q.Where(column+" = ?", *id)
}
