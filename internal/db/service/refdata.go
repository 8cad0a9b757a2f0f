package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

// RefDataRepository resolves the FK-bearing reference rows consumed by bulk
// import: suppliers, manufacturers and device types. All lookups match
// case-insensitively on name and create the row when it does not exist yet.
type RefDataRepository struct {
	db *gorm.DB
}

// NewRefDataRepository creates a new RefDataRepository.
func NewRefDataRepository(db *gorm.DB) *RefDataRepository {
	return &RefDataRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *RefDataRepository) WithTx(tx *gorm.DB) *RefDataRepository {
	return &RefDataRepository{db: tx}
}

// GetOrCreateSupplier returns the ID of the supplier with the given name.
func (r *RefDataRepository) GetOrCreateSupplier(ctx context.Context, name string) (uint, error) {
	var s models.Supplier
	found, err := r.findByName(ctx, &s, name)
	if err != nil {
		return 0, err
	}
	if found {
		return s.ID, nil
	}
	s = models.Supplier{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return 0, fmt.Errorf("creating supplier %q: %w", name, err)
	}
	return s.ID, nil
}

// GetOrCreateManufacturer returns the ID of the manufacturer with the given name.
func (r *RefDataRepository) GetOrCreateManufacturer(ctx context.Context, name string) (uint, error) {
	var m models.Manufacturer
	found, err := r.findByName(ctx, &m, name)
	if err != nil {
		return 0, err
	}
	if found {
		return m.ID, nil
	}
	m = models.Manufacturer{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, fmt.Errorf("creating manufacturer %q: %w", name, err)
	}
	return m.ID, nil
}

// GetOrCreateDeviceType returns the ID of the device type with the given name.
func (r *RefDataRepository) GetOrCreateDeviceType(ctx context.Context, name string) (uint, error) {
	var t models.DeviceType
	found, err := r.findByName(ctx, &t, name)
	if err != nil {
		return 0, err
	}
	if found {
		return t.ID, nil
	}
	t = models.DeviceType{Name: strings.TrimSpace(name)}
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return 0, fmt.Errorf("creating device type %q: %w", name, err)
	}
	return t.ID, nil
}

func (r *RefDataRepository) findByName(ctx context.Context, dest any, name string) (bool, error) {
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// containsLine reports whether text contains line as one of its lines.
func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
