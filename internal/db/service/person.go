package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

var (
	// ErrPersonNotFound is returned when a person lookup matches nothing.
	ErrPersonNotFound = errors.New("person not found")
	// ErrUserNotFound is returned when an actor username is unknown.
	ErrUserNotFound = errors.New("user not found; create the user before running batch operations in their name")
)

// PersonRepository provides lending-counterparty persistence operations.
type PersonRepository struct {
	db *gorm.DB
}

// NewPersonRepository creates a new PersonRepository.
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *PersonRepository) WithTx(tx *gorm.DB) *PersonRepository {
	return &PersonRepository{db: tx}
}

// GetByID returns the person with the given ID.
func (r *PersonRepository) GetByID(ctx context.Context, id uint) (*models.Person, error) {
	var p models.Person
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("person %d: %w", id, ErrPersonNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateByEmail returns the person with the given email address,
// creating a stub entry if none exists. Matching is case-insensitive.
func (r *PersonRepository) GetOrCreateByEmail(ctx context.Context, email string) (*models.Person, error) {
	var p models.Person
	err := r.db.WithContext(ctx).First(&p, "LOWER(email) = LOWER(?)", email).Error
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	p = models.Person{Email: email}
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("creating person %q: %w", email, err)
	}
	return &p, nil
}

// UserRepository provides operator lookups.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// GetByUsername resolves an acting operator by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("username %q: %w", username, ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
