// Package db provides database connection setup and schema migration for the
// device lifecycle database.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

// Connect opens a GORM connection for the given database type.
// Supported types: postgres, mysql, sqlite (path or :memory: DSN).
func Connect(dbType, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	switch dbType {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		if dsn == "" {
			dsn = "dlcdb.db"
		}
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected postgres, mysql or sqlite)", dbType)
	}
}

// coreModels lists every GORM model owned by the core schema, in FK order.
func coreModels() []any {
	return []any{
		&models.Supplier{},
		&models.Manufacturer{},
		&models.DeviceType{},
		&models.Room{},
		&models.Person{},
		&models.User{},
		&models.Inventory{},
		&models.Device{},
		&models.Record{},
		&models.Note{},
	}
}

// Migrate creates or updates the core schema. The migration runs under a
// cross-replica lock so that multiple instances starting at once do not race
// AutoMigrate against the same tables.
func Migrate(ctx context.Context, gormDB *gorm.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	locker := NewMigrationLocker(gormDB)
	return locker.WithLock(ctx, func() error {
		log.Info("migrating device lifecycle schema")
		if err := gormDB.AutoMigrate(coreModels()...); err != nil {
			return fmt.Errorf("migrating core schema: %w", err)
		}
		return nil
	})
}
