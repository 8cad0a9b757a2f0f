package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared-cache DSN so concurrent pooled connections see the same database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gormDB
}

func TestNewMigrationLockerPicksStrategyByDialect(t *testing.T) {
	pgDB, _ := setupMockPostgres(t)
	assert.IsType(t, &pgAdvisoryLock{}, NewMigrationLocker(pgDB))

	assert.IsType(t, &fallbackMigrationLock{}, NewMigrationLocker(setupSQLiteDB(t)))

	locker := NewMigrationLocker(nil)
	assert.IsType(t, &noopMigrationLock{}, locker)
	called := false
	require.NoError(t, locker.WithLock(context.Background(), func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestAdvisoryLockAcquiresAndReleases(t *testing.T) {
	gormDB, mock := setupMockPostgres(t)
	locker := NewMigrationLocker(gormDB)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	called := false
	require.NoError(t, locker.WithLock(context.Background(), func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockReleasesOnCallbackError(t *testing.T) {
	gormDB, mock := setupMockPostgres(t)
	locker := NewMigrationLocker(gormDB)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	wantErr := errors.New("migration failed")
	err := locker.WithLock(context.Background(), func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	// The unlock must still have run.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLockAcquireFailureSkipsCallback(t *testing.T) {
	gormDB, mock := setupMockPostgres(t)
	locker := NewMigrationLocker(gormDB)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	called := false
	err := locker.WithLock(context.Background(), func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisory lock")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFallbackLockSerializesHolders(t *testing.T) {
	gormDB := setupSQLiteDB(t)
	locker := NewMigrationLocker(gormDB)

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = locker.WithLock(context.Background(), func() error {
				mu.Lock()
				inCritical++
				if inCritical > maxInCritical {
					maxInCritical = inCritical
				}
				mu.Unlock()

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "holder %d", i)
	}
	assert.Equal(t, 1, maxInCritical, "lock must admit one holder at a time")

	var count int64
	require.NoError(t, gormDB.Model(&migrationLockRecord{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "lock row must be released")
}

func TestFallbackLockReleasesAfterCallbackError(t *testing.T) {
	gormDB := setupSQLiteDB(t)
	locker := NewMigrationLocker(gormDB)

	err := locker.WithLock(context.Background(), func() error {
		return fmt.Errorf("schema change rejected")
	})
	require.Error(t, err)

	// A subsequent acquisition must not block on a leaked row.
	require.NoError(t, locker.WithLock(context.Background(), func() error { return nil }))
}
