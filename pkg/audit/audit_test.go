package audit

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store, db
}

func TestRecordFillsDefaults(t *testing.T) {
	store, _ := setupTestStore(t)

	ev := &Event{Actor: "alice", Action: ActionImportRun}
	require.NoError(t, store.Record(ev))
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "default", ev.Tenant)
	assert.False(t, ev.CreatedAt.IsZero())
}

func TestListFiltersAndOrders(t *testing.T) {
	store, db := setupTestStore(t)

	old := &Event{Actor: "alice", Action: ActionImportRun, Tenant: "hq"}
	require.NoError(t, store.Record(old))
	require.NoError(t, db.Model(&Event{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	require.NoError(t, store.Record(&Event{Actor: "bob", Action: ActionRemovalRun, Tenant: "hq"}))
	require.NoError(t, store.Record(&Event{Actor: "alice", Action: ActionImportRun, Tenant: "branch"}))

	events, err := store.List(ListFilter{Tenant: "hq"}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, ActionRemovalRun, events[0].Action)

	events, err = store.List(ListFilter{Actor: "alice", Action: ActionImportRun}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.List(ListFilter{}, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDeleteOlderThan(t *testing.T) {
	store, db := setupTestStore(t)

	old := &Event{Actor: "alice", Action: ActionImportRun}
	require.NoError(t, store.Record(old))
	require.NoError(t, db.Model(&Event{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().AddDate(0, 0, -120)).Error)
	require.NoError(t, store.Record(&Event{Actor: "alice", Action: ActionImportRun}))

	deleted, err := store.DeleteOlderThan(time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	events, err := store.List(ListFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DLCDB_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("DLCDB_AUDIT_ENABLED", "false")

	cfg := ConfigFromEnv()
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.False(t, cfg.Enabled)
}
