package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Room{}, &models.Person{}, &models.Device{}, &models.Record{},
	))
	return db
}

func newTestEngine(db *gorm.DB) *Engine {
	return NewEngine(db, DefaultConfig(), nil)
}

func createTestDevice(t *testing.T, db *gorm.DB, lentable bool) *models.Device {
	t.Helper()
	d := &models.Device{UUID: uuid.NewString(), Tenant: "default", IsLentable: lentable}
	require.NoError(t, db.Create(d).Error)
	return d
}

func createTestRoom(t *testing.T, db *gorm.DB, number string) *models.Room {
	t.Helper()
	r := &models.Room{Number: number}
	require.NoError(t, db.Create(r).Error)
	return r
}

func createTestPerson(t *testing.T, db *gorm.DB, email string) *models.Person {
	t.Helper()
	p := &models.Person{Email: email}
	require.NoError(t, db.Create(p).Error)
	return p
}

func activeCount(t *testing.T, db *gorm.DB, deviceUUID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Record{}).
		Where("device_uuid = ? AND is_active = ?", deviceUUID, true).Count(&n).Error)
	return n
}

func recordCount(t *testing.T, db *gorm.DB, deviceUUID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Record{}).
		Where("device_uuid = ?", deviceUUID).Count(&n).Error)
	return n
}

func TestCreateRecordFirstInRoom(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")

	rec, err := engine.CreateRecord(context.Background(), device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RecordInRoom, rec.Type)
	assert.True(t, rec.IsActive)
	assert.Equal(t, "alice", rec.CreatedBy)

	var reloaded models.Device
	require.NoError(t, db.First(&reloaded, "uuid = ?", device.UUID).Error)
	require.NotNil(t, reloaded.ActiveRecordID)
	assert.Equal(t, rec.ID, *reloaded.ActiveRecordID)
}

func TestSingleActiveRecordThroughTransitions(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", Ordered{})
	require.NoError(t, err)
	_, err = engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Lost{})
	require.NoError(t, err)
	found, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)

	assert.EqualValues(t, 1, activeCount(t, db, device.UUID))
	assert.EqualValues(t, 4, recordCount(t, db, device.UUID))

	// Every superseded record carries an effective_until stamp.
	var superseded []models.Record
	require.NoError(t, db.Where("device_uuid = ? AND is_active = ?", device.UUID, false).
		Find(&superseded).Error)
	require.Len(t, superseded, 3)
	for _, rec := range superseded {
		assert.NotNil(t, rec.EffectiveUntil, "record %d", rec.ID)
	}

	var reloaded models.Device
	require.NoError(t, db.First(&reloaded, "uuid = ?", device.UUID).Error)
	require.NotNil(t, reloaded.ActiveRecordID)
	assert.Equal(t, found.ID, *reloaded.ActiveRecordID)
}

func TestFirstRecordMustBeInitialKind(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)

	_, err := engine.CreateRecord(context.Background(), device.UUID, "alice", Lost{})
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.EqualValues(t, 0, recordCount(t, db, device.UUID))
}

func TestIllegalTransitionFromOrdered(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", Ordered{})
	require.NoError(t, err)

	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Lost{})
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.EqualValues(t, 1, recordCount(t, db, device.UUID))
}

func TestRemovalIsTerminal(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	removed, err := engine.CreateRecord(ctx, device.UUID, "alice", Removed{DispositionState: models.DispositionScrapped})
	require.NoError(t, err)

	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Removed{DispositionState: models.DispositionSold})
	require.ErrorIs(t, err, ErrAlreadyRemoved)
	// The error names the existing terminal record so the operator can find it.
	assert.Contains(t, err.Error(), "record")

	_, err = engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.ErrorIs(t, err, ErrIllegalTransition)

	active, err := engine.GetActiveRecord(ctx, device.UUID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, removed.ID, active.ID)
}

func TestRemovedRequiresDisposition(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)

	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Removed{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.EqualValues(t, 1, recordCount(t, db, device.UUID))
}

func TestLendingRequiresLentableFlag(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	person := createTestPerson(t, db, "bob@example.org")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)

	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Lent{
		PersonID:       person.ID,
		StartDate:      time.Now().AddDate(0, 0, -1),
		DesiredEndDate: time.Now().AddDate(0, 0, 30),
	})
	require.ErrorIs(t, err, ErrNotLentable)
}

func TestLentDateValidation(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, true)
	room := createTestRoom(t, db, "101")
	person := createTestPerson(t, db, "bob@example.org")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	before := recordCount(t, db, device.UUID)

	cases := []struct {
		name string
		spec Lent
	}{
		{"desired end before start", Lent{
			PersonID:       person.ID,
			StartDate:      time.Now(),
			DesiredEndDate: time.Now().AddDate(0, 0, -10),
		}},
		{"desired end beyond horizon", Lent{
			PersonID:       person.ID,
			StartDate:      time.Now(),
			DesiredEndDate: time.Now().AddDate(3, 0, 0),
		}},
		{"end date in the future", Lent{
			PersonID:       person.ID,
			StartDate:      time.Now().AddDate(0, 0, -5),
			DesiredEndDate: time.Now().AddDate(0, 0, 30),
			EndDate:        timePtr(time.Now().AddDate(0, 0, 2)),
		}},
		{"missing person", Lent{
			StartDate:      time.Now(),
			DesiredEndDate: time.Now().AddDate(0, 0, 30),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.CreateRecord(ctx, device.UUID, "alice", tc.spec)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}

	// Failed validations leave the history untouched.
	assert.Equal(t, before, recordCount(t, db, device.UUID))
}

func TestReturnUsesAutoReturnRoom(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, true)
	room := createTestRoom(t, db, "101")
	person := createTestPerson(t, db, "bob@example.org")
	ctx := context.Background()

	returnRoom := &models.Room{Number: "RETURN", IsAutoReturnRoom: true}
	require.NoError(t, db.Create(returnRoom).Error)

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	loan, err := engine.CreateRecord(ctx, device.UUID, "alice", Lent{
		PersonID:       person.ID,
		StartDate:      time.Now().AddDate(0, 0, -7),
		DesiredEndDate: time.Now().AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	returned, err := engine.Return(ctx, device.UUID, "alice", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.RecordInRoom, returned.Type)
	require.NotNil(t, returned.RoomID)
	assert.Equal(t, returnRoom.ID, *returned.RoomID)

	// The closed loan keeps its row, gains an end date and is no longer active.
	var closed models.Record
	require.NoError(t, db.First(&closed, "id = ?", loan.ID).Error)
	assert.False(t, closed.IsActive)
	assert.NotNil(t, closed.LentEndDate)
	assert.EqualValues(t, 1, activeCount(t, db, device.UUID))
}

func TestReturnWithoutLoanFails(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, true)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)

	_, err = engine.Return(ctx, device.UUID, "alice", nil, "")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestExtendLoan(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, true)
	room := createTestRoom(t, db, "101")
	person := createTestPerson(t, db, "bob@example.org")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	loan, err := engine.CreateRecord(ctx, device.UUID, "alice", Lent{
		PersonID:       person.ID,
		StartDate:      time.Now().AddDate(0, 0, -7),
		DesiredEndDate: time.Now().AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	newEnd := time.Now().AddDate(0, 0, 90)
	require.NoError(t, engine.ExtendLoan(ctx, device.UUID, newEnd))

	var reloaded models.Record
	require.NoError(t, db.First(&reloaded, "id = ?", loan.ID).Error)
	require.NotNil(t, reloaded.LentDesiredEndDate)
	assert.WithinDuration(t, newEnd, *reloaded.LentDesiredEndDate, time.Second)

	// Beyond the horizon is rejected.
	err = engine.ExtendLoan(ctx, device.UUID, time.Now().AddDate(3, 0, 0))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCloneTransitionFromLostClearsNote(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	otherRoom := createTestRoom(t, db, "202")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Lost{Note: "vanished after the office move"})
	require.NoError(t, err)

	campaign := uint(7)
	rec, err := engine.CloneTransition(ctx, device.UUID, "carol", otherRoom.ID, &campaign)
	require.NoError(t, err)
	assert.Equal(t, models.RecordInRoom, rec.Type)
	assert.Empty(t, rec.Note)
	require.NotNil(t, rec.RoomID)
	assert.Equal(t, otherRoom.ID, *rec.RoomID)
	require.NotNil(t, rec.InventoryID)
	assert.Equal(t, campaign, *rec.InventoryID)
	assert.Equal(t, "carol", rec.CreatedBy)
	assert.EqualValues(t, 1, activeCount(t, db, device.UUID))
}

func TestCloneTransitionFromRemovedClearsDisposition(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.NoError(t, err)
	_, err = engine.CreateRecord(ctx, device.UUID, "alice", Removed{
		DispositionState: models.DispositionScrapped,
		RemovedInfo:      "container 3",
	})
	require.NoError(t, err)

	// A device found during a walk-through was evidently not scrapped.
	rec, err := engine.CloneTransition(ctx, device.UUID, "carol", room.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RecordInRoom, rec.Type)
	assert.Empty(t, rec.DispositionState)
	assert.Empty(t, rec.RemovedInfo)
	assert.Nil(t, rec.RemovedDate)
}

func TestCloneTransitionFromOrderedProvesReceipt(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	purchase := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := engine.CreateRecord(ctx, device.UUID, "alice", Ordered{DateOfPurchase: &purchase})
	require.NoError(t, err)

	rec, err := engine.CloneTransition(ctx, device.UUID, "carol", room.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RecordInRoom, rec.Type)
	require.NotNil(t, rec.DateOfPurchase)
	assert.True(t, purchase.Equal(*rec.DateOfPurchase))
}

func TestSoftDeletedDeviceRejectsRecords(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)
	device := createTestDevice(t, db, false)
	room := createTestRoom(t, db, "101")
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, db.Model(&models.Device{}).Where("uuid = ?", device.UUID).
		Updates(map[string]any{"deleted_at": now, "deleted_by": "alice"}).Error)

	_, err := engine.CreateRecord(ctx, device.UUID, "alice", InRoom{RoomID: room.ID})
	require.ErrorIs(t, err, ErrDeviceDeleted)
}

func TestLendingWarningsContractExpiry(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(db)

	end := time.Now().AddDate(0, 1, 0)
	person := &models.Person{Email: "temp@example.org", FirstName: "Tem", LastName: "Porary", ContractEndDate: &end}
	require.NoError(t, db.Create(person).Error)

	warnings, err := engine.LendingWarnings(context.Background(), person.ID, time.Now().AddDate(0, 2, 0))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "contract")

	warnings, err = engine.LendingWarnings(context.Background(), person.ID, time.Now().AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestCanTransitionTable(t *testing.T) {
	inroom := models.RecordInRoom
	removed := models.RecordRemoved
	lost := models.RecordLost

	assert.True(t, CanTransition(nil, models.RecordOrdered))
	assert.True(t, CanTransition(nil, models.RecordInRoom))
	assert.False(t, CanTransition(nil, models.RecordLent))
	assert.True(t, CanTransition(&inroom, models.RecordLent))
	assert.True(t, CanTransition(&lost, models.RecordInRoom))
	assert.False(t, CanTransition(&removed, models.RecordInRoom))
	assert.False(t, CanTransition(&removed, models.RecordRemoved))
}

func timePtr(t time.Time) *time.Time { return &t }
