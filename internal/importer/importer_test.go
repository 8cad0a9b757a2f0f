package importer

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
	"github.com/dlcdb/dlcdb/pkg/audit"
	"github.com/dlcdb/dlcdb/pkg/tenancy"
)

func newTestAuditStore(db *gorm.DB) *audit.Store {
	s := audit.NewStore(db)
	_ = s.AutoMigrate()
	return s
}

func auditEventCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&audit.Event{}).Count(&n).Error)
	return n
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Supplier{}, &models.Manufacturer{}, &models.DeviceType{},
		&models.Room{}, &models.Person{}, &models.User{},
		&models.Inventory{}, &models.Device{}, &models.Record{}, &models.Note{},
	))
	require.NoError(t, db.Create(&models.User{Username: "importer", IsActive: true}).Error)
	return db
}

func newTestImporter(db *gorm.DB) *Importer {
	engine := lifecycle.NewEngine(db, lifecycle.DefaultConfig(), nil)
	audits := newTestAuditStore(db)
	return NewImporter(db, engine, audits, nil)
}

// internalCSV renders rows into an internal-format CSV string. Missing
// columns stay empty; columns beyond the required set (RECORD_TYPE and
// friends) are appended to the header so the row values survive parsing.
func internalCSV(rows ...map[string]string) string {
	headers := append([]string{}, InternalHeaders...)
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	var extras []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				extras = append(extras, col)
			}
		}
	}
	sort.Strings(extras)
	headers = append(headers, extras...)

	var b strings.Builder
	b.WriteString(strings.Join(headers, ","))
	b.WriteString("\n")
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			cells[i] = row[h]
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}
	return b.String()
}

// rawSAPExport renders rows into a raw SAP export: seven banner rows, a
// German header row and semicolon-separated data. ASCII input is valid
// Windows-1252, so no re-encoding is needed in tests.
func rawSAPExport(rows ...[]string) []byte {
	var b bytes.Buffer
	for i := 0; i < sapBannerRows; i++ {
		b.WriteString("Anlagenbestand Bericht\n")
	}
	b.WriteString("Anlage;UNr.;Anlagenbezeichnung;Serialnummer;Raum;Kostenstelle;Aktivierung am;Buchwert;Hersteller der Anlage;Lieferant;Typenbezeichnung\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, ";"))
		b.WriteString("\n")
	}
	return b.Bytes()
}

func deviceCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Device{}).Count(&n).Error)
	return n
}

func recordCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Record{}).Count(&n).Error)
	return n
}

func TestValidateHeadersNamesMissingColumns(t *testing.T) {
	err := ValidateHeaders([]string{ColSapID, ColRoom}, InternalHeaders)
	require.Error(t, err)
	assert.True(t, lifecycle.IsValidation(err))
	assert.Contains(t, err.Error(), ColEdvID)
	assert.Contains(t, err.Error(), ColTenant)

	// Extra columns are fine; order does not matter.
	shuffled := append([]string{"SOMETHING_ELSE"}, InternalHeaders...)
	require.NoError(t, ValidateHeaders(shuffled, InternalHeaders))
}

func TestParseTruthVocabulary(t *testing.T) {
	for _, s := range []string{"yes", "Ja", "TRUE", "1", " yes "} {
		assert.True(t, parseTruth(s), s)
	}
	for _, s := range []string{"", "no", "nein", "0", "maybe"} {
		assert.False(t, parseTruth(s), s)
	}
}

func TestParseCSVRejectsRaggedRows(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("A,B,C\n1,2\n"))
	require.Error(t, err)
	assert.True(t, lifecycle.IsValidation(err))
}

func TestParseCSVSkipsBlankRowsAndBOM(t *testing.T) {
	headers, rows, err := ParseCSV(strings.NewReader("\ufeffA,B\n1,2\n,\n3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, headers)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].Get("A"))
	assert.Equal(t, "4", rows[1].Get("B"))
}

func TestGuessDeviceType(t *testing.T) {
	assert.Equal(t, "Notebook", GuessDeviceType("Notebook Dell Latitude 7420"))
	assert.Equal(t, "Monitor", GuessDeviceType("24-Zoll-Bildschirm"))
	assert.Equal(t, "Drucker", GuessDeviceType("LaserDRUCKER HP"))
	assert.Equal(t, deviceTypeFallback, GuessDeviceType("Kaffeemaschine"))
}

func TestCleanSAPProducesInternalFormat(t *testing.T) {
	raw := rawSAPExport(
		[]string{"400003", "0", "Notebook Dell Latitude", "SN-1", "101", "K100", "15.03.2024", "899,00", "Dell", "Bechtle", "Latitude 7420"},
		[]string{"400004", "", "Monitor 24 Zoll", "SN-2", "", "K100", "01.02.2024", "199,00", "Dell", "Bechtle", "P2422H"},
	)

	cleaned, err := CleanSAP(bytes.NewReader(raw), "hq")
	require.NoError(t, err)

	// Round trip: the cleaned output parses as a valid internal batch.
	headers, rows, err := ParseCSV(bytes.NewReader(cleaned))
	require.NoError(t, err)
	require.NoError(t, ValidateHeaders(headers, InternalHeaders))
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "400003-0", first.Get(ColSapID))
	assert.Equal(t, "101", first.Get(ColRoom))
	assert.Equal(t, "2024-03-15", first.Get(ColPurchaseDate))
	assert.Equal(t, "Notebook", first.Get(ColDeviceType))
	assert.Equal(t, "hq", first.Get(ColTenant))
	assert.Equal(t, string(models.RecordInRoom), first.Get(ColRecordType))
	assert.Equal(t, "no", first.Get(ColIsLentable))

	// A missing subnumber defaults to 0; no room means the asset is on order.
	second := rows[1]
	assert.Equal(t, "400004-0", second.Get(ColSapID))
	assert.Equal(t, string(models.RecordOrdered), second.Get(ColRecordType))
}

func TestCleanSAPRejectsBannerOnlyExport(t *testing.T) {
	_, err := CleanSAP(strings.NewReader("a\nb\nc\n"), "hq")
	require.Error(t, err)
	assert.True(t, lifecycle.IsValidation(err))
}

func TestImportInternalCreatesDevicesAndRecords(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)
	ctx := context.Background()

	csv := internalCSV(
		map[string]string{ColEdvID: "E-1", ColRoom: "101", ColDeviceType: "Notebook", ColSupplier: "Bechtle", ColIsLentable: "yes"},
		map[string]string{ColEdvID: "E-2", ColPurchaseDate: "2024-01-15", ColRecordType: "ORDERED"},
	)

	result, err := imp.Import(ctx, strings.NewReader(csv), Options{
		Format: FormatInternal, Tenant: "default", Username: "importer", Write: true,
	})
	require.NoError(t, err)
	assert.False(t, result.DryRun)
	assert.Equal(t, 2, result.DevicesCreated)
	assert.Equal(t, 2, result.RecordsCreated)

	devices := service.NewDeviceRepository(db)
	d, err := devices.GetByEdvID(ctx, "E-1")
	require.NoError(t, err)
	assert.True(t, d.IsLentable)
	assert.NotNil(t, d.DeviceTypeID)
	assert.NotNil(t, d.SupplierID)
	require.NotNil(t, d.ActiveRecordID)

	var rec models.Record
	require.NoError(t, db.First(&rec, "id = ?", *d.ActiveRecordID).Error)
	assert.Equal(t, models.RecordInRoom, rec.Type)
	assert.Equal(t, "importer", rec.CreatedBy)

	ordered, err := devices.GetByEdvID(ctx, "E-2")
	require.NoError(t, err)
	require.NotNil(t, ordered.ActiveRecordID)
	var orderedRec models.Record
	require.NoError(t, db.First(&orderedRec, "id = ?", *ordered.ActiveRecordID).Error)
	assert.Equal(t, models.RecordOrdered, orderedRec.Type)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)

	csv := internalCSV(map[string]string{ColEdvID: "E-1", ColRoom: "101"})
	result, err := imp.Import(context.Background(), strings.NewReader(csv), Options{
		Format: FormatInternal, Tenant: "default", Username: "importer", Write: false,
	})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.DevicesCreated)

	// The preview ran the full merge, then rolled everything back.
	assert.EqualValues(t, 0, deviceCount(t, db))
	assert.EqualValues(t, 0, recordCount(t, db))
	var rooms int64
	require.NoError(t, db.Model(&models.Room{}).Count(&rooms).Error)
	assert.EqualValues(t, 0, rooms)
	assert.EqualValues(t, 0, auditEventCount(t, db))
}

func TestImportFallsBackToContextTenant(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)
	ctx := tenancy.WithTenant(context.Background(), tenancy.TenantContext{
		Tenant: "default", Actor: "importer",
	})

	csv := internalCSV(map[string]string{ColEdvID: "E-1", ColRoom: "101"})
	result, err := imp.Import(ctx, strings.NewReader(csv), Options{
		Format: FormatInternal, Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DevicesCreated)

	d, err := service.NewDeviceRepository(db).GetByEdvID(context.Background(), "E-1")
	require.NoError(t, err)
	assert.Equal(t, "default", d.Tenant)
	require.NotNil(t, d.ActiveRecordID)

	var rec models.Record
	require.NoError(t, db.First(&rec, "id = ?", *d.ActiveRecordID).Error)
	assert.Equal(t, "importer", rec.CreatedBy)
}

func TestImportUnknownActorFailsBatch(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)

	csv := internalCSV(map[string]string{ColEdvID: "E-1", ColRoom: "101"})
	_, err := imp.Import(context.Background(), strings.NewReader(csv), Options{
		Format: FormatInternal, Tenant: "default", Username: "mallory", Write: true,
	})
	require.ErrorIs(t, err, service.ErrUserNotFound)
	assert.EqualValues(t, 0, deviceCount(t, db))
}

func TestImportBadRowRollsBackWholeBatch(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)

	csv := internalCSV(
		map[string]string{ColEdvID: "E-1", ColRoom: "101"},
		map[string]string{ColEdvID: "E-2", ColPurchaseDate: "not-a-date", ColRecordType: "ORDERED"},
	)
	_, err := imp.Import(context.Background(), strings.NewReader(csv), Options{
		Format: FormatInternal, Tenant: "default", Username: "importer", Write: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.EqualValues(t, 0, deviceCount(t, db))
	assert.EqualValues(t, 0, recordCount(t, db))
}

func TestImportAutoResolvesEdvIDCollision(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)
	ctx := context.Background()

	_, err := imp.Import(ctx, strings.NewReader(internalCSV(
		map[string]string{ColEdvID: "E-1", ColRoom: "101"},
	)), Options{Format: FormatInternal, Tenant: "default", Username: "importer", Write: true})
	require.NoError(t, err)

	// A second batch reusing the EDV-ID must not fail; the duplicate is
	// renamed with a suffix and the rename reported.
	result, err := imp.Import(ctx, strings.NewReader(internalCSV(
		map[string]string{ColEdvID: "E-1", ColRoom: "202"},
	)), Options{Format: FormatInternal, Tenant: "default", Username: "importer", Write: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DevicesCreated)
	assert.Contains(t, strings.Join(result.Messages, "; "), "collision")
	assert.EqualValues(t, 2, deviceCount(t, db))

	// The original keeps its ID; the newcomer carries the suffixed one.
	_, err = service.NewDeviceRepository(db).GetByEdvID(ctx, "E-1")
	require.NoError(t, err)
	var renamed []models.Device
	require.NoError(t, db.Where("edv_id LIKE ?", "E-1-%").Find(&renamed).Error)
	require.Len(t, renamed, 1)
	require.NotNil(t, renamed[0].ActiveRecordID)
}

func TestImportSAPReimportRefreshesRecordOnly(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)
	engine := lifecycle.NewEngine(db, lifecycle.DefaultConfig(), nil)
	ctx := context.Background()

	raw := rawSAPExport(
		[]string{"400003", "0", "Notebook Dell Latitude", "SN-1", "101", "K100", "15.03.2024", "899,00", "Dell", "Bechtle", "Latitude 7420"},
	)

	result, err := imp.Import(ctx, bytes.NewReader(raw), Options{
		Format: FormatSAP, Tenant: "hq", Username: "importer", Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DevicesCreated)

	devices := service.NewDeviceRepository(db)
	device, err := devices.GetBySapID(ctx, "400003-0")
	require.NoError(t, err)
	assert.Equal(t, "hq", device.Tenant)

	// Someone moves the device to another room by hand.
	otherRoom := &models.Room{Number: "202"}
	require.NoError(t, db.Create(otherRoom).Error)
	_, err = engine.CreateRecord(ctx, device.UUID, "importer", lifecycle.InRoom{RoomID: otherRoom.ID})
	require.NoError(t, err)

	// Re-importing the same export reverts the room without duplicating the
	// device or touching its attributes.
	result, err = imp.Import(ctx, bytes.NewReader(raw), Options{
		Format: FormatSAP, Tenant: "hq", Username: "importer", Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.DevicesCreated)
	assert.Equal(t, 1, result.RecordsCreated)
	assert.EqualValues(t, 1, deviceCount(t, db))

	active, err := engine.GetActiveRecord(ctx, device.UUID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.NotNil(t, active.RoomID)

	room101, err := service.NewRoomRepository(db).GetByNumber(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, room101.ID, *active.RoomID)
}

func TestImportSAPSkipsOtherTenantsAssets(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)
	ctx := context.Background()

	sapID := "400003-0"
	foreign := &models.Device{UUID: "dev-foreign", Tenant: "branch", SapID: &sapID}
	require.NoError(t, db.Create(foreign).Error)

	raw := rawSAPExport(
		[]string{"400003", "0", "Notebook Dell Latitude", "SN-1", "101", "K100", "15.03.2024", "899,00", "Dell", "Bechtle", "Latitude 7420"},
	)
	result, err := imp.Import(ctx, bytes.NewReader(raw), Options{
		Format: FormatSAP, Tenant: "hq", Username: "importer", Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.DevicesCreated)
	assert.Equal(t, 1, result.DevicesSkipped)
	assert.Equal(t, 0, result.RecordsCreated)

	// The foreign asset is untouched.
	var reloaded models.Device
	require.NoError(t, db.First(&reloaded, "uuid = ?", "dev-foreign").Error)
	assert.Equal(t, "branch", reloaded.Tenant)
	assert.Nil(t, reloaded.ActiveRecordID)
}

func TestImportSAPDoesNotResurrectRemovedDevices(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)
	engine := lifecycle.NewEngine(db, lifecycle.DefaultConfig(), nil)
	ctx := context.Background()

	raw := rawSAPExport(
		[]string{"400003", "0", "Notebook Dell Latitude", "SN-1", "101", "K100", "15.03.2024", "899,00", "Dell", "Bechtle", "Latitude 7420"},
	)
	_, err := imp.Import(ctx, bytes.NewReader(raw), Options{
		Format: FormatSAP, Tenant: "hq", Username: "importer", Write: true,
	})
	require.NoError(t, err)

	device, err := service.NewDeviceRepository(db).GetBySapID(ctx, "400003-0")
	require.NoError(t, err)
	removed, err := engine.CreateRecord(ctx, device.UUID, "importer", lifecycle.Removed{
		DispositionState: models.DispositionScrapped,
	})
	require.NoError(t, err)

	// A stale export still listing the device must not reopen its history.
	result, err := imp.Import(ctx, bytes.NewReader(raw), Options{
		Format: FormatSAP, Tenant: "hq", Username: "importer", Write: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DevicesSkipped)
	assert.Equal(t, 0, result.RecordsCreated)

	active, err := engine.GetActiveRecord(ctx, device.UUID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, removed.ID, active.ID)
}

func TestImportRejectsLentRows(t *testing.T) {
	db := setupTestDB(t)
	imp := newTestImporter(db)

	csv := internalCSV(map[string]string{ColEdvID: "E-1", ColRoom: "101", ColRecordType: "LENT"})
	_, err := imp.Import(context.Background(), strings.NewReader(csv), Options{
		Format: FormatInternal, Tenant: "default", Username: "importer", Write: true,
	})
	require.Error(t, err)
	assert.True(t, lifecycle.IsValidation(err))
	assert.Contains(t, err.Error(), "LENT")
	assert.EqualValues(t, 0, deviceCount(t, db))
}
