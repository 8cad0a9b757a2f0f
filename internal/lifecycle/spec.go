package lifecycle

import (
	"time"

	"github.com/dlcdb/dlcdb/internal/db/models"
)

// RecordSpec is the closed set of typed creation paths for records. Every
// record row is created through one of the five variants below; the engine
// never persists an untyped record. The unexported method keeps the set
// closed to this package.
type RecordSpec interface {
	// Kind returns the discriminator the variant produces.
	Kind() models.RecordType

	validate(cfg Config, now time.Time) error
	populate(rec *models.Record)
}

// Ordered marks a device as on order, before receipt.
type Ordered struct {
	DateOfPurchase *time.Time
	Note           string
}

// Kind returns models.RecordOrdered.
func (Ordered) Kind() models.RecordType { return models.RecordOrdered }

func (o Ordered) validate(_ Config, _ time.Time) error { return nil }

func (o Ordered) populate(rec *models.Record) {
	rec.DateOfPurchase = o.DateOfPurchase
	rec.Note = o.Note
}

// InRoom places a device in a room.
type InRoom struct {
	RoomID uint
	Note   string
}

// Kind returns models.RecordInRoom.
func (InRoom) Kind() models.RecordType { return models.RecordInRoom }

func (i InRoom) validate(_ Config, _ time.Time) error {
	if i.RoomID == 0 {
		return NewValidationError("room", "a room is required for an in-room record")
	}
	return nil
}

func (i InRoom) populate(rec *models.Record) {
	roomID := i.RoomID
	rec.RoomID = &roomID
	rec.Note = i.Note
}

// Lent lends a device to a person.
type Lent struct {
	PersonID       uint
	RoomID         *uint
	StartDate      time.Time
	DesiredEndDate time.Time
	EndDate        *time.Time
	Note           string
	LentNote       string
	Accessories    string
}

// Kind returns models.RecordLent.
func (Lent) Kind() models.RecordType { return models.RecordLent }

func (l Lent) validate(cfg Config, now time.Time) error {
	if l.PersonID == 0 {
		return NewValidationError("person", "a person is required for a lent record")
	}
	if l.StartDate.IsZero() {
		return NewValidationError("lent_start_date", "a start date is required")
	}
	if l.DesiredEndDate.IsZero() {
		return NewValidationError("lent_desired_end_date", "a desired end date is required")
	}
	if l.DesiredEndDate.Before(l.StartDate) {
		return NewValidationError("lent_desired_end_date", "desired end date %s lies before start date %s",
			l.DesiredEndDate.Format(time.DateOnly), l.StartDate.Format(time.DateOnly))
	}
	maxFuture := now.AddDate(0, 0, cfg.MaxLentFutureDays)
	if l.DesiredEndDate.After(maxFuture) {
		return NewValidationError("lent_desired_end_date", "desired end date %s lies beyond the allowed horizon of %d days",
			l.DesiredEndDate.Format(time.DateOnly), cfg.MaxLentFutureDays)
	}
	if l.EndDate != nil {
		if l.EndDate.After(now) {
			return NewValidationError("lent_end_date", "end date must not lie in the future")
		}
		if l.EndDate.Before(l.StartDate) {
			return NewValidationError("lent_end_date", "end date lies before start date")
		}
	}
	return nil
}

func (l Lent) populate(rec *models.Record) {
	personID := l.PersonID
	start := l.StartDate
	desired := l.DesiredEndDate
	rec.PersonID = &personID
	rec.RoomID = l.RoomID
	rec.LentStartDate = &start
	rec.LentDesiredEndDate = &desired
	rec.LentEndDate = l.EndDate
	rec.LentNote = l.LentNote
	rec.LentAccessories = l.Accessories
	rec.Note = l.Note
}

// Lost marks a device as unlocatable. InventoryID stamps the record when the
// loss was established by a verification campaign.
type Lost struct {
	Note        string
	InventoryID *uint
}

// Kind returns models.RecordLost.
func (Lost) Kind() models.RecordType { return models.RecordLost }

func (l Lost) validate(_ Config, _ time.Time) error { return nil }

func (l Lost) populate(rec *models.Record) {
	rec.Note = l.Note
	rec.InventoryID = l.InventoryID
}

// Removed decommissions a device. Removal is terminal.
type Removed struct {
	DispositionState string
	RemovedInfo      string
	RemovedDate      *time.Time
	Note             string
}

// Kind returns models.RecordRemoved.
func (Removed) Kind() models.RecordType { return models.RecordRemoved }

func (r Removed) validate(_ Config, _ time.Time) error {
	if r.DispositionState == "" {
		return NewValidationError("disposition_state", "a disposition state is required for a removed record")
	}
	return nil
}

func (r Removed) populate(rec *models.Record) {
	rec.DispositionState = r.DispositionState
	rec.RemovedInfo = r.RemovedInfo
	rec.RemovedDate = r.RemovedDate
	rec.Note = r.Note
}
