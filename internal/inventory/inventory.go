// Package inventory implements room-by-room verification during a campaign:
// every device in a room is reported found or not found, and each outcome is
// folded into the record history in one atomic transaction per room.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gorm.io/gorm"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
	"github.com/dlcdb/dlcdb/pkg/audit"
	"github.com/dlcdb/dlcdb/pkg/tenancy"
)

// Outcome is the per-device verdict entered during a room walk-through.
type Outcome string

const (
	// OutcomeFound reconfirms the device in the verified room.
	OutcomeFound Outcome = "dev_state_found"
	// OutcomeNotFound reports the device missing from the verified room.
	OutcomeNotFound Outcome = "dev_state_notfound"
)

// ErrUnknownOutcome is returned for a verdict outside the two-value
// vocabulary. This is a programming error in the caller, never user input, so
// it fails the whole room verification.
var ErrUnknownOutcome = errors.New("unknown inventory outcome")

// lostNote is the note text attached to records of devices reported missing.
const lostNote = "not found during inventory verification"

// Result carries the aggregate outcome of one room verification.
type Result struct {
	Found  int
	Parked int
	Lost   int
}

// Verifier applies room verification verdicts against the record history.
type Verifier struct {
	db     *gorm.DB
	engine *lifecycle.Engine
	audits *audit.Store
	logger *slog.Logger
}

// NewVerifier creates a verifier over the given database handle.
func NewVerifier(db *gorm.DB, engine *lifecycle.Engine, audits *audit.Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{db: db, engine: engine, audits: audits, logger: logger}
}

// VerifyRoom folds the verdict map for one room into the record history:
//
//   - found: the active record is reconfirmed in the room via a copy
//     transition, stamped with the campaign.
//   - not found, active loan: the device is expected to be elsewhere, so the
//     loan is parked in the external room instead of being declared lost, and
//     a cautionary note is attached. Repeating the verdict is idempotent.
//   - not found otherwise: a LOST record is created, stamped with the
//     campaign.
//
// The whole room runs in one transaction; one bad verdict rolls back all of
// them. There must be an active campaign.
func (v *Verifier) VerifyRoom(ctx context.Context, roomID uint, outcomes map[string]Outcome, tenant, actor string) (*Result, error) {
	if tc, ok := tenancy.TenantFromContext(ctx); ok {
		if tenant == "" {
			tenant = tc.Tenant
		}
		if actor == "" {
			actor = tc.Actor
		}
	}

	result := &Result{}

	err := v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := service.NewUserRepository(tx).GetByUsername(ctx, actor); err != nil {
			return err
		}
		campaign, err := service.NewInventoryRepository(tx).Active(ctx)
		if err != nil {
			return err
		}
		if _, err := service.NewRoomRepository(tx).GetByID(ctx, roomID); err != nil {
			return err
		}

		for deviceUUID, outcome := range outcomes {
			if err := v.applyOutcome(ctx, tx, campaign, deviceUUID, outcome, roomID, actor, result); err != nil {
				return fmt.Errorf("device %s: %w", deviceUUID, err)
			}
		}

		return v.audits.WithTx(tx).Record(&audit.Event{
			Tenant:       tenant,
			Actor:        actor,
			Action:       audit.ActionInventoryRun,
			ResourceType: "room",
			ResourceID:   fmt.Sprint(roomID),
			Message: fmt.Sprintf("room %d verified: %d found, %d parked, %d lost",
				roomID, result.Found, result.Parked, result.Lost),
		})
	})
	if err != nil {
		return nil, err
	}

	v.logger.Info("room verified",
		"room", roomID,
		"actor", actor,
		"found", result.Found,
		"parked", result.Parked,
		"lost", result.Lost)
	return result, nil
}

// applyOutcome folds one verdict into the record history.
func (v *Verifier) applyOutcome(ctx context.Context, tx *gorm.DB, campaign *models.Inventory, deviceUUID string, outcome Outcome, roomID uint, actor string, result *Result) error {
	engine := v.engine.WithTx(tx)

	switch outcome {
	case OutcomeFound:
		if _, err := engine.CloneTransition(ctx, deviceUUID, actor, roomID, &campaign.ID); err != nil {
			return err
		}
		result.Found++
		return nil

	case OutcomeNotFound:
		active, err := engine.GetActiveRecord(ctx, deviceUUID)
		if err != nil {
			return err
		}
		if active != nil && active.Type == models.RecordLent {
			return v.parkLoan(ctx, tx, campaign, active, deviceUUID, result)
		}
		if _, err := engine.CreateRecord(ctx, deviceUUID, actor, lifecycle.Lost{
			Note:        lostNote,
			InventoryID: &campaign.ID,
		}); err != nil {
			return err
		}
		result.Lost++
		return nil

	default:
		return fmt.Errorf("%q: %w", outcome, ErrUnknownOutcome)
	}
}

// parkLoan moves a missing but lent device into the external room instead of
// declaring it lost, and attaches a cautionary note keyed by (device,
// campaign, room) so repeating the verdict changes nothing.
func (v *Verifier) parkLoan(ctx context.Context, tx *gorm.DB, campaign *models.Inventory, active *models.Record, deviceUUID string, result *Result) error {
	external, err := service.NewRoomRepository(tx).ExternalRoom(ctx)
	if err != nil {
		return err
	}

	if active.RoomID == nil || *active.RoomID != external.ID {
		if err := tx.Model(&models.Record{}).Where("id = ?", active.ID).
			Updates(map[string]any{"room_id": external.ID, "inventory_id": campaign.ID}).Error; err != nil {
			return fmt.Errorf("parking loan: %w", err)
		}
	}

	note := fmt.Sprintf("device was not found in its room during inventory %q; the active loan was parked in room %s",
		campaign.Name, external.Number)
	if _, err := service.NewNoteRepository(tx).Append(ctx, deviceUUID, &campaign.ID, &external.ID, note); err != nil {
		return err
	}

	result.Parked++
	return nil
}

// MissingAfterCampaign lists devices in the given tenant whose active record
// was not touched by the campaign, the candidate set for a follow-up sweep.
func (v *Verifier) MissingAfterCampaign(ctx context.Context, campaignID uint, tenant string) ([]models.Device, error) {
	var devices []models.Device
	q := v.db.WithContext(ctx).Model(&models.Device{}).
		Where("deleted_at IS NULL").
		Where("active_record_id IS NOT NULL").
		Where("active_record_id NOT IN (?)",
			v.db.Model(&models.Record{}).Select("id").Where("inventory_id = ?", campaignID)).
		Where("active_record_id NOT IN (?)",
			v.db.Model(&models.Record{}).Select("id").Where("record_type = ?", models.RecordRemoved))
	if tenant != "" {
		q = q.Where("tenant = ?", tenant)
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("listing unverified devices: %w", err)
	}
	// Stable output for reports.
	sort.Slice(devices, func(i, j int) bool { return devices[i].UUID < devices[j].UUID })
	return devices, nil
}
