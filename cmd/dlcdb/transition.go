package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/lifecycle"
	"github.com/dlcdb/dlcdb/pkg/audit"
)

var (
	transitionRoom  string
	transitionNote  string
	lendPersonEmail string
	lendStart       string
	lendUntil       string
	deleteReason    string
)

// resolveActor checks the --actor username against the users table so direct
// transitions carry the same operator accountability as batch runs.
func resolveActor(cmd *cobra.Command, a *app) (*models.User, error) {
	if actor == "" {
		return nil, fmt.Errorf("an acting username is required; pass --actor or set DLCDB_ACTOR")
	}
	return service.NewUserRepository(a.db).GetByUsername(cmd.Context(), actor)
}

func auditRecord(a *app, rec *models.Record, message string) error {
	return a.audits.Record(&audit.Event{
		Tenant:       tenant,
		Actor:        actor,
		Action:       audit.ActionRecordCreated,
		ResourceType: "record",
		ResourceID:   itoa(rec.ID),
		Message:      message,
	})
}

var moveCmd = &cobra.Command{
	Use:   "move <device-uuid>",
	Short: "Place a device in a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := resolveActor(cmd, a); err != nil {
			return err
		}

		room, err := service.NewRoomRepository(a.db).GetByNumber(cmd.Context(), transitionRoom)
		if err != nil {
			return err
		}

		rec, err := a.engine.CreateRecord(cmd.Context(), args[0], actor, lifecycle.InRoom{
			RoomID: room.ID,
			Note:   transitionNote,
		})
		if err != nil {
			return err
		}
		if err := auditRecord(a, rec, fmt.Sprintf("device %s moved to room %s", args[0], room.Number)); err != nil {
			return err
		}
		cmd.Printf("device %s is now in room %s (record %s)\n", args[0], room.Number, itoa(rec.ID))
		return nil
	},
}

var lendCmd = &cobra.Command{
	Use:   "lend <device-uuid>",
	Short: "Lend a device to a person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := resolveActor(cmd, a); err != nil {
			return err
		}

		start := time.Now().UTC()
		if lendStart != "" {
			if start, err = time.Parse(time.DateOnly, lendStart); err != nil {
				return fmt.Errorf("parsing --start: %w", err)
			}
		}
		until, err := time.Parse(time.DateOnly, lendUntil)
		if err != nil {
			return fmt.Errorf("parsing --until: %w", err)
		}

		person, err := service.NewPersonRepository(a.db).GetOrCreateByEmail(cmd.Context(), lendPersonEmail)
		if err != nil {
			return err
		}

		warnings, err := a.engine.LendingWarnings(cmd.Context(), person.ID, until)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			cmd.Printf("warning: %s\n", w)
		}

		rec, err := a.engine.CreateRecord(cmd.Context(), args[0], actor, lifecycle.Lent{
			PersonID:       person.ID,
			StartDate:      start,
			DesiredEndDate: until,
			Note:           transitionNote,
		})
		if err != nil {
			return err
		}
		if err := auditRecord(a, rec, fmt.Sprintf("device %s lent to %s until %s", args[0], person.Email, until.Format(time.DateOnly))); err != nil {
			return err
		}
		cmd.Printf("device %s lent to %s (record %s)\n", args[0], person.Email, itoa(rec.ID))
		return nil
	},
}

var returnCmd = &cobra.Command{
	Use:   "return <device-uuid>",
	Short: "Return a lent device",
	Long: `Close the active loan of a device and place it back in a room. Without
--room the device lands in the flagged auto-return room.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := resolveActor(cmd, a); err != nil {
			return err
		}

		var roomID *uint
		if transitionRoom != "" {
			room, err := service.NewRoomRepository(a.db).GetByNumber(cmd.Context(), transitionRoom)
			if err != nil {
				return err
			}
			roomID = &room.ID
		}

		rec, err := a.engine.Return(cmd.Context(), args[0], actor, roomID, transitionNote)
		if err != nil {
			return err
		}
		if err := auditRecord(a, rec, fmt.Sprintf("device %s returned", args[0])); err != nil {
			return err
		}
		cmd.Printf("device %s returned (record %s)\n", args[0], itoa(rec.ID))
		return nil
	},
}

var lostCmd = &cobra.Command{
	Use:   "lost <device-uuid>",
	Short: "Mark a device as lost",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := resolveActor(cmd, a); err != nil {
			return err
		}

		rec, err := a.engine.CreateRecord(cmd.Context(), args[0], actor, lifecycle.Lost{Note: transitionNote})
		if err != nil {
			return err
		}
		if err := auditRecord(a, rec, fmt.Sprintf("device %s marked lost", args[0])); err != nil {
			return err
		}
		cmd.Printf("device %s marked lost (record %s)\n", args[0], itoa(rec.ID))
		return nil
	},
}

var deleteDeviceCmd = &cobra.Command{
	Use:   "delete <device-uuid>",
	Short: "Soft-delete a device",
	Long: `Mark a device as deleted. The device keeps its identifiers (so EDV-ID
uniqueness still holds) but disappears from lookups and lists, and no further
records can be created for it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if _, err := resolveActor(cmd, a); err != nil {
			return err
		}

		if err := service.NewDeviceRepository(a.db).SoftDelete(cmd.Context(), args[0], actor); err != nil {
			return err
		}
		if err := a.audits.Record(&audit.Event{
			Tenant:       tenant,
			Actor:        actor,
			Action:       audit.ActionDeviceDeleted,
			ResourceType: "device",
			ResourceID:   args[0],
			Message:      deleteReason,
		}); err != nil {
			return err
		}
		cmd.Printf("device %s deleted\n", args[0])
		return nil
	},
}

func init() {
	moveCmd.Flags().StringVar(&transitionRoom, "room", "", "Room number (required)")
	moveCmd.Flags().StringVar(&transitionNote, "note", "", "Note on the new record")
	_ = moveCmd.MarkFlagRequired("room")

	lendCmd.Flags().StringVar(&lendPersonEmail, "person", "", "Email address of the borrower (required)")
	lendCmd.Flags().StringVar(&lendStart, "start", "", "Loan start date YYYY-MM-DD (defaults to today)")
	lendCmd.Flags().StringVar(&lendUntil, "until", "", "Desired loan end date YYYY-MM-DD (required)")
	lendCmd.Flags().StringVar(&transitionNote, "note", "", "Note on the new record")
	_ = lendCmd.MarkFlagRequired("person")
	_ = lendCmd.MarkFlagRequired("until")

	returnCmd.Flags().StringVar(&transitionRoom, "room", "", "Room number (defaults to the auto-return room)")
	returnCmd.Flags().StringVar(&transitionNote, "note", "", "Note on the new record")

	lostCmd.Flags().StringVar(&transitionNote, "note", "", "Note on the new record")

	deleteDeviceCmd.Flags().StringVar(&deleteReason, "reason", "", "Why the device is deleted")

	rootCmd.AddCommand(moveCmd, lendCmd, returnCmd, lostCmd)
	devicesCmd.AddCommand(deleteDeviceCmd)
}
