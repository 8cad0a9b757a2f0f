package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/inventory"
)

var (
	inventorizeRoom     string
	inventorizeFound    []string
	inventorizeNotFound []string
)

var inventorizeCmd = &cobra.Command{
	Use:   "inventorize",
	Short: "Record the verification verdicts for one room",
	Long: `Folds a room walk-through into the record history. Devices reported found
are reconfirmed in the room; devices reported not found become LOST,
except active loans, which are parked in the external room with a note.
Requires an active inventory campaign.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		room, err := service.NewRoomRepository(a.db).GetByNumber(cmd.Context(), inventorizeRoom)
		if err != nil {
			return err
		}

		outcomes := map[string]inventory.Outcome{}
		for _, uuid := range inventorizeFound {
			outcomes[uuid] = inventory.OutcomeFound
		}
		for _, uuid := range inventorizeNotFound {
			if _, ok := outcomes[uuid]; ok {
				return fmt.Errorf("device %s is listed both found and not found", uuid)
			}
			outcomes[uuid] = inventory.OutcomeNotFound
		}
		if len(outcomes) == 0 {
			return fmt.Errorf("no verdicts given; pass --found and/or --not-found")
		}

		verifier := inventory.NewVerifier(a.db, a.engine, a.audits, a.logger)
		result, err := verifier.VerifyRoom(cmd.Context(), room.ID, outcomes, tenant, actor)
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(result)
		}
		fmt.Printf("room %s verified: %d found, %d parked, %d lost\n",
			room.Number, result.Found, result.Parked, result.Lost)
		return nil
	},
}

func init() {
	inventorizeCmd.Flags().StringVar(&inventorizeRoom, "room", "", "Room number being verified (required)")
	inventorizeCmd.Flags().StringSliceVar(&inventorizeFound, "found", nil, "Device UUIDs found in the room")
	inventorizeCmd.Flags().StringSliceVar(&inventorizeNotFound, "not-found", nil, "Device UUIDs missing from the room")
	_ = inventorizeCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(inventorizeCmd)
}
