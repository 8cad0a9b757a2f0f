package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
	"github.com/dlcdb/dlcdb/internal/inventory"
)

var userAddCmd = &cobra.Command{
	Use:   "useradd <username>",
	Short: "Create an acting operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		user := models.User{Username: args[0], IsActive: true}
		if err := a.db.WithContext(cmd.Context()).Create(&user).Error; err != nil {
			return err
		}
		cmd.Printf("created user %s\n", user.Username)
		return nil
	},
}

var (
	roomFlagAutoReturn bool
	roomFlagExternal   bool
)

var roomFlagCmd = &cobra.Command{
	Use:   "roomflag <number>",
	Short: "Assign a reserved role to a room",
	Long: `Flags a room as the auto-return target for loan returns or as the
external parking room used by inventory verification. Each role is held
by at most one room; flagging moves the role.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		rooms := service.NewRoomRepository(a.db)
		room, err := rooms.GetOrCreateByNumber(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if roomFlagAutoReturn {
			room.IsAutoReturnRoom = true
		}
		if roomFlagExternal {
			room.IsExternal = true
		}
		return rooms.Save(cmd.Context(), room)
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Manage verification campaigns",
}

var inventoryStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a verification campaign, deactivating any other",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		inv := &models.Inventory{Name: args[0], IsActive: true}
		return service.NewInventoryRepository(a.db).Save(cmd.Context(), inv)
	},
}

var inventoryFinishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Finish the active verification campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		repo := service.NewInventoryRepository(a.db)
		inv, err := repo.Active(cmd.Context())
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		inv.IsActive = false
		inv.FinishedAt = &now
		return repo.Save(cmd.Context(), inv)
	},
}

var inventoryMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "List devices the active campaign has not verified yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		campaign, err := service.NewInventoryRepository(a.db).Active(cmd.Context())
		if err != nil {
			return err
		}

		verifier := inventory.NewVerifier(a.db, a.engine, a.audits, a.logger)
		devices, err := verifier.MissingAfterCampaign(cmd.Context(), campaign.ID, tenant)
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(devices)
		}
		rows := make([][]string, 0, len(devices))
		for _, d := range devices {
			edvID := ""
			if d.EdvID != nil {
				edvID = *d.EdvID
			}
			rows = append(rows, []string{d.UUID, orDash(edvID), orDash(d.SerialNumber)})
		}
		printTable([]string{"uuid", "edv-id", "serial"}, rows)
		return nil
	},
}

func init() {
	roomFlagCmd.Flags().BoolVar(&roomFlagAutoReturn, "auto-return", false, "Flag as the auto-return room")
	roomFlagCmd.Flags().BoolVar(&roomFlagExternal, "external", false, "Flag as the external parking room")

	inventoryCmd.AddCommand(inventoryStartCmd)
	inventoryCmd.AddCommand(inventoryFinishCmd)
	inventoryCmd.AddCommand(inventoryMissingCmd)

	rootCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(roomFlagCmd)
	rootCmd.AddCommand(inventoryCmd)
}
