package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dlcdb/dlcdb/internal/db/models"
	"github.com/dlcdb/dlcdb/internal/db/service"
)

var (
	devicesRecordType string
	devicesLentable   bool
	devicesLimit      int
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		filter := service.DeviceListFilter{Tenant: tenant}
		if devicesRecordType != "" {
			filter.RecordType = models.RecordType(devicesRecordType)
		}
		if cmd.Flags().Changed("lentable") {
			filter.Lentable = &devicesLentable
		}

		devices, err := service.NewDeviceRepository(a.db).List(cmd.Context(), filter, devicesLimit)
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(devices)
		}

		rows := make([][]string, 0, len(devices))
		for _, d := range devices {
			edvID, sapID := "", ""
			if d.EdvID != nil {
				edvID = *d.EdvID
			}
			if d.SapID != nil {
				sapID = *d.SapID
			}
			rows = append(rows, []string{
				d.UUID,
				orDash(edvID),
				orDash(sapID),
				orDash(d.SerialNumber),
				orDash(d.Series),
				d.CreatedAt.Format(time.DateOnly),
			})
		}
		printTable([]string{"uuid", "edv-id", "sap-id", "serial", "series", "created"}, rows)
		return nil
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <device-uuid>",
	Short: "Show the active record of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		rec, err := a.engine.GetActiveRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			cmd.Println("device has no record yet")
			return nil
		}

		if outputFmt != "table" {
			return printOutput(rec)
		}
		printTable(
			[]string{"id", "kind", "created", "by", "note"},
			[][]string{{
				itoa(rec.ID),
				string(rec.Type),
				rec.CreatedAt.Format(time.DateOnly),
				orDash(rec.CreatedBy),
				orDash(rec.Note),
			}},
		)
		return nil
	},
}

func init() {
	devicesCmd.Flags().StringVar(&devicesRecordType, "record-type", "", "Filter by active record kind (ORDERED, INROOM, LENT, LOST, REMOVED)")
	devicesCmd.Flags().BoolVar(&devicesLentable, "lentable", false, "Filter by lentable flag")
	devicesCmd.Flags().IntVar(&devicesLimit, "limit", 50, "Maximum number of devices to list")
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(recordCmd)
}
