package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vitalwatch/internal/app"
)

var (
	showDevice string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent readings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			DeviceID: showDevice,
			Limit:    showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showDevice, "device", "", "Device id (all devices when empty)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of readings to display")
}
