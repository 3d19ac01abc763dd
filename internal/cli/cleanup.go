package cli

import (
	"github.com/spf13/cobra"

	"vitalwatch/internal/app"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete readings older than 24 hours",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Cleanup(cmd.Context(), app.CleanupOptions{DryRun: cleanupDryRun})
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Only count the readings that would be deleted")
}
