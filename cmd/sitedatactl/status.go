package main

import (
	"context"

	"portfolio-sync/internal/di"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Pull from the cloud and report the sync state",
	Long: `Run the same initial pull a starting server runs and print the
reconciler phase with the state of every collection. Without MONGODB_URI
the phase is "disabled".`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSurface(cmd, func(ctx context.Context, c *di.Container) error {
		if err := c.SiteData.SyncAndStart(ctx); err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), c.SiteData.Status())
	})
}
