package main

import (
	"context"
	"fmt"
	"sync"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/sitedata/domain/model"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream change notifications until interrupted",
	Long: `Print one record per change notification seen by this surface: writes
from other processes on the same medium and, with a cloud store, remote
changes. A record without a key means every collection may have changed.

  --data   include the changed collection in each record`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchData bool

func init() {
	watchCmd.Flags().BoolVar(&watchData, "data", false, "include collection data")
	rootCmd.AddCommand(watchCmd)
}

// watchRecord is one printed notification.
type watchRecord struct {
	Key    model.CollectionKey `json:"key,omitempty"`
	Source model.ChangeSource  `json:"source"`
	Origin string              `json:"origin,omitempty"`
	At     string              `json:"at"`
	Data   model.Snapshot      `json:"data,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	return withSurface(cmd, func(ctx context.Context, c *di.Container) error {
		var mu sync.Mutex
		out := cmd.OutOrStdout()
		unsubscribe := c.SiteData.Bus.Subscribe(func(_ context.Context, n model.ChangeNotification) {
			rec := watchRecord{
				Key:    n.Key,
				Source: n.Source,
				Origin: n.Origin,
				At:     n.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			}
			if watchData {
				rec.Data = n.Data
			}

			mu.Lock()
			defer mu.Unlock()
			if outputFormat == formatYAML {
				fmt.Fprintln(out, "---")
			}
			if err := writeOutput(out, rec); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		})
		defer unsubscribe()

		c.Start(ctx)
		fmt.Fprintln(cmd.ErrOrStderr(), "watching for changes, Ctrl-C to stop")
		<-ctx.Done()
		return nil
	})
}
