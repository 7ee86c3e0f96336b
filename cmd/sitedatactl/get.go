package main

import (
	"context"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/sitedata/domain/model"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a collection",
	Long: `Print one collection in display order as the local medium holds it.

Keys: PROFILE, PROJECTS, EXPERIENCES, INTERVIEWS, MESSAGES, CATEGORIES
(case-insensitive). A collection never written prints its seed.

  --sync   pull from the cloud first, as a starting server would

Guestbook messages are printed unmasked.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: keyNames(),
	RunE:      runGet,
}

var getSync bool

func init() {
	getCmd.Flags().BoolVar(&getSync, "sync", false, "pull from the cloud before reading")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	key, err := model.ParseCollectionKey(args[0])
	if err != nil {
		return err
	}
	return withSurface(cmd, func(ctx context.Context, c *di.Container) error {
		if getSync {
			if err := c.SiteData.SyncAndStart(ctx); err != nil {
				return err
			}
		}
		return writeOutput(cmd.OutOrStdout(), model.Sorted(c.SiteData.Store.Load(ctx, key)))
	})
}

func keyNames() []string {
	keys := model.AllKeys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}
