package main

import (
	"context"
	"errors"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/sitedata/domain/model"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset [key...] | --all",
	Short: "Drop local collections back to their seeds",
	Long: `Delete the locally stored value of the named collections, or of every
collection with --all, so the next read returns the seed. Running surfaces
are told to reload. The cloud copy is left alone; a server that starts
afterwards pulls it back.`,
	ValidArgs: keyNames(),
	RunE:      runReset,
}

var resetAll bool

func init() {
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "reset every collection")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if resetAll == (len(args) > 0) {
		return errors.New("name the collections to reset or pass --all, not both")
	}

	var keys []model.CollectionKey
	for _, arg := range args {
		key, err := model.ParseCollectionKey(arg)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	if resetAll {
		keys = model.AllKeys()
	}

	return withSurface(cmd, func(ctx context.Context, c *di.Container) error {
		if err := c.SiteData.Store.Reset(ctx, keys...); err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), map[string]interface{}{"reset": keys})
	})
}
