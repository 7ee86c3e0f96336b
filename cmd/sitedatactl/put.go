package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/sitedata/domain/model"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <key> --file <path>",
	Short: "Replace a collection",
	Long: `Replace a whole collection with the JSON in --file ("-" reads stdin).

PROFILE takes an object, every other key an array. Missing optional fields
are filled in. When a cloud store is configured the command first pulls,
then writes, and waits for the push before exiting.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: keyNames(),
	RunE:      runPut,
}

var putFile string

func init() {
	putCmd.Flags().StringVarP(&putFile, "file", "f", "", "JSON file to write (- for stdin)")
	putCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	key, err := model.ParseCollectionKey(args[0])
	if err != nil {
		return err
	}
	raw, err := readInput(cmd, putFile)
	if err != nil {
		return err
	}
	snap, err := model.DecodeInput(key, raw)
	if err != nil {
		return err
	}

	return withSurface(cmd, func(ctx context.Context, c *di.Container) error {
		site := c.SiteData
		if err := site.SyncAndStart(ctx); err != nil {
			return err
		}
		if err := site.Store.Save(ctx, key, snap); err != nil {
			return err
		}
		site.Reconciler.Drain()

		return writeOutput(cmd.OutOrStdout(), map[string]interface{}{
			"key":     key,
			"records": site.Store.Load(ctx, key).Len(),
			"sync":    site.Status().Collections[key],
		})
	})
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}
