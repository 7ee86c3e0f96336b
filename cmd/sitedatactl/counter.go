package main

import (
	"context"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/visitor/domain/model"

	"github.com/spf13/cobra"
)

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Show the visitor count",
	Long: `Print the site visitor count from the configured counter store.

  --increment   count one visit first (not deduplicated)

success is false when the store could not be reached and the value printed
is the last one this process saw.`,
	Args: cobra.NoArgs,
	RunE: runCounter,
}

var counterIncrement bool

func init() {
	counterCmd.Flags().BoolVar(&counterIncrement, "increment", false, "count one visit")
	rootCmd.AddCommand(counterCmd)
}

type counterOutput struct {
	model.CounterResult
	Path   model.IncrementPath `json:"path"`
	Store  string              `json:"store"`
	Atomic bool                `json:"atomic"`
}

func runCounter(cmd *cobra.Command, args []string) error {
	return withSurface(cmd, func(ctx context.Context, c *di.Container) error {
		v := c.Visitor
		v.Start(ctx)

		var res model.CounterResult
		if counterIncrement {
			res = v.Service.IncrementOnce(ctx)
		} else {
			res = v.Service.Read(ctx)
		}
		return writeOutput(cmd.OutOrStdout(), counterOutput{
			CounterResult: res,
			Path:          res.Path,
			Store:         v.Store,
			Atomic:        v.Service.AtomicAvailable(),
		})
	})
}
