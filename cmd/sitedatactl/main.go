// Package main is the entry point for the sitedatactl operator CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portfolio-sync/internal/di"
	"portfolio-sync/internal/shared/logger"
	siteconfig "portfolio-sync/internal/sitedata/config"
	visitorconfig "portfolio-sync/internal/visitor/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	outputFormat string
	logLevel     string
	logFormat    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sitedatactl",
	Short: "sitedatactl - inspect and edit the portfolio site data",
	Long: `sitedatactl attaches to the same local medium as the site server and
reads or writes the site collections through it. Writes are announced to
every running surface and, when MONGODB_URI is set, pushed to the cloud.

Configuration comes from the environment and an optional .env file, the
same variables the server reads.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateOutputFormat(outputFormat)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("sitedatactl version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatJSON, "output format (json|yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text|json)")
}

// openSurface attaches to the configured media. Tests replace it.
var openSurface = func(ctx context.Context) (*di.Container, error) {
	_ = godotenv.Load()

	siteCfg, err := siteconfig.LoadConfig()
	if err != nil {
		return nil, err
	}
	visitorCfg, err := visitorconfig.LoadConfig()
	if err != nil {
		return nil, err
	}

	c := di.NewContainer(logger.NewLoggerWithOutput(logLevel, logFormat, os.Stderr))
	if err := c.Initialize(ctx, siteCfg, visitorCfg); err != nil {
		return nil, err
	}
	return c, nil
}

// withSurface opens a surface, runs fn and closes the surface again.
func withSurface(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := openSurface(ctx)
	if err != nil {
		return fmt.Errorf("attach to site data: %w", err)
	}
	runErr := fn(ctx, c)
	closeErr := c.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}
