// Package cli implements slotbookctl, the operator command line for slotbook.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slotbook/backend/internal/app"
	"slotbook/backend/internal/config"
	"slotbook/backend/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "slotbookctl",
		Short:        "Operate a slotbook deployment",
		Long:         `slotbookctl applies database migrations, inspects availability and mints admin tokens for a slotbook deployment.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "slotbookctl version %s\n" .Version}}`)

	root.AddCommand(newMigrateCmd(&logLevel))
	root.AddCommand(newSlotsCmd(&logLevel))
	root.AddCommand(newSweepCmd(&logLevel))
	root.AddCommand(newTokenCmd())
	return root
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// withApp loads config, opens the shared dependencies and hands them to fn.
func withApp(ctx context.Context, logLevel string, fn func(a *app.App) error) error {
	log := logging.New("slotbookctl", logLevel)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", slog.Any("err", err))
		}
	}()
	return fn(a)
}
