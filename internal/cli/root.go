// Package cli holds the cobra commands of the rhythmcheck binary.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/rhythmcheck/backend/internal/config"
	"github.com/rhythmcheck/backend/internal/logger"
	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "rhythmcheck",
		Short:        "ECG interpretation grading and progression service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config (optional)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	cmd.AddCommand(newRecheckCmd(&configPath))
	cmd.AddCommand(newIssueTokenCmd(&configPath))
	return cmd
}

// loadConfig reads process config and installs the configured logger.
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Setup(cfg.Server.LogLevel), nil
}
