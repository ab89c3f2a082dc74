package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rhythmcheck/backend/internal/database"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("database.url is not configured")

func newMigrateCmd(configPath *string) *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies every pending migration, or rolls back --down steps when given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath, down)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back instead of applying")
	return cmd
}

func runMigrations(ctx context.Context, configPath string, down int) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.UsesPostgres() {
		return errNoDatabase
	}

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if down > 0 {
		if err := database.MigrateDown(db, down); err != nil {
			return err
		}
		log.Info("migrations rolled back", slog.Int("steps", down))
		return nil
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
