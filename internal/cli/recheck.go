package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

func newRecheckCmd(configPath *string) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "recheck-achievements",
		Short: "Unlock achievements retroactively for every learner",
		Long: "Runs the achievement check for every learner with progression, for example " +
			"after new achievements were added to the catalog. Failures are reported per learner.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecheck(cmd.Context(), cmd.OutOrStdout(), *configPath, concurrency)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "learners checked in parallel (overrides gamification.recheck_concurrency)")
	return cmd
}

func runRecheck(ctx context.Context, out io.Writer, configPath string, concurrency int) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.UsesPostgres() {
		return errNoDatabase
	}
	if concurrency <= 0 {
		concurrency = cfg.Gamification.RecheckConcurrency
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.ledger.RecheckAll(ctx, concurrency)
	if err != nil {
		return err
	}
	log.Info("achievement recheck finished",
		slog.Int("processed", report.Processed),
		slog.Int("unlocks", report.Unlocks),
		slog.Int("failures", len(report.Failures)))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
