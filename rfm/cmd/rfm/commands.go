package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
	"github.com/obsidianstack/rfmstack/rfm/internal/runner"
)

var runFlags struct {
	referenceDate string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score customers once and write the reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(rootFlags.configPath)
		if err != nil {
			return err
		}
		opts, err := runOptions(runFlags.referenceDate)
		if err != nil {
			return err
		}
		_, err = runner.Run(cmd.Context(), cfg, opts)
		return err
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run once, then re-run whenever the config or CSV inputs change",
	Long: `watch runs once, then re-runs on every change of the config file or of
the CSV inputs it names, including inputs replaced by rename. Edits that
point the config at different input files are followed. --reference-date
applies to every run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(rootFlags.configPath)
		if err != nil {
			return err
		}
		opts, err := runOptions(runFlags.referenceDate)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		runLogged(ctx, cfg, opts)

		err = config.Watch(ctx, rootFlags.configPath, func(updated *config.Config) {
			runLogged(ctx, updated, opts)
		})
		slog.Info("rfm: watch stopped")
		return err
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and segment rules without reading data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(rootFlags.configPath)
		if err != nil {
			return err
		}
		rules := cfg.Analysis.Rules()
		if rules == nil {
			rules = compute.DefaultRules
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config %s is valid: source=%s window=%s segments=%d\n",
			rootFlags.configPath, cfg.Source.Type, cfg.Analysis.Params().Window, len(rules))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, watchCmd} {
		c.Flags().StringVar(&runFlags.referenceDate, "reference-date", "",
			"reference date (YYYY-MM-DD) for recency; overrides the config")
	}
	rootCmd.AddCommand(runCmd, watchCmd, validateCmd)
}

func runOptions(referenceDate string) (runner.Options, error) {
	var opts runner.Options
	if referenceDate == "" {
		return opts, nil
	}
	d, err := config.ParseDate(referenceDate)
	if err != nil {
		return opts, fmt.Errorf("%w: --reference-date: %w", compute.ErrConfiguration, err)
	}
	opts.ReferenceDate = d.Time
	return opts, nil
}

// runLogged runs once in watch mode, where a failed run is logged and the
// watcher keeps going.
func runLogged(ctx context.Context, cfg *config.Config, opts runner.Options) {
	if _, err := runner.Run(ctx, cfg, opts); err != nil {
		slog.Error("rfm: run failed", "err", err)
	}
}
