// Command rfm scores customers by recency, frequency and monetary value and
// writes the resulting segmentation reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

var rootFlags struct {
	configPath string
	logLevel   string
	envFile    string
}

var rootCmd = &cobra.Command{
	Use:   "rfm",
	Short: "RFM customer segmentation",
	Long: `rfm reads a snapshot of customers and sales transactions, scores every
customer on recency, frequency and monetary value, labels them with a
segment and writes customer_segments and segment_profiles reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(rootFlags.logLevel); err != nil {
			return err
		}
		return loadEnv(rootFlags.envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file with DSNs and webhook URLs, ignored if missing")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, compute.ErrConfiguration):
		slog.Error("rfm: configuration error", "err", err)
		return exitConfig
	default:
		slog.Error("rfm: failed", "err", err)
		return exitFailed
	}
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("%w: --log-level: %v", compute.ErrConfiguration, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

// loadEnv populates the environment from path. Variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %v", compute.ErrConfiguration, path, err)
	}
	slog.Debug("rfm: environment loaded", "path", path)
	return nil
}

// loadConfig loads the config file; every failure counts as a configuration error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, compute.ErrConfiguration) {
			err = fmt.Errorf("%w: %w", compute.ErrConfiguration, err)
		}
		return nil, err
	}
	slog.Info("rfm: config loaded",
		"path", path,
		"source", cfg.Source.Type,
		"window", cfg.Analysis.Params().Window.String(),
		"output", cfg.Output.Dir,
	)
	return cfg, nil
}
