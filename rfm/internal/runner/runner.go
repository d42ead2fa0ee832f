package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
	"github.com/obsidianstack/rfmstack/rfm/internal/export"
	"github.com/obsidianstack/rfmstack/rfm/internal/metrics"
	"github.com/obsidianstack/rfmstack/rfm/internal/source"
)

// Options adjusts a single run without touching the config.
type Options struct {
	// ReferenceDate overrides analysis.reference_date when non-zero.
	ReferenceDate time.Time

	// Now is the wall clock used for duration and timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Report describes a finished run.
type Report struct {
	Result   *compute.Result
	Files    []string
	Duration time.Duration
}

// Run performs one full recompute under cfg.Analysis.Timeout. Webhook
// failures are logged and do not fail the run.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Report, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	ctx, cancel := context.WithTimeout(ctx, cfg.Analysis.Timeout)
	defer cancel()

	params := cfg.Analysis.Params()
	if !opts.ReferenceDate.IsZero() {
		params.ReferenceDate = opts.ReferenceDate
	}

	loader, err := source.New(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	defer loader.Close()

	snap, err := loader.Load(ctx, params.Window)
	if err != nil {
		return nil, fmt.Errorf("runner: load: %w", err)
	}
	slog.Info("runner: snapshot loaded",
		"source", cfg.Source.Type,
		"customers", len(snap.Customers),
		"transactions", len(snap.Transactions),
	)

	if params.ReferenceDate.IsZero() {
		params.ReferenceDate, err = compute.DefaultReferenceDate(snap.Transactions, params.Window)
		if err != nil {
			return nil, fmt.Errorf("runner: reference date: %w", err)
		}
		slog.Info("runner: reference date derived from data",
			"reference_date", params.ReferenceDate.Format(time.DateOnly))
	}

	engine, err := compute.NewEngine(params, cfg.Analysis.Rules())
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	res, err := engine.Analyze(ctx, snap.Customers, snap.Transactions)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	files, err := export.Write(cfg.Output.Dir, cfg.Output.Formats, res)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	finished := now()
	duration := finished.Sub(started)
	if path := cfg.Output.MetricsFile; path != "" {
		if err := metrics.WriteTextfile(path, metrics.Families(res, duration, finished)); err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		files = append(files, path)
	}

	if err := export.NewNotifier(cfg.Output.Webhook).Notify(ctx, res); err != nil {
		slog.Error("runner: webhook delivery failed", "type", cfg.Output.Webhook.Type, "err", err)
	}

	slog.Info("runner: run complete",
		"customers", res.Summary.Customers,
		"segments", len(res.Profiles),
		"revenue", res.Summary.TotalRevenue.StringFixed(2),
		"duration", duration,
	)
	return &Report{Result: res, Files: files, Duration: duration}, nil
}
