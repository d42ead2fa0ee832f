package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultWindowStart       = "2023-01-01"
	DefaultWindowEnd         = "2024-12-31"
	DefaultTimeout           = 5 * time.Minute
	DefaultOutputDir         = "reports"
	DefaultCustomersTable    = "customers"
	DefaultTransactionsTable = "sales_transactions"
	DefaultWebhookRetries    = 3
)

// Config is the top-level rfm configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Source   Source         `yaml:"source"`
	Output   OutputConfig   `yaml:"output"`
}

// AnalysisConfig holds the engine parameters.
type AnalysisConfig struct {
	// WindowStart and WindowEnd bound eligible transaction dates, inclusive.
	WindowStart Date `yaml:"window_start"`
	WindowEnd   Date `yaml:"window_end"`

	// ReferenceDate is "today" for recency. When empty the runner uses the
	// day after the latest eligible transaction.
	ReferenceDate Date `yaml:"reference_date"`

	// MinTransactions is the number of eligible transactions a customer
	// needs to be scored.
	MinTransactions int `yaml:"min_transactions"`

	// Buckets is the number of quantile buckets per RFM dimension.
	Buckets int `yaml:"buckets"`

	// Workers bounds the aggregation worker pool.
	Workers int `yaml:"workers"`

	// Clusters is k for the k-means pass over RFM values; 0 disables it.
	Clusters int `yaml:"clusters"`

	// ClusterSeed fixes k-means initialization so reruns label alike.
	ClusterSeed uint64 `yaml:"cluster_seed"`

	// Timeout is the deadline for one run, loading included.
	Timeout time.Duration `yaml:"timeout"`

	// Segments overrides the default segment rules. Order matters.
	Segments []SegmentRule `yaml:"segments"`
}

// SegmentRule names a segment and its conditions, e.g. "r_score >= 4".
type SegmentRule struct {
	Name       string   `yaml:"name"`
	Conditions []string `yaml:"conditions"`
}

// Source describes where customers and transactions are read from.
type Source struct {
	// Type is one of: csv | postgres | clickhouse.
	Type string `yaml:"type"`

	// CSV fields, used when Type == "csv".
	CustomersPath    string `yaml:"customers_path"`
	TransactionsPath string `yaml:"transactions_path"`

	// Database fields, used when Type is postgres or clickhouse.
	// DSNEnv is the name of the environment variable holding the DSN.
	DSNEnv            string `yaml:"dsn_env"`
	CustomersTable    string `yaml:"customers_table"`
	TransactionsTable string `yaml:"transactions_table"`
}

// DSN returns the connection string resolved from the environment.
// Returns empty string if DSNEnv is unset or the variable is not found.
func (s Source) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// Inputs lists the local files the source reads. Database sources have none.
func (s Source) Inputs() []string {
	if s.Type != "csv" {
		return nil
	}
	var out []string
	for _, p := range []string{s.CustomersPath, s.TransactionsPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	// Dir receives customer_segments.* and segment_profiles.*.
	Dir string `yaml:"dir"`

	// Formats is any of: csv | json.
	Formats []string `yaml:"formats"`

	// MetricsFile, when set, receives a Prometheus textfile with run metrics.
	MetricsFile string `yaml:"metrics_file"`

	// Webhook optionally posts the run summary.
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: http | slack | teams. Empty disables delivery.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`

	// Retries is the number of delivery attempts.
	Retries int `yaml:"retries"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Params converts the analysis settings into engine parameters.
// ReferenceDate is zero when the config leaves it empty.
func (a AnalysisConfig) Params() compute.Params {
	return compute.Params{
		Window:          compute.Window{Start: a.WindowStart.Time, End: a.WindowEnd.Time},
		ReferenceDate:   a.ReferenceDate.Time,
		MinTransactions: a.MinTransactions,
		Buckets:         a.Buckets,
		Workers:         a.Workers,
		Clusters:        a.Clusters,
		ClusterSeed:     a.ClusterSeed,
	}
}

// Rules returns the configured segment rules, or nil to select the defaults.
func (a AnalysisConfig) Rules() []compute.Rule {
	if len(a.Segments) == 0 {
		return nil
	}
	out := make([]compute.Rule, len(a.Segments))
	for i, s := range a.Segments {
		out[i] = compute.Rule{Name: s.Name, Conditions: s.Conditions}
	}
	return out
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			WindowStart:     MustDate(DefaultWindowStart),
			WindowEnd:       MustDate(DefaultWindowEnd),
			MinTransactions: compute.DefaultMinTransactions,
			Buckets:         compute.DefaultBuckets,
			Workers:         compute.DefaultWorkers,
			Clusters:        compute.DefaultClusters,
			ClusterSeed:     compute.DefaultClusterSeed,
			Timeout:         DefaultTimeout,
		},
		Source: Source{
			Type:              "csv",
			CustomersTable:    DefaultCustomersTable,
			TransactionsTable: DefaultTransactionsTable,
		},
		Output: OutputConfig{
			Dir:     DefaultOutputDir,
			Formats: []string{"csv", "json"},
			Webhook: WebhookConfig{Retries: DefaultWebhookRetries},
		},
	}
}

// validate checks required fields and structural constraints. Failures wrap
// compute.ErrConfiguration.
func validate(cfg *Config) error {
	if err := validateAnalysis(cfg.Analysis); err != nil {
		return err
	}

	src := cfg.Source
	switch src.Type {
	case "csv":
		if src.CustomersPath == "" || src.TransactionsPath == "" {
			return fmt.Errorf("%w: source: customers_path and transactions_path are required for csv",
				compute.ErrConfiguration)
		}
	case "postgres", "clickhouse":
		if src.DSNEnv == "" {
			return fmt.Errorf("%w: source: dsn_env is required for %s", compute.ErrConfiguration, src.Type)
		}
		if src.CustomersTable == "" || src.TransactionsTable == "" {
			return fmt.Errorf("%w: source: table names must not be empty", compute.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: source: unknown type %q", compute.ErrConfiguration, src.Type)
	}

	out := cfg.Output
	if out.Dir == "" {
		return fmt.Errorf("%w: output.dir is required", compute.ErrConfiguration)
	}
	for i, f := range out.Formats {
		switch f {
		case "csv", "json":
		default:
			return fmt.Errorf("%w: output.formats[%d]: unknown format %q", compute.ErrConfiguration, i, f)
		}
	}
	switch out.Webhook.Type {
	case "":
	case "http", "slack", "teams":
		if out.Webhook.URLEnv == "" {
			return fmt.Errorf("%w: output.webhook.url_env is required", compute.ErrConfiguration)
		}
		if out.Webhook.Retries < 1 {
			return fmt.Errorf("%w: output.webhook.retries must be positive", compute.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: output.webhook: unknown type %q", compute.ErrConfiguration, out.Webhook.Type)
	}
	return nil
}

func validateAnalysis(a AnalysisConfig) error {
	if a.Timeout <= 0 {
		return fmt.Errorf("%w: analysis.timeout must be positive", compute.ErrConfiguration)
	}
	p := a.Params()
	if p.ReferenceDate.IsZero() {
		// Resolved from the data at run time; satisfy Validate for now.
		p.ReferenceDate = p.Window.End
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	// Compile the rules once here so bad conditions surface at load time.
	if _, err := compute.NewEngine(p, a.Rules()); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return nil
}
