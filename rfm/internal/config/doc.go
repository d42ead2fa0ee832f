// Package config loads and watches the rfm configuration file (config.yaml).
//
// Top-level types:
//   - Config{Analysis, Source, Output}: full config tree parsed from YAML
//   - AnalysisConfig: window_start, window_end, reference_date, min_transactions,
//     buckets, workers, clusters, cluster_seed, timeout, segments [];
//     Params() converts to compute.Params
//   - Source: type (csv|postgres|clickhouse), CSV paths, dsn_env and table names;
//     DSN() resolves the connection string from the environment, Inputs()
//     lists the local files to watch
//   - OutputConfig: dir, formats (csv|json), metrics_file, webhook
//   - Date: YAML scalar in YYYY-MM-DD form
//
// Load(path) reads the YAML file, applies defaults (window 2023-01-01..2024-12-31,
// 5 buckets, 1 minimum transaction, 4 workers, csv+json output in ./reports),
// then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect changes to the config
// file or the CSV inputs it names and calls onChange with the freshly parsed
// Config. It watches parent directories rather than files, so inputs replaced
// by rename (atomic save in vim, VS Code or export jobs) stay tracked, and it
// follows input paths that change between reloads.
package config
