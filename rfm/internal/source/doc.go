// Package source loads the customers and sales_transactions snapshot that
// feeds the compute engine.
//
// Implemented loaders: CSV files (csv.go), PostgreSQL via pgxpool
// (postgres.go) and ClickHouse via clickhouse-go (clickhouse.go).
// Factory: New(ctx, config.Source) returns the correct Loader.
//
// Database loaders push the analysis window down into the transactions query;
// the CSV loader returns every row and leaves filtering to the engine.
// Malformed values (bad dates, amounts, integers) fail the load with
// compute.ErrInvalidInput.
package source
