package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
)

// Snapshot is a fully materialized, read-only copy of the input tables.
type Snapshot struct {
	Customers    []types.Customer
	Transactions []types.Transaction
}

// Loader is the common interface implemented by every input source.
type Loader interface {
	// Load reads customers and the transactions relevant to w.
	Load(ctx context.Context, w compute.Window) (*Snapshot, error)
	Close() error
}

// New returns the appropriate Loader for the given source configuration.
// Database loaders open their connection pool here and reuse it across loads.
func New(ctx context.Context, src config.Source) (Loader, error) {
	switch src.Type {
	case "csv":
		return &csvLoader{customersPath: src.CustomersPath, transactionsPath: src.TransactionsPath}, nil
	case "postgres":
		return newPostgres(ctx, src)
	case "clickhouse":
		return newClickHouse(src)
	default:
		return nil, fmt.Errorf("source: unsupported type %q", src.Type)
	}
}

// dateLayouts are tried in order when parsing dates from text sources.
var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// parseDate parses a date or timestamp. Empty input yields the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date %q: %w", s, compute.ErrInvalidInput)
}

// parseMoney parses a decimal amount. Empty input yields zero.
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", s, compute.ErrInvalidInput)
	}
	return d, nil
}

// parseInt parses an integer column; "3.0" style values from spreadsheet
// exports are accepted when they carry no fraction. Empty input yields zero.
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("bad integer %q: %w", s, compute.ErrInvalidInput)
	}
	return int(d.IntPart()), nil
}
