package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obsidianstack/rfmstack/pkg/types"
	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
)

// Pool sizing for a short-lived batch reader.
const (
	pgMaxConns        = 4
	pgConnMaxLifetime = 30 * time.Minute
)

type pgLoader struct {
	pool         *pgxpool.Pool
	customers    string
	transactions string
}

func newPostgres(ctx context.Context, src config.Source) (*pgLoader, error) {
	dsn := src.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("source: postgres: environment variable %q is empty", src.DSNEnv)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("source: postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = pgMaxConns
	cfg.MaxConnLifetime = pgConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("source: postgres: create pool: %w", err)
	}
	return &pgLoader{
		pool:         pool,
		customers:    pgIdent(src.CustomersTable),
		transactions: pgIdent(src.TransactionsTable),
	}, nil
}

// pgIdent quotes a possibly schema-qualified table name.
func pgIdent(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

func pgCustomersQuery(table string) string {
	return fmt.Sprintf(`
		SELECT
			customer_id::text,
			COALESCE(customer_age, 0)::int,
			COALESCE(gender::text, ''),
			COALESCE(location::text, ''),
			join_date::timestamp
		FROM %s`, table)
}

func pgTransactionsQuery(table string) string {
	return fmt.Sprintf(`
		SELECT
			transaction_id::text,
			customer_id::text,
			COALESCE(product_id::text, ''),
			quantity::int,
			COALESCE(unit_price, 0)::text,
			total_amount::text,
			transaction_date::timestamp
		FROM %s
		WHERE transaction_date::date BETWEEN $1::date AND $2::date`, table)
}

func (l *pgLoader) Load(ctx context.Context, w compute.Window) (*Snapshot, error) {
	start := time.Now()
	snap := &Snapshot{}

	rows, err := l.pool.Query(ctx, pgCustomersQuery(l.customers))
	if err != nil {
		return nil, fmt.Errorf("source: postgres: query customers: %w", err)
	}
	for rows.Next() {
		var (
			c    types.Customer
			join *time.Time
		)
		if err := rows.Scan(&c.ID, &c.Age, &c.Gender, &c.Location, &join); err != nil {
			rows.Close()
			return nil, fmt.Errorf("source: postgres: scan customer: %w", err)
		}
		if join != nil {
			c.JoinDate = *join
		}
		snap.Customers = append(snap.Customers, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: postgres: read customers: %w", err)
	}

	rows, err = l.pool.Query(ctx, pgTransactionsQuery(l.transactions),
		compute.Day(w.Start), compute.Day(w.End))
	if err != nil {
		return nil, fmt.Errorf("source: postgres: query transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t            types.Transaction
			price, total string
		)
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.ProductID, &t.Quantity, &price, &total, &t.Date); err != nil {
			return nil, fmt.Errorf("source: postgres: scan transaction: %w", err)
		}
		if t.UnitPrice, err = parseMoney(price); err != nil {
			return nil, fmt.Errorf("source: postgres: transaction %q unit_price: %w", t.ID, err)
		}
		if t.TotalAmount, err = parseMoney(total); err != nil {
			return nil, fmt.Errorf("source: postgres: transaction %q total_amount: %w", t.ID, err)
		}
		snap.Transactions = append(snap.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: postgres: read transactions: %w", err)
	}

	slog.Info("source: postgres snapshot loaded",
		"customers", len(snap.Customers),
		"transactions", len(snap.Transactions),
		"elapsed", time.Since(start),
	)
	return snap, nil
}

func (l *pgLoader) Close() error {
	l.pool.Close()
	return nil
}
