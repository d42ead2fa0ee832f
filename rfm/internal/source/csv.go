package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/obsidianstack/rfmstack/pkg/types"
	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
)

// ctxCheckEvery is how many rows are read between context checks.
const ctxCheckEvery = 4096

// Column names, matching the customers_data.csv and transactions_data.csv exports.
var (
	customerColumns    = []string{"customer_id", "customer_age", "gender", "location", "join_date"}
	customerRequired   = []string{"customer_id"}
	transactionColumns = []string{"transaction_id", "customer_id", "product_id", "quantity",
		"unit_price", "total_amount", "transaction_date"}
	transactionRequired = []string{"transaction_id", "customer_id", "quantity", "total_amount", "transaction_date"}

	// columnAliases maps alternative header spellings to canonical names.
	columnAliases = map[string]string{"age": "customer_age"}
)

type csvLoader struct {
	customersPath    string
	transactionsPath string
}

// Load reads both files completely. The window is not applied here; the
// engine filters, so referential checks see every transaction.
func (l *csvLoader) Load(ctx context.Context, _ compute.Window) (*Snapshot, error) {
	customers, err := readCustomers(ctx, l.customersPath)
	if err != nil {
		return nil, err
	}
	txns, err := readTransactions(ctx, l.transactionsPath)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Customers: customers, Transactions: txns}, nil
}

func (l *csvLoader) Close() error { return nil }

func readCustomers(ctx context.Context, path string) ([]types.Customer, error) {
	var out []types.Customer
	err := readCSV(ctx, path, customerColumns, customerRequired, func(line int, col func(string) string) error {
		age, err := parseInt(col("customer_age"))
		if err != nil {
			return fmt.Errorf("customer_age: %w", err)
		}
		join, err := parseDate(col("join_date"))
		if err != nil {
			return fmt.Errorf("join_date: %w", err)
		}
		out = append(out, types.Customer{
			ID:       strings.TrimSpace(col("customer_id")),
			Age:      age,
			Gender:   strings.TrimSpace(col("gender")),
			Location: strings.TrimSpace(col("location")),
			JoinDate: join,
		})
		return nil
	})
	return out, err
}

func readTransactions(ctx context.Context, path string) ([]types.Transaction, error) {
	var out []types.Transaction
	err := readCSV(ctx, path, transactionColumns, transactionRequired, func(line int, col func(string) string) error {
		if err := requireValues(col, "quantity", "total_amount", "transaction_date"); err != nil {
			return err
		}
		qty, err := parseInt(col("quantity"))
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		price, err := parseMoney(col("unit_price"))
		if err != nil {
			return fmt.Errorf("unit_price: %w", err)
		}
		total, err := parseMoney(col("total_amount"))
		if err != nil {
			return fmt.Errorf("total_amount: %w", err)
		}
		date, err := parseDate(col("transaction_date"))
		if err != nil {
			return fmt.Errorf("transaction_date: %w", err)
		}
		out = append(out, types.Transaction{
			ID:          strings.TrimSpace(col("transaction_id")),
			CustomerID:  strings.TrimSpace(col("customer_id")),
			ProductID:   strings.TrimSpace(col("product_id")),
			Quantity:    qty,
			UnitPrice:   price,
			TotalAmount: total,
			Date:        date,
		})
		return nil
	})
	return out, err
}

// readCSV opens path, maps the header onto known columns and calls row for
// every data line. col returns "" for columns absent from the file.
func readCSV(ctx context.Context, path string, known, required []string,
	row func(line int, col func(string) string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("source: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("source: %s: missing header: %w", path, compute.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("source: %s: read header: %w", path, err)
	}
	index := headerIndex(header, known)
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("source: %s: missing column %q: %w", path, name, compute.ErrInvalidInput)
		}
	}

	var rec []string
	col := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	for line := 2; ; line++ {
		if line%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("source: %s: %w", path, err)
			}
		}
		rec, err = r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("source: %s: %w: %v", path, compute.ErrInvalidInput, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if err := row(line, col); err != nil {
			return fmt.Errorf("source: %s line %d: %w", path, line, err)
		}
	}
}

// requireValues rejects rows where any of the named columns is blank.
func requireValues(col func(string) string, names ...string) error {
	for _, name := range names {
		if strings.TrimSpace(col(name)) == "" {
			return fmt.Errorf("%s: empty value: %w", name, compute.ErrInvalidInput)
		}
	}
	return nil
}

// headerIndex maps canonical column names to their position in header.
// Matching ignores case, surrounding whitespace and a UTF-8 BOM.
func headerIndex(header, known []string) map[string]int {
	want := make(map[string]bool, len(known))
	for _, k := range known {
		want[k] = true
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if _, seen := index[name]; want[name] && !seen {
			index[name] = i
		}
	}
	return index
}
