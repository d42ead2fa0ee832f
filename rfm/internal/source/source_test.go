package source

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/rfmstack/rfm/internal/compute"
	"github.com/obsidianstack/rfmstack/rfm/internal/config"
)

func TestNew_UnsupportedType(t *testing.T) {
	if _, err := New(context.Background(), config.Source{Type: "mongo"}); err == nil {
		t.Fatal("expected error for unsupported source type")
	}
}

func TestNew_DatabaseRequiresDSN(t *testing.T) {
	for _, typ := range []string{"postgres", "clickhouse"} {
		t.Run(typ, func(t *testing.T) {
			src := config.Source{Type: typ, DSNEnv: "RFM_TEST_UNSET_DSN"}
			_, err := New(context.Background(), src)
			if err == nil || !strings.Contains(err.Error(), "RFM_TEST_UNSET_DSN") {
				t.Fatalf("err = %v, want mention of the empty env var", err)
			}
		})
	}
}

func TestNew_PostgresBadDSN(t *testing.T) {
	t.Setenv("RFM_TEST_PG_DSN", "postgres://user@localhost:notaport/db")
	_, err := New(context.Background(), config.Source{Type: "postgres", DSNEnv: "RFM_TEST_PG_DSN",
		CustomersTable: "customers", TransactionsTable: "sales_transactions"})
	if err == nil {
		t.Fatal("expected parse error for malformed DSN")
	}
}

func TestPgIdent(t *testing.T) {
	tests := map[string]string{
		"customers":                    `"customers"`,
		"analytics.sales_transactions": `"analytics"."sales_transactions"`,
		`odd"name`:                     `"odd""name"`,
	}
	for in, want := range tests {
		if got := pgIdent(in); got != want {
			t.Errorf("pgIdent(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestChIdent(t *testing.T) {
	tests := map[string]string{
		"customers":        "`customers`",
		"retail.customers": "`retail`.`customers`",
	}
	for in, want := range tests {
		if got := chIdent(in); got != want {
			t.Errorf("chIdent(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestQueries_PushDownWindow(t *testing.T) {
	pg := pgTransactionsQuery(`"sales_transactions"`)
	if !strings.Contains(pg, `FROM "sales_transactions"`) || !strings.Contains(pg, "BETWEEN $1::date AND $2::date") {
		t.Errorf("postgres transactions query missing table or window:\n%s", pg)
	}
	ch := chTransactionsQuery("`sales_transactions`")
	if !strings.Contains(ch, "FROM `sales_transactions`") || !strings.Contains(ch, "BETWEEN toDate(?) AND toDate(?)") {
		t.Errorf("clickhouse transactions query missing table or window:\n%s", ch)
	}
	for _, q := range []string{pgCustomersQuery(`"customers"`), chCustomersQuery("`customers`")} {
		if strings.Contains(q, "WHERE") {
			t.Errorf("customers query must read the whole table:\n%s", q)
		}
	}
}

func TestFromCHRows(t *testing.T) {
	c := fromCHCustomer(chCustomer{ID: "C1", Age: 30, JoinDate: time.Unix(0, 0)})
	if !c.JoinDate.IsZero() {
		t.Errorf("epoch join date should map to zero, got %v", c.JoinDate)
	}

	tx, err := fromCHTransaction(chTransaction{
		ID: "T1", CustomerID: "C1", Quantity: 2,
		UnitPrice: "9.99", TotalAmount: "19.98",
		Date: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("fromCHTransaction: %v", err)
	}
	if tx.Quantity != 2 || tx.TotalAmount.String() != "19.98" {
		t.Errorf("transaction: got %+v", tx)
	}

	for _, total := range []string{"n/a", ""} {
		_, err = fromCHTransaction(chTransaction{ID: "T2", TotalAmount: total})
		if !errors.Is(err, compute.ErrInvalidInput) {
			t.Errorf("total_amount %q: err = %v, want ErrInvalidInput", total, err)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	if d, err := parseDate("  2024-02-29 "); err != nil || d.Day() != 29 {
		t.Errorf("parseDate: got %v, %v", d, err)
	}
	if d, err := parseDate(""); err != nil || !d.IsZero() {
		t.Errorf("parseDate(empty): got %v, %v", d, err)
	}
	if n, err := parseInt("7"); err != nil || n != 7 {
		t.Errorf("parseInt(7): got %d, %v", n, err)
	}
	if n, err := parseInt("3.00"); err != nil || n != 3 {
		t.Errorf("parseInt(3.00): got %d, %v", n, err)
	}
	if m, err := parseMoney(""); err != nil || !m.IsZero() {
		t.Errorf("parseMoney(empty): got %s, %v", m, err)
	}
}
