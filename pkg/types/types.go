package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is one row of the customers table.
type Customer struct {
	ID       string
	Age      int
	Gender   string
	Location string
	JoinDate time.Time
}

// Transaction is one row of the sales_transactions table.
type Transaction struct {
	ID          string
	CustomerID  string
	ProductID   string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalAmount decimal.Decimal
	Date        time.Time
}

// Valid reports whether the transaction carries a positive amount and quantity.
func (t Transaction) Valid() bool {
	return t.Quantity > 0 && t.TotalAmount.IsPositive()
}

// Record is the RFM row produced for a single customer.
type Record struct {
	CustomerID string
	Age        int
	Gender     string
	Location   string
	JoinDate   time.Time

	RecencyDays   int
	Frequency     int
	MonetaryValue decimal.Decimal
	AvgOrderValue decimal.Decimal

	FirstPurchase time.Time
	LastPurchase  time.Time

	RecencyScore   int
	FrequencyScore int
	MonetaryScore  int

	// RFMCode concatenates the three scores, e.g. "545".
	RFMCode string
	Segment string

	// Cluster is the k-means cluster over standardized recency, frequency
	// and monetary value. Cluster 0 has the highest average spend.
	Cluster int
}

// SegmentProfile aggregates the records that share a segment name.
type SegmentProfile struct {
	Segment      string
	Customers    int
	Percentage   float64 // share of all scored customers, 0–100
	AvgRecency   float64
	AvgFrequency float64
	AvgMonetary  decimal.Decimal
	AvgAge       float64
}

// CorrelationMatrix holds pairwise Pearson coefficients; Values[i][j]
// correlates Fields[i] with Fields[j].
type CorrelationMatrix struct {
	Fields []string
	Values [][]float64
}

// Summary holds the headline business metrics of one run.
type Summary struct {
	ReferenceDate   time.Time
	Customers       int
	Transactions    int
	TotalRevenue    decimal.Decimal
	AvgOrderValue   decimal.Decimal
	RepeatCustomers int
	RepeatRate      float64 // percentage, 0–100
}
