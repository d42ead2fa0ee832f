package compute

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// Result is everything one run produces.
type Result struct {
	Records     []types.Record
	Profiles    []types.SegmentProfile
	Summary     types.Summary
	Correlation types.CorrelationMatrix
}

// Engine scores customers with a fixed set of parameters and segment rules.
// It holds no mutable state; one Engine may serve concurrent calls.
type Engine struct {
	params Params
	rules  []compiledRule
}

// NewEngine validates p and compiles rules. A nil rules slice selects
// DefaultRules; an empty non-nil slice labels everyone SegmentOthers.
func NewEngine(p Params, rules []Rule) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	if rules == nil {
		rules = DefaultRules
	}
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	return &Engine{params: p, rules: compiled}, nil
}

// Params returns the parameters the engine was built with.
func (e *Engine) Params() Params { return e.params }

// Compute returns one Record per customer with at least MinTransactions
// eligible transactions, sorted by monetary value descending and then by
// customer_id, each labelled with its score code, segment and k-means
// cluster. The inputs are not modified.
//
// ctx is checked before the global scoring sort; a cancelled or expired
// context aborts the run with ctx.Err().
func (e *Engine) Compute(ctx context.Context, customers []types.Customer, txns []types.Transaction) ([]types.Record, error) {
	byID, err := indexCustomers(customers)
	if err != nil {
		return nil, err
	}
	if err := checkTransactions(txns, byID); err != nil {
		return nil, err
	}

	eligible := make([]types.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.Valid() && e.params.Window.Contains(t.Date) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("compute: no eligible transactions in %s: %w", e.params.Window, ErrEmptyResult)
	}

	aggs, err := aggregateByCustomer(ctx, eligible, e.params.Workers)
	if err != nil {
		return nil, err
	}

	recs := make([]*types.Record, 0, len(aggs))
	for id, a := range aggs {
		if a.frequency < e.params.MinTransactions {
			continue
		}
		c := byID[id]
		recs = append(recs, &types.Record{
			CustomerID:    id,
			Age:           c.Age,
			Gender:        c.Gender,
			Location:      c.Location,
			JoinDate:      c.JoinDate,
			RecencyDays:   daysBetween(a.last, e.params.ReferenceDate),
			Frequency:     a.frequency,
			MonetaryValue: a.monetary,
			AvgOrderValue: a.monetary.Div(decimal.NewFromInt(int64(a.frequency))),
			FirstPurchase: a.first,
			LastPurchase:  a.last,
		})
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("compute: no customer reached %d eligible transactions: %w",
			e.params.MinTransactions, ErrEmptyResult)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compute: aborted before scoring: %w", err)
	}

	assignScores(recs, e.params.Buckets)
	for _, r := range recs {
		r.RFMCode = strconv.Itoa(r.RecencyScore) + strconv.Itoa(r.FrequencyScore) + strconv.Itoa(r.MonetaryScore)
		r.Segment = classify(r, e.rules)
	}

	slices.SortFunc(recs, func(a, b *types.Record) int {
		if c := b.MonetaryValue.Cmp(a.MonetaryValue); c != 0 {
			return c
		}
		return strings.Compare(a.CustomerID, b.CustomerID)
	})
	assignClusters(recs, e.params.Clusters, e.params.ClusterSeed)

	out := make([]types.Record, len(recs))
	for i, r := range recs {
		out[i] = *r
	}

	slog.Debug("compute: customers scored",
		"customers", len(out),
		"eligible_transactions", len(eligible),
		"window", e.params.Window.String(),
		"reference_date", Day(e.params.ReferenceDate).Format(time.DateOnly),
	)
	return out, nil
}

// Analyze runs Compute and derives segment profiles, the run summary and
// the RFM correlation matrix.
func (e *Engine) Analyze(ctx context.Context, customers []types.Customer, txns []types.Transaction) (*Result, error) {
	recs, err := e.Compute(ctx, customers, txns)
	if err != nil {
		return nil, err
	}
	return &Result{
		Records:     recs,
		Profiles:    Profiles(recs),
		Summary:     Summarize(recs, e.params.ReferenceDate),
		Correlation: Correlations(recs),
	}, nil
}

// indexCustomers maps customer_id to its Customer, rejecting blank and
// duplicate ids.
func indexCustomers(customers []types.Customer) (map[string]*types.Customer, error) {
	byID := make(map[string]*types.Customer, len(customers))
	for i := range customers {
		c := &customers[i]
		if c.ID == "" {
			return nil, fmt.Errorf("compute: customers[%d]: empty customer_id: %w", i, ErrInvalidInput)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, fmt.Errorf("compute: duplicate customer_id %q: %w", c.ID, ErrInvalidInput)
		}
		byID[c.ID] = c
	}
	return byID, nil
}

// checkTransactions enforces referential integrity and well-formed dates on
// every transaction, eligible or not.
func checkTransactions(txns []types.Transaction, byID map[string]*types.Customer) error {
	for i, t := range txns {
		if t.ID == "" {
			return fmt.Errorf("compute: transactions[%d]: empty transaction_id: %w", i, ErrInvalidInput)
		}
		if t.Date.IsZero() {
			return fmt.Errorf("compute: transaction %q: missing transaction_date: %w", t.ID, ErrInvalidInput)
		}
		if _, ok := byID[t.CustomerID]; !ok {
			return fmt.Errorf("compute: transaction %q references unknown customer %q: %w",
				t.ID, t.CustomerID, ErrInvalidInput)
		}
	}
	return nil
}
