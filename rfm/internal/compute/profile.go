package compute

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// Profiles rolls records up per segment, sorted by segment name.
func Profiles(recs []types.Record) []types.SegmentProfile {
	if len(recs) == 0 {
		return nil
	}

	type acc struct {
		n                  int
		recency, freq, age int
		monetary           decimal.Decimal
	}
	bySeg := make(map[string]*acc)
	for _, r := range recs {
		a, ok := bySeg[r.Segment]
		if !ok {
			a = &acc{}
			bySeg[r.Segment] = a
		}
		a.n++
		a.recency += r.RecencyDays
		a.freq += r.Frequency
		a.age += r.Age
		a.monetary = a.monetary.Add(r.MonetaryValue)
	}

	total := float64(len(recs))
	out := make([]types.SegmentProfile, 0, len(bySeg))
	for name, a := range bySeg {
		n := float64(a.n)
		out = append(out, types.SegmentProfile{
			Segment:      name,
			Customers:    a.n,
			Percentage:   n / total * 100,
			AvgRecency:   float64(a.recency) / n,
			AvgFrequency: float64(a.freq) / n,
			AvgMonetary:  a.monetary.Div(decimal.NewFromInt(int64(a.n))).Round(2),
			AvgAge:       float64(a.age) / n,
		})
	}
	slices.SortFunc(out, func(a, b types.SegmentProfile) int {
		return strings.Compare(a.Segment, b.Segment)
	})
	return out
}

// Summarize computes the headline metrics over scored records.
func Summarize(recs []types.Record, reference time.Time) types.Summary {
	s := types.Summary{ReferenceDate: Day(reference), Customers: len(recs)}
	for _, r := range recs {
		s.Transactions += r.Frequency
		s.TotalRevenue = s.TotalRevenue.Add(r.MonetaryValue)
		if r.Frequency > 1 {
			s.RepeatCustomers++
		}
	}
	if s.Transactions > 0 {
		s.AvgOrderValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(s.Transactions))).Round(2)
	}
	if s.Customers > 0 {
		s.RepeatRate = float64(s.RepeatCustomers) / float64(s.Customers) * 100
	}
	return s
}

// CorrelationFields are the record values Correlations compares, in order.
var CorrelationFields = []string{"recency_days", "frequency", "monetary_value", "customer_age"}

// Correlations returns the Pearson correlation matrix of recency, frequency,
// monetary value and age. A coefficient involving a constant column is
// undefined and reported as 0.
func Correlations(recs []types.Record) types.CorrelationMatrix {
	cols := make([][]float64, len(CorrelationFields))
	for i := range cols {
		cols[i] = make([]float64, len(recs))
	}
	for j, r := range recs {
		cols[0][j] = float64(r.RecencyDays)
		cols[1][j] = float64(r.Frequency)
		cols[2][j] = r.MonetaryValue.InexactFloat64()
		cols[3][j] = float64(r.Age)
	}

	m := types.CorrelationMatrix{
		Fields: slices.Clone(CorrelationFields),
		Values: make([][]float64, len(cols)),
	}
	for i := range cols {
		m.Values[i] = make([]float64, len(cols))
		for j := range cols {
			m.Values[i][j] = pearson(cols[i], cols[j])
		}
	}
	return m
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
