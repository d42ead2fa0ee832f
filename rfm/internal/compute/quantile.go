package compute

import (
	"cmp"
	"slices"
	"strings"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// ntile returns the 1-based bucket for position i (0-based) when n ordered
// items are split into b buckets. The first n%b buckets hold one extra item,
// matching SQL NTILE. With n < b only buckets 1..n are used.
func ntile(i, n, b int) int {
	q, r := n/b, n%b
	if big := r * (q + 1); i < big {
		return i/(q+1) + 1
	}
	return r + (i-r*(q+1))/q + 1
}

// assignScores fills the recency, frequency and monetary scores of recs.
// Every dimension is ranked over the full set with customer_id ascending as
// the tie-break, so equal values on a bucket boundary are split by id.
func assignScores(recs []*types.Record, buckets int) {
	// Stalest first: the largest recency lands in bucket 1.
	rank(recs, buckets, func(a, b *types.Record) int {
		return cmp.Compare(b.RecencyDays, a.RecencyDays)
	}, func(r *types.Record, s int) { r.RecencyScore = s })

	rank(recs, buckets, func(a, b *types.Record) int {
		return cmp.Compare(a.Frequency, b.Frequency)
	}, func(r *types.Record, s int) { r.FrequencyScore = s })

	rank(recs, buckets, func(a, b *types.Record) int {
		return a.MonetaryValue.Cmp(b.MonetaryValue)
	}, func(r *types.Record, s int) { r.MonetaryScore = s })
}

// rank orders recs by `by`, then by customer_id, and hands out NTILE buckets
// by position. Equal values that straddle a bucket boundary get different
// scores: ten customers with the same frequency and five buckets score 1
// through 5. This conflicts with a "ties are not split" quantile rule, which
// would let one large tie fill several buckets; splitting keeps bucket sizes
// within one of each other and customer_id makes the split deterministic.
func rank(recs []*types.Record, buckets int, by func(a, b *types.Record) int, set func(*types.Record, int)) {
	order := slices.Clone(recs)
	slices.SortStableFunc(order, func(a, b *types.Record) int {
		if c := by(a, b); c != 0 {
			return c
		}
		return strings.Compare(a.CustomerID, b.CustomerID)
	})
	n := len(order)
	for i, r := range order {
		set(r, ntile(i, n, buckets))
	}
}
