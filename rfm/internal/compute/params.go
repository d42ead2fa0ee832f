package compute

import (
	"fmt"
	"time"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// Defaults applied by the config layer when fields are absent.
const (
	DefaultBuckets         = 5
	DefaultMinTransactions = 1
	DefaultWorkers         = 4
	DefaultClusters        = 4
	DefaultClusterSeed     = 42
)

const day = 24 * time.Hour

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls on a date between Start and End, inclusive.
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(w.Start)) && !d.After(Day(w.End))
}

func (w Window) String() string {
	return Day(w.Start).Format(time.DateOnly) + ".." + Day(w.End).Format(time.DateOnly)
}

// Params configures one engine run.
type Params struct {
	Window Window

	// ReferenceDate is "today" for recency. It must be set explicitly.
	ReferenceDate time.Time

	// MinTransactions is the number of eligible transactions a customer
	// needs to be scored.
	MinTransactions int

	// Buckets is the number of quantile buckets per dimension.
	Buckets int

	// Workers bounds the aggregation worker pool.
	Workers int

	// Clusters is k for the k-means pass; 0 disables clustering and leaves
	// every record in cluster 0.
	Clusters int

	// ClusterSeed seeds k-means initialization. Equal seeds give equal labels.
	ClusterSeed uint64
}

// Validate checks the parameters and returns an ErrConfiguration on failure.
func (p Params) Validate() error {
	switch {
	case p.Window.Start.IsZero() || p.Window.End.IsZero():
		return fmt.Errorf("%w: analysis window start and end are required", ErrConfiguration)
	case Day(p.Window.Start).After(Day(p.Window.End)):
		return fmt.Errorf("%w: window start %s is after window end %s", ErrConfiguration,
			Day(p.Window.Start).Format(time.DateOnly), Day(p.Window.End).Format(time.DateOnly))
	case p.ReferenceDate.IsZero():
		return fmt.Errorf("%w: reference date is required", ErrConfiguration)
	case p.Buckets < 1:
		return fmt.Errorf("%w: buckets must be at least 1, got %d", ErrConfiguration, p.Buckets)
	case p.MinTransactions < 1:
		return fmt.Errorf("%w: min_transactions must be at least 1, got %d", ErrConfiguration, p.MinTransactions)
	case p.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrConfiguration, p.Workers)
	case p.Clusters < 0:
		return fmt.Errorf("%w: clusters must not be negative, got %d", ErrConfiguration, p.Clusters)
	}
	return nil
}

// DefaultReferenceDate returns the day after the latest eligible transaction
// in w. It is the fallback used when no reference date is configured.
func DefaultReferenceDate(txns []types.Transaction, w Window) (time.Time, error) {
	var latest time.Time
	for _, t := range txns {
		if !t.Valid() || !w.Contains(t.Date) {
			continue
		}
		if d := Day(t.Date); d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("compute: no eligible transactions in %s: %w", w, ErrEmptyResult)
	}
	return latest.Add(day), nil
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of calendar days from -> to.
func daysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)) / day)
}
