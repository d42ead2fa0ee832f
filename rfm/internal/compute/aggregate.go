package compute

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"

	"github.com/obsidianstack/rfmstack/pkg/types"
)

// minShardSize keeps tiny inputs on a single shard; pooling them costs more
// than it saves.
const minShardSize = 1024

// aggregate holds the running group-by totals for one customer.
type aggregate struct {
	frequency int
	monetary  decimal.Decimal
	first     time.Time
	last      time.Time
}

func (a *aggregate) add(t types.Transaction) {
	d := Day(t.Date)
	if a.frequency == 0 || d.Before(a.first) {
		a.first = d
	}
	if a.frequency == 0 || d.After(a.last) {
		a.last = d
	}
	a.frequency++
	a.monetary = a.monetary.Add(t.TotalAmount)
}

// aggregateByCustomer groups txns by customer_id. Transactions are split into
// at most workers shards by a hash of customer_id, so every customer lives in
// exactly one shard and partial maps merge without conflicts.
func aggregateByCustomer(ctx context.Context, txns []types.Transaction, workers int) (map[string]*aggregate, error) {
	shards := shardCount(len(txns), workers)
	if shards == 1 {
		return aggregateShard(txns), nil
	}

	parts := make([][]types.Transaction, shards)
	for _, t := range txns {
		i := shardOf(t.CustomerID, shards)
		parts[i] = append(parts[i], t)
	}

	pool := pond.NewPool(shards)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	partials := make([]map[string]*aggregate, shards)
	for i, part := range parts {
		group.Submit(func() {
			partials[i] = aggregateShard(part)
		})
	}
	if err := group.Wait(); err != nil {
		if errors.Is(err, pond.ErrGroupStopped) && ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("compute: aggregate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compute: aggregate: %w", err)
	}

	out := make(map[string]*aggregate)
	for _, p := range partials {
		for id, a := range p {
			out[id] = a
		}
	}
	return out, nil
}

func aggregateShard(txns []types.Transaction) map[string]*aggregate {
	out := make(map[string]*aggregate)
	for _, t := range txns {
		a, ok := out[t.CustomerID]
		if !ok {
			a = &aggregate{}
			out[t.CustomerID] = a
		}
		a.add(t)
	}
	return out
}

func shardCount(n, workers int) int {
	if workers <= 1 || n < 2*minShardSize {
		return 1
	}
	if limit := n / minShardSize; workers > limit {
		return limit
	}
	return workers
}

func shardOf(customerID string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(customerID)) //nolint:errcheck // hash writes never fail
	return int(h.Sum32() % uint32(shards))
}
