// Package compute derives the RFM customer segmentation table from a snapshot
// of customers and transactions.
//
// engine.go runs one pass: validate inputs, keep eligible transactions
// (inside the analysis window, positive amount and quantity), aggregate per
// customer, score, name segments and sort by monetary value descending.
// The reference date used for recency is always passed in through Params so
// results never depend on the wall clock.
//
// aggregate.go groups transactions by customer_id. The group-by is sharded
// across a pond worker pool; shards are disjoint so merging is a union.
//
// quantile.go assigns NTILE-style bucket scores (1..Buckets) over the whole
// scored population. Scoring needs every customer and is the barrier where
// a cancelled context aborts the run.
//
// cluster.go labels every scored customer with a seeded k-means++ cluster
// over standardized recency, frequency and monetary value. Cluster 0 is the
// group with the highest average spend.
//
// rules.go evaluates the ordered segment rules ("r_score >= 4" style
// conditions) and profile.go rolls records up into segment profiles, the
// run summary and the RFM correlation matrix.
package compute
