// Package types defines the shared retail records used across rfmstack:
// the Customer and Transaction inputs read by the source loaders, and the
// Record, SegmentProfile and Summary outputs produced by the compute engine
// and consumed by the exporters.
package types
