// Package runner executes one complete RFM invocation: load the snapshot,
// score it, write reports and metrics, and notify.
package runner
