// Package metrics renders run metrics in the Prometheus text exposition
// format and writes them as a node_exporter textfile.
//
// Families are built directly as client_model DTOs; there is no registry
// because each run writes one complete snapshot and exits.
package metrics
