// Package export writes scored RFM results to disk and delivers the run
// summary to an optional webhook.
//
// Files are named after the report they carry (customer_segments,
// segment_profiles) with one file per configured format. Each file is
// written to a temporary sibling and renamed into place, so readers never
// observe a partial report.
package export
