// Package ledger plans per-series episode batches and records completed
// batch and series progress durably across runs.
package ledger
