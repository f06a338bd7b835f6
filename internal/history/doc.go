// Package history keeps a SQLite-backed record of finished pipeline runs,
// surviving queue clears and state resets.
package history
