// Package catalog models the remote repository's file inventory: entries,
// per-folder aggregation, content fingerprints, and the listing sources that
// produce snapshots.
package catalog
