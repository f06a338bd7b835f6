// Package state persists the pipeline's durable JSON documents (live queue,
// processed set, batch ledger, folder bookkeeping). Every mutation rewrites
// the whole document through an atomic rename so a crash never leaves a
// partially-written file; a corrupt document degrades to a cold start.
package state
