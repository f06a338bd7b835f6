// Package discovery reconciles catalog snapshots against queue state,
// applying the priority heuristic and the folder stability gate.
package discovery
