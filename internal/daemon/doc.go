// Package daemon enforces single-instance execution around the worker
// runner using a file lock in the state directory.
package daemon
