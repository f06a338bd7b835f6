// Package worker runs the background loops of a processing run: catalog
// discovery, single-item pipeline processing, and periodic status reports.
package worker
