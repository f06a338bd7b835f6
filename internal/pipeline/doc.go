// Package pipeline drives queue items through fetch, transform, publish,
// and cleanup. Stage failures are isolated to the item: the driver records
// a failed outcome and the run moves on to the next item.
package pipeline
