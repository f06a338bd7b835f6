// Package logging provides slog construction with console and JSON handlers,
// typed attribute helpers, and context-derived stage/item fields shared
// across the pipeline.
package logging
