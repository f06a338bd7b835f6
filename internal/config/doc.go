// Package config loads, normalizes, and validates anipipe's TOML
// configuration. Configuration is resolved from an explicit path, then
// ~/.config/anipipe/config.toml, then ./anipipe.toml, falling back to
// built-in defaults when no file exists.
package config
