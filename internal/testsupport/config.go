package testsupport

import (
	"path/filepath"
	"testing"

	"anipipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Repository.InputRepo = "test/input-dataset"
	cfg.Repository.OutputRepo = "test/output-dataset"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithGranularity overrides the discovery granularity on the test config.
func WithGranularity(granularity string) ConfigOption {
	return func(c *config.Config) {
		c.Discovery.Granularity = granularity
	}
}

// WithTransport enables the NAS bridge on the test config.
func WithTransport(host, dir string) ConfigOption {
	return func(c *config.Config) {
		c.Transport.Enabled = true
		c.Transport.RemoteHost = host
		c.Transport.RemoteDir = dir
	}
}
