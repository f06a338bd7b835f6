package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRepository(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRepository() error {
	if c.Repository.InputRepo == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/anipipe/config.toml"
		}
		return fmt.Errorf("repository.input_repo is required. Edit %s (create with 'anipipe config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	switch c.Discovery.Granularity {
	case "item", "folder":
	default:
		return fmt.Errorf("discovery.granularity must be \"item\" or \"folder\", got %q", c.Discovery.Granularity)
	}
	if c.Discovery.SmallFileCount > c.Discovery.MediumFileCount {
		return errors.New("discovery.small_file_count must not exceed discovery.medium_file_count")
	}
	if c.Discovery.SmallSizeGiB > c.Discovery.MediumSizeGiB {
		return errors.New("discovery.small_size_gib must not exceed discovery.medium_size_gib")
	}
	return nil
}

func (c *Config) validateFrames() error {
	if c.Frames.Quality < 1 || c.Frames.Quality > 100 {
		return errors.New("frames.quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateTransport() error {
	if !c.Transport.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Transport.RemoteHost) == "" {
		return errors.New("transport.remote_host must be set when transport.enabled is true")
	}
	if strings.TrimSpace(c.Transport.RemoteDir) == "" {
		return errors.New("transport.remote_dir must be set when transport.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
