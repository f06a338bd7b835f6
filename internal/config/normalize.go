package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRepository()
	c.normalizeDiscovery()
	c.normalizeWorker()
	c.normalizeEncoder()
	c.normalizeFrames()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRepository() {
	c.Repository.InputRepo = strings.TrimSpace(c.Repository.InputRepo)
	c.Repository.OutputRepo = strings.TrimSpace(c.Repository.OutputRepo)
	if c.Repository.OutputRepo == "" {
		c.Repository.OutputRepo = c.Repository.InputRepo
	}
	if c.Repository.ListTimeout <= 0 {
		c.Repository.ListTimeout = defaultListTimeout
	}
	if c.Repository.DownloadTimeout <= 0 {
		c.Repository.DownloadTimeout = defaultDownloadTimeout
	}
	if c.Repository.UploadTimeout <= 0 {
		c.Repository.UploadTimeout = defaultUploadTimeout
	}
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.Granularity = strings.ToLower(strings.TrimSpace(c.Discovery.Granularity))
	if c.Discovery.Granularity == "" {
		c.Discovery.Granularity = defaultGranularity
	}
	if c.Discovery.PollInterval <= 0 {
		c.Discovery.PollInterval = defaultPollInterval
	}
	if c.Discovery.StabilityWindow <= 0 {
		c.Discovery.StabilityWindow = defaultStabilityWindow
	}
	if c.Discovery.SmallFileCount <= 0 {
		c.Discovery.SmallFileCount = defaultSmallFileCount
	}
	if c.Discovery.SmallSizeGiB <= 0 {
		c.Discovery.SmallSizeGiB = defaultSmallSizeGiB
	}
	if c.Discovery.MediumFileCount <= 0 {
		c.Discovery.MediumFileCount = defaultMediumFileCount
	}
	if c.Discovery.MediumSizeGiB <= 0 {
		c.Discovery.MediumSizeGiB = defaultMediumSizeGiB
	}
}

func (c *Config) normalizeWorker() {
	if c.Worker.IdleSleep <= 0 {
		c.Worker.IdleSleep = defaultIdleSleep
	}
	if c.Worker.StatusInterval <= 0 {
		c.Worker.StatusInterval = defaultStatusInterval
	}
	if c.Worker.MinFreeSpaceGiB <= 0 {
		c.Worker.MinFreeSpaceGiB = defaultMinFreeSpaceGiB
	}
	if c.Worker.MaxEpisodesPerBatch <= 0 {
		c.Worker.MaxEpisodesPerBatch = defaultMaxEpisodesPerBatch
	}
	if c.Worker.StopTimeout <= 0 {
		c.Worker.StopTimeout = defaultStopTimeout
	}
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	if len(c.Encoder.Args) == 0 {
		c.Encoder.Args = defaultEncoderArgs()
	}
	if c.Encoder.Timeout <= 0 {
		c.Encoder.Timeout = defaultEncoderTimeout
	}
	if c.Encoder.SceneThreshold <= 0 {
		c.Encoder.SceneThreshold = defaultSceneThreshold
	}
}

func (c *Config) normalizeFrames() {
	c.Frames.CwebpBinary = strings.TrimSpace(c.Frames.CwebpBinary)
	if c.Frames.CwebpBinary == "" {
		c.Frames.CwebpBinary = defaultCwebpBinary
	}
	if c.Frames.Quality <= 0 {
		c.Frames.Quality = defaultWebPQuality
	}
	if c.Frames.MaxEdge <= 0 {
		c.Frames.MaxEdge = defaultMaxImageEdge
	}
	if c.Frames.Timeout <= 0 {
		c.Frames.Timeout = defaultFrameTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
