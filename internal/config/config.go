package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
}

// Repository contains the dataset repository settings for the ModelScope CLI.
type Repository struct {
	InputRepo       string `toml:"input_repo"`
	OutputRepo      string `toml:"output_repo"`
	Token           string `toml:"token"`
	ListTimeout     int    `toml:"list_timeout"`
	DownloadTimeout int    `toml:"download_timeout"`
	UploadTimeout   int    `toml:"upload_timeout"`
}

// Discovery contains catalog polling and stability gate settings.
type Discovery struct {
	// Granularity selects work item shape: "item" (single video) or "folder".
	Granularity     string `toml:"granularity"`
	PollInterval    int    `toml:"poll_interval"`
	StabilityWindow int    `toml:"stability_window"`
	FilelistPath    string `toml:"filelist_path"`
	InitialBackfill bool   `toml:"initial_backfill"`
	SmallFileCount  int    `toml:"small_file_count"`
	SmallSizeGiB    int    `toml:"small_size_gib"`
	MediumFileCount int    `toml:"medium_file_count"`
	MediumSizeGiB   int    `toml:"medium_size_gib"`
}

// Worker contains processing loop timing and resource limits.
type Worker struct {
	IdleSleep           int `toml:"idle_sleep"`
	StatusInterval      int `toml:"status_interval"`
	MinFreeSpaceGiB     int `toml:"min_free_space_gib"`
	MaxEpisodesPerBatch int `toml:"max_episodes_per_batch"`
	StopTimeout         int `toml:"stop_timeout"`
}

// Encoder contains AV1/MKV conversion settings passed to ffmpeg.
type Encoder struct {
	Binary         string   `toml:"binary"`
	Args           []string `toml:"args"`
	Timeout        int      `toml:"timeout"`
	SceneThreshold float64  `toml:"scene_threshold"`
}

// Frames contains scene-frame extraction and WebP compression settings.
type Frames struct {
	CwebpBinary string `toml:"cwebp_binary"`
	Quality     int    `toml:"quality"`
	MaxEdge     int    `toml:"max_edge"`
	Timeout     int    `toml:"timeout"`
}

// Transport contains settings for the optional NAS bridge copy.
type Transport struct {
	Enabled    bool   `toml:"enabled"`
	RemoteHost string `toml:"remote_host"`
	RemoteUser string `toml:"remote_user"`
	RemoteDir  string `toml:"remote_dir"`
	Timeout    int    `toml:"timeout"`
	Retries    int    `toml:"retries"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for anipipe.
//
// Sections by subsystem:
//   - Paths: working, state, log, and local output directories
//   - Repository: ModelScope dataset repository identifiers and timeouts
//   - Discovery: catalog polling, granularity, stability gate, backfill
//   - Worker: processing loop timing and disk space limits
//   - Encoder: ffmpeg AV1/MKV conversion parameters
//   - Frames: scene-frame extraction and WebP compression
//   - Transport: optional rsync/scp bridge copy to a NAS
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Repository Repository `toml:"repository"`
	Discovery  Discovery  `toml:"discovery"`
	Worker     Worker     `toml:"worker"`
	Encoder    Encoder    `toml:"encoder"`
	Frames     Frames     `toml:"frames"`
	Transport  Transport  `toml:"transport"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/anipipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("anipipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the worker can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// ModelScopeBinary returns the dataset CLI executable name.
func (c *Config) ModelScopeBinary() string {
	return "modelscope"
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the sample configuration to the given path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
