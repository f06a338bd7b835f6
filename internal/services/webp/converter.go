package webp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"anipipe/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the converter.
type Option func(*Converter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Converter) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Converter wraps the cwebp binary. Frames larger than MaxEdge on either
// side are scaled down proportionally; quality is lossy WebP 1-100.
type Converter struct {
	binary  string
	quality int
	maxEdge int
	timeout time.Duration
	exec    Executor
}

// Config carries converter construction parameters.
type Config struct {
	Binary  string
	Quality int
	MaxEdge int
	Timeout time.Duration
}

// New constructs a cwebp converter.
func New(cfg Config, opts ...Option) (*Converter, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "cwebp"
	}
	if cfg.Quality < 1 || cfg.Quality > 100 {
		return nil, fmt.Errorf("webp quality %d out of range 1-100", cfg.Quality)
	}
	converter := &Converter{
		binary:  binary,
		quality: cfg.Quality,
		maxEdge: cfg.MaxEdge,
		timeout: cfg.Timeout,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(converter)
	}
	return converter, nil
}

// Convert encodes input into a WebP file at outputPath. A zero-byte output
// fails the call even when the tool exits 0.
func (c *Converter) Convert(ctx context.Context, input, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create webp output directory: %w", err)
	}

	args := []string{"-q", strconv.Itoa(c.quality)}
	if width, height, ok := resizeFor(input, c.maxEdge); ok {
		args = append(args, "-resize", strconv.Itoa(width), strconv.Itoa(height))
	}
	args = append(args, input, "-o", outputPath)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if output, err := c.exec.Run(ctx, c.binary, args); err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "transform", "webp convert", filepath.Base(input), nil)
		}
		return services.Wrap(services.ErrExternalTool, "transform", "webp convert",
			fmt.Sprintf("%s: %s", filepath.Base(input), tail(output, 300)), err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "transform", "webp convert",
			fmt.Sprintf("%s: tool exited 0 but output is empty", filepath.Base(input)), nil)
	}
	return nil
}

// ConvertAll converts every frame into outputDir, returning the WebP paths.
// Individual failures are skipped; zero conversions from a non-empty input
// set is an error.
func (c *Converter) ConvertAll(ctx context.Context, frames []string, outputDir string) ([]string, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create webp directory: %w", err)
	}

	var converted []string
	var lastErr error
	for _, frame := range frames {
		name := strings.TrimSuffix(filepath.Base(frame), filepath.Ext(frame)) + ".webp"
		outputPath := filepath.Join(outputDir, name)
		if err := c.Convert(ctx, frame, outputPath); err != nil {
			if ctx.Err() != nil {
				return converted, err
			}
			lastErr = err
			continue
		}
		converted = append(converted, outputPath)
	}
	if len(converted) == 0 {
		return nil, fmt.Errorf("no frames converted: %w", lastErr)
	}
	return converted, nil
}

// resizeFor reads the image header and returns scaled dimensions when either
// edge exceeds maxEdge. cwebp's -resize takes explicit dimensions, so the
// aspect-preserving math happens here.
func resizeFor(input string, maxEdge int) (int, int, bool) {
	if maxEdge <= 0 {
		return 0, 0, false
	}
	file, err := os.Open(input)
	if err != nil {
		return 0, 0, false
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, false
	}
	if cfg.Width <= maxEdge && cfg.Height <= maxEdge {
		return 0, 0, false
	}
	if cfg.Width >= cfg.Height {
		height := cfg.Height * maxEdge / cfg.Width
		if height < 1 {
			height = 1
		}
		return maxEdge, height, true
	}
	width := cfg.Width * maxEdge / cfg.Height
	if width < 1 {
		width = 1
	}
	return width, maxEdge, true
}

// tail returns the last max bytes of tool output for error context.
func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
