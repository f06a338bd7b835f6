package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"anipipe/internal/services"
)

// Executor abstracts command execution for testability. Output is the
// combined stdout+stderr stream; ffmpeg writes its diagnostics to stderr.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ffmpeg/ffprobe for encoding, scene detection, and frame
// extraction.
type Client struct {
	binary         string
	encodeArgs     []string
	timeout        time.Duration
	sceneThreshold float64
	exec           Executor
}

// Config carries client construction parameters.
type Config struct {
	Binary     string
	EncodeArgs []string
	Timeout    time.Duration
	// SceneThreshold is the content-change threshold on the 0-100 scale;
	// it maps onto ffmpeg's 0-1 scene score.
	SceneThreshold float64
}

// New constructs an ffmpeg client.
func New(cfg Config, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if len(cfg.EncodeArgs) == 0 {
		return nil, errors.New("encode arguments required")
	}
	threshold := cfg.SceneThreshold
	if threshold <= 0 || threshold > 100 {
		threshold = 30.0
	}
	client := &Client{
		binary:         binary,
		encodeArgs:     append([]string(nil), cfg.EncodeArgs...),
		timeout:        cfg.Timeout,
		sceneThreshold: threshold,
		exec:           commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Encode transcodes input to output using the configured codec arguments.
// A zero-byte or missing output fails the call even when ffmpeg exits 0.
func (c *Client) Encode(ctx context.Context, input, output string) error {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create encode output directory: %w", err)
	}

	args := []string{"-i", input, "-y"}
	args = append(args, c.encodeArgs...)
	args = append(args, output)

	if err := c.run(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "transform", "encode", filepath.Base(input), err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "transform", "encode",
			fmt.Sprintf("%s: encoder exited 0 but output is empty", filepath.Base(input)), nil)
	}
	return nil
}

// DetectScenes returns the timestamps (seconds) of detected scene changes in
// ascending order. An empty result is valid: a static video has no cuts.
func (c *Client) DetectScenes(ctx context.Context, input string) ([]float64, error) {
	filter := fmt.Sprintf("select='gt(scene,%s)',showinfo", formatThreshold(c.sceneThreshold/100))
	args := []string{"-i", input, "-vf", filter, "-f", "null", "-"}

	output, err := c.runCapture(ctx, args)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transform", "scene detection", filepath.Base(input), err)
	}
	return parseShowinfoTimes(output), nil
}

// ExtractFrame grabs a single frame at the given timestamp into outputPath.
func (c *Client) ExtractFrame(ctx context.Context, input string, atSeconds float64, outputPath string) error {
	args := []string{
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", input,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}
	if err := c.run(ctx, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "transform", "extract frame", filepath.Base(input), err)
	}
	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "transform", "extract frame",
			fmt.Sprintf("%s: no frame at %.3fs", filepath.Base(input), atSeconds), nil)
	}
	return nil
}

// Duration probes the container duration in seconds via ffprobe.
func (c *Client) Duration(ctx context.Context, input string) (float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	args := []string{
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	}
	output, err := c.exec.Run(ctx, probeBinary(c.binary), args)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transform", "probe", filepath.Base(input), err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "transform", "probe",
			fmt.Sprintf("%s: unparseable duration %q", filepath.Base(input), strings.TrimSpace(output)), nil)
	}
	return duration, nil
}

func (c *Client) run(ctx context.Context, args []string) error {
	_, err := c.runCapture(ctx, args)
	return err
}

func (c *Client) runCapture(ctx context.Context, args []string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	output, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%w: ffmpeg", services.ErrTimeout)
		}
		return output, fmt.Errorf("%w: %s", err, tail(output, 400))
	}
	return output, nil
}

// parseShowinfoTimes pulls pts_time values from showinfo filter output.
func parseShowinfoTimes(output string) []float64 {
	var times []float64
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "pts_time:")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("pts_time:"):]
		end := strings.IndexAny(rest, " \t")
		if end >= 0 {
			rest = rest[:end]
		}
		if value, err := strconv.ParseFloat(strings.TrimSpace(rest), 64); err == nil && value >= 0 {
			times = append(times, value)
		}
	}
	return times
}

func formatThreshold(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func probeBinary(ffmpegBinary string) string {
	dir := filepath.Dir(ffmpegBinary)
	if dir == "." {
		return "ffprobe"
	}
	return filepath.Join(dir, "ffprobe")
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
