package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
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

// Option configures the bridge.
type Option func(*Bridge)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(b *Bridge) {
		if exec != nil {
			b.exec = exec
		}
	}
}

// Bridge copies artifacts to a remote host over SSH, preferring rsync and
// falling back to scp when rsync is unavailable or fails. Every push is
// verified by comparing the remote size against the local file.
type Bridge struct {
	host    string
	user    string
	baseDir string
	timeout time.Duration
	retries int
	exec    Executor
}

// Config carries bridge construction parameters.
type Config struct {
	Host    string
	User    string
	BaseDir string
	Timeout time.Duration
	Retries int
}

// New constructs a remote copy bridge.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("remote host required")
	}
	user := strings.TrimSpace(cfg.User)
	if user == "" {
		user = "root"
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	bridge := &Bridge{
		host:    host,
		user:    user,
		baseDir: strings.TrimRight(strings.TrimSpace(cfg.BaseDir), "/"),
		timeout: cfg.Timeout,
		retries: retries,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(bridge)
	}
	return bridge, nil
}

// Push copies localPath to relPath under the remote base directory and
// verifies the copy by size. Each attempt tries rsync first, then scp.
func (b *Bridge) Push(ctx context.Context, localPath, relPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "publish", "push", localPath, err)
	}
	remotePath := b.remotePath(relPath)

	if err := b.ensureRemoteDir(ctx, path.Dir(remotePath)); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < b.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.copyOnce(ctx, localPath, remotePath); err != nil {
			lastErr = err
			continue
		}
		size, err := b.RemoteSize(ctx, remotePath)
		if err != nil {
			lastErr = err
			continue
		}
		if size != info.Size() {
			lastErr = services.Wrap(services.ErrExternalTool, "publish", "push",
				fmt.Sprintf("%s: remote size %d != local %d", filepath.Base(localPath), size, info.Size()), nil)
			continue
		}
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "publish", "push", filepath.Base(localPath), lastErr)
}

func (b *Bridge) copyOnce(ctx context.Context, localPath, remotePath string) error {
	target := fmt.Sprintf("%s@%s:%s", b.user, b.host, remotePath)

	rsyncErr := b.run(ctx, "rsync", []string{"-az", "--timeout=300", localPath, target})
	if rsyncErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return rsyncErr
	}
	if scpErr := b.run(ctx, "scp", []string{localPath, target}); scpErr != nil {
		return fmt.Errorf("rsync: %v; scp: %w", rsyncErr, scpErr)
	}
	return nil
}

// Exists reports whether remote relPath is a regular file.
func (b *Bridge) Exists(ctx context.Context, relPath string) (bool, error) {
	remotePath := b.remotePath(relPath)
	output, err := b.runCapture(ctx, "ssh", []string{
		b.sshTarget(),
		fmt.Sprintf(`test -f %q && echo exists || echo missing`, remotePath),
	})
	if err != nil {
		return false, services.Wrap(services.ErrExternalTool, "publish", "remote check", remotePath, err)
	}
	return strings.Contains(output, "exists"), nil
}

// RemoteSize returns the byte size of a remote file.
func (b *Bridge) RemoteSize(ctx context.Context, remotePath string) (int64, error) {
	output, err := b.runCapture(ctx, "ssh", []string{
		b.sshTarget(),
		fmt.Sprintf(`stat -c%%s %q`, remotePath),
	})
	if err != nil {
		return 0, fmt.Errorf("remote stat: %w", err)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(output), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("remote stat: unparseable size %q", strings.TrimSpace(output))
	}
	return size, nil
}

func (b *Bridge) ensureRemoteDir(ctx context.Context, dir string) error {
	if err := b.run(ctx, "ssh", []string{b.sshTarget(), fmt.Sprintf(`mkdir -p %q`, dir)}); err != nil {
		return services.Wrap(services.ErrExternalTool, "publish", "remote mkdir", dir, err)
	}
	return nil
}

func (b *Bridge) remotePath(relPath string) string {
	rel := strings.TrimLeft(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), "/")
	if b.baseDir == "" {
		return "/" + rel
	}
	return b.baseDir + "/" + rel
}

func (b *Bridge) sshTarget() string {
	return b.user + "@" + b.host
}

func (b *Bridge) run(ctx context.Context, binary string, args []string) error {
	_, err := b.runCapture(ctx, binary, args)
	return err
}

func (b *Bridge) runCapture(ctx context.Context, binary string, args []string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	output, err := b.exec.Run(ctx, binary, args)
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%w: %s", services.ErrTimeout, binary)
		}
		return output, fmt.Errorf("%s: %w: %s", binary, err, tail(output, 300))
	}
	return output, nil
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
