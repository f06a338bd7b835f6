package modelscope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"anipipe/internal/services"
)

const tokenEnv = "MODELSCOPE_API_TOKEN"

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, env []string) (string, error)
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

// Client wraps the modelscope CLI for dataset repositories. All repository
// access goes through the CLI; the hub protocol itself is out of scope.
type Client struct {
	binary          string
	token           string
	inputRepo       string
	outputRepo      string
	cacheDir        string
	listTimeout     time.Duration
	downloadTimeout time.Duration
	uploadTimeout   time.Duration
	exec            Executor
}

// Config carries client construction parameters.
type Config struct {
	Binary          string
	Token           string
	InputRepo       string
	OutputRepo      string
	CacheDir        string
	ListTimeout     time.Duration
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
}

// New constructs a modelscope CLI client.
func New(cfg Config, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "modelscope"
	}
	if strings.TrimSpace(cfg.InputRepo) == "" {
		return nil, errors.New("input repository required")
	}
	client := &Client{
		binary:          binary,
		token:           strings.TrimSpace(cfg.Token),
		inputRepo:       strings.TrimSpace(cfg.InputRepo),
		outputRepo:      strings.TrimSpace(cfg.OutputRepo),
		cacheDir:        cfg.CacheDir,
		listTimeout:     cfg.ListTimeout,
		downloadTimeout: cfg.DownloadTimeout,
		uploadTimeout:   cfg.UploadTimeout,
		exec:            commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// InputRepo returns the configured source repository identifier.
func (c *Client) InputRepo() string { return c.inputRepo }

// Download fetches one repository file into localDir. The file lands under
// localDir with its repository-relative layout preserved by the CLI.
func (c *Client) Download(ctx context.Context, repoPath, localDir string) (string, error) {
	if repoPath == "" {
		return "", services.Wrap(services.ErrValidation, "fetch", "download", "repository path required", nil)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	args := []string{"download", c.inputRepo, repoPath, "--local_dir", localDir}
	if c.cacheDir != "" {
		args = append(args, "--cache_dir", c.cacheDir)
	}
	if err := c.run(ctx, c.downloadTimeout, args); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "fetch", "download", repoPath, err)
	}

	localPath := filepath.Join(localDir, filepath.FromSlash(repoPath))
	info, err := os.Stat(localPath)
	if err != nil {
		// Some CLI versions flatten single-file downloads to the basename.
		flat := filepath.Join(localDir, filepath.Base(repoPath))
		if flatInfo, flatErr := os.Stat(flat); flatErr == nil {
			localPath, info = flat, flatInfo
		} else {
			return "", services.Wrap(services.ErrExternalTool, "fetch", "download",
				fmt.Sprintf("%s: tool exited 0 but produced no file", repoPath), nil)
		}
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrExternalTool, "fetch", "download",
			fmt.Sprintf("%s: downloaded file is empty", repoPath), nil)
	}
	return localPath, nil
}

// Upload pushes a local file or directory to repoPath in the output
// repository.
func (c *Client) Upload(ctx context.Context, localPath, repoPath string) error {
	if c.outputRepo == "" {
		return services.Wrap(services.ErrValidation, "publish", "upload", "output repository not configured", nil)
	}
	if _, err := os.Stat(localPath); err != nil {
		return services.Wrap(services.ErrNotFound, "publish", "upload", localPath, err)
	}

	args := []string{"upload", c.outputRepo, localPath, repoPath, "--repo-type", "dataset"}
	if err := c.run(ctx, c.uploadTimeout, args); err != nil {
		return services.Wrap(services.ErrExternalTool, "publish", "upload", repoPath, err)
	}
	return nil
}

// FetchManifest downloads the repository's filelist manifest into the cache
// directory and returns its local path. The manifest is the listing source:
// the hub exposes no file enumeration through the CLI.
func (c *Client) FetchManifest(ctx context.Context) (string, error) {
	dir := c.cacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	args := []string{"download", c.inputRepo, "filelist.txt", "--local_dir", dir}
	if err := c.run(ctx, c.listTimeout, args); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "discovery", "fetch manifest", c.inputRepo, err)
	}
	path := filepath.Join(dir, "filelist.txt")
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrNotFound, "discovery", "fetch manifest", path, err)
	}
	return path, nil
}

// VerifyRepositories checks that the configured repositories are reachable by
// downloading their README files. Used by preflight, not the hot path.
func (c *Client) VerifyRepositories(ctx context.Context) error {
	repos := []string{c.inputRepo}
	if c.outputRepo != "" {
		repos = append(repos, c.outputRepo)
	}
	for _, repo := range repos {
		dir, err := os.MkdirTemp("", "anipipe-verify-")
		if err != nil {
			return fmt.Errorf("create verify directory: %w", err)
		}
		args := []string{"download", repo, "--include", "README.md", "--local_dir", dir}
		runErr := c.run(ctx, c.listTimeout, args)
		os.RemoveAll(dir)
		if runErr != nil {
			return services.Wrap(services.ErrExternalTool, "preflight", "verify repository", repo, runErr)
		}
	}
	return nil
}

func (c *Client) run(ctx context.Context, timeout time.Duration, args []string) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var env []string
	if c.token != "" {
		env = append(env, tokenEnv+"="+c.token)
	}
	output, err := c.exec.Run(ctx, c.binary, args, env)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", services.ErrTimeout, args[0])
		}
		return fmt.Errorf("%s: %w: %s", args[0], err, tail(output, 400))
	}
	return nil
}

// tail returns the last max bytes of command output for error context.
func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), env...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
