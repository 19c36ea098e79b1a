package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ExecConfig configures the external interpreter process.
type ExecConfig struct {
	// Command runs the driver; the driver path is appended as last argument.
	Command string
	// Installer is invoked once per mode with the resolved package URLs appended.
	// Empty skips installation.
	Installer string
	// IndexURL is the base for package specs that are not absolute URLs.
	IndexURL string
	// WorkDir holds the driver script and the installed packages.
	WorkDir string
	// Timeout bounds a single execution (default 30s).
	Timeout time.Duration
	Env     map[string]string
}

// ExecBackend runs every request in a new interpreter process.
type ExecBackend struct {
	cfg    ExecConfig
	logger *slog.Logger

	program string
	args    []string
	driver  string
	target  string
}

// NewExecBackend creates an ExecBackend.
func NewExecBackend(cfg ExecConfig, logger *slog.Logger) *ExecBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ExecBackend{cfg: cfg, logger: logger.With("backend", "exec")}
}

// Boot resolves the interpreter command and writes the driver script.
func (e *ExecBackend) Boot(ctx context.Context) error {
	parts := strings.Fields(e.cfg.Command)
	if len(parts) == 0 {
		return errors.New("exec backend: empty command")
	}
	program, err := exec.LookPath(parts[0])
	if err != nil {
		return fmt.Errorf("exec backend: %w", err)
	}

	dir := e.cfg.WorkDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "colorplay-exec-")
		if err != nil {
			return fmt.Errorf("create work dir: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "site-packages"), 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	driver := filepath.Join(dir, "driver.py")
	if err := os.WriteFile(driver, driverSource, 0o644); err != nil {
		return fmt.Errorf("write driver: %w", err)
	}

	e.program = program
	e.args = parts[1:]
	e.driver = driver
	e.target = filepath.Join(dir, "site-packages")
	return nil
}

// Install runs the installer once for the mode's packages.
func (e *ExecBackend) Install(ctx context.Context, mode Mode, packages []string) error {
	if e.cfg.Installer == "" || len(packages) == 0 {
		return nil
	}
	parts := strings.Fields(e.cfg.Installer)
	args := append(parts[1:], "--target", e.target)
	for _, p := range packages {
		args = append(args, ResolvePackage(e.cfg.IndexURL, p))
	}

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Env = e.environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("installer failed for %s: %w\n%s", mode, err, tail(string(out), 2048))
	}
	e.logger.Debug("installer finished", "mode", mode, "packages", len(packages))
	return nil
}

// Execute runs the driver with req on stdin.
func (e *ExecBackend) Execute(ctx context.Context, req Request) (*Result, error) {
	if e.program == "" {
		return nil, ErrNotReady
	}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, e.args...), e.driver)
	cmd := exec.CommandContext(cmdCtx, e.program, args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = e.environ()
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if ctx.Err() == nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, e.cfg.Timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("command failed: %s\nstderr: %s", exitErr, tail(stderr.String(), 2048))
		}
		return nil, err
	}
	return decodeResult(output, stderr.String())
}

// Close is a no-op for exec backends.
func (e *ExecBackend) Close(context.Context) error {
	return nil
}

func (e *ExecBackend) environ() []string {
	env := os.Environ()
	if e.target != "" {
		env = append(env, "PYTHONPATH="+e.target)
	}
	for k, v := range e.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, os.ExpandEnv(v)))
	}
	return env
}
