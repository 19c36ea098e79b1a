package runtime

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

//go:embed driver/driver.py
var driverSource []byte

// Fetcher resolves an artifact URL to a file under Dir. *pkgcache.Cache implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
	ResolveWheel(ctx context.Context, indexURL, spec string) (string, error)
	Dir() string
}

// WasmConfig configures the embedded WASI interpreter.
type WasmConfig struct {
	// RuntimeURL locates the interpreter .wasm (http(s), file:// or a path).
	RuntimeURL string
	// IndexURL is the base for relative wheel file specs.
	IndexURL string
	// PackageIndex is the JSON API used to find the wheel of a project name.
	PackageIndex string
	// Timeout bounds one execution. Zero means no limit beyond the caller's context.
	Timeout time.Duration
	// WorkDir holds the driver script and the wazero compilation cache.
	WorkDir string
	// MaxOutput bounds the bytes read from the interpreter's stdout.
	MaxOutput int
}

// WasmBackend runs the interpreter under wazero. Each execution gets a fresh
// module instance; state crosses executions only through Request.State.
type WasmBackend struct {
	cfg     WasmConfig
	fetcher Fetcher
	logger  *slog.Logger

	mu       sync.RWMutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
	driver   string
	// wheels lists installed package files (base names under the fetcher dir).
	wheels []string
}

// NewWasmBackend creates a backend that downloads artifacts through fetcher.
func NewWasmBackend(cfg WasmConfig, fetcher Fetcher, logger *slog.Logger) *WasmBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 8 << 20
	}
	return &WasmBackend{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger.With("backend", "wasm"),
	}
}

// Boot downloads and compiles the interpreter and writes the driver script.
func (w *WasmBackend) Boot(ctx context.Context) error {
	if w.cfg.RuntimeURL == "" {
		return errors.New("runtime URL is not configured")
	}
	wasmPath, err := w.fetcher.Fetch(ctx, w.cfg.RuntimeURL)
	if err != nil {
		return fmt.Errorf("fetch interpreter: %w", err)
	}
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("failed to read WASM file %s: %w", wasmPath, err)
	}

	driverDir := filepath.Join(w.cfg.WorkDir, "driver")
	if err := os.MkdirAll(driverDir, 0o755); err != nil {
		return fmt.Errorf("create driver dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(driverDir, "driver.py"), driverSource, 0o644); err != nil {
		return fmt.Errorf("write driver: %w", err)
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	var cache wazero.CompilationCache
	if w.cfg.WorkDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(filepath.Join(w.cfg.WorkDir, "compiled"))
		if err != nil {
			return fmt.Errorf("compilation cache: %w", err)
		}
		rc = rc.WithCompilationCache(cache)
	}

	// The runtime outlives ctx; ctx only bounds compilation.
	r := wazero.NewRuntimeWithConfig(context.Background(), rc)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return fmt.Errorf("failed to compile WASM module: %w", err)
	}

	w.mu.Lock()
	w.runtime = r
	w.compiled = compiled
	w.cache = cache
	w.driver = driverDir
	w.mu.Unlock()
	return nil
}

// Install downloads every package into the artifact directory, which is
// mounted read-only at /packages.
func (w *WasmBackend) Install(ctx context.Context, mode Mode, packages []string) error {
	var files []string
	for _, spec := range packages {
		loc, err := w.locate(ctx, spec)
		if err != nil {
			return fmt.Errorf("install %s: %w", spec, err)
		}
		p, err := w.fetcher.Fetch(ctx, loc)
		if err != nil {
			return fmt.Errorf("install %s: %w", spec, err)
		}
		if filepath.Dir(filepath.Clean(p)) != filepath.Clean(w.fetcher.Dir()) {
			return fmt.Errorf("install %s: %s is outside the package directory", spec, p)
		}
		files = append(files, filepath.Base(p))
		w.logger.Debug("package ready", "mode", mode, "package", spec, "file", filepath.Base(p))
	}

	w.mu.Lock()
	for _, f := range files {
		if !slices.Contains(w.wheels, f) {
			w.wheels = append(w.wheels, f)
		}
	}
	w.mu.Unlock()
	return nil
}

// locate turns a package spec into something the fetcher can download.
func (w *WasmBackend) locate(ctx context.Context, spec string) (string, error) {
	switch {
	case IsLocation(spec):
		return spec, nil
	case IsWheel(spec):
		if w.cfg.IndexURL == "" {
			return "", fmt.Errorf("relative wheel needs an index URL")
		}
		return ResolvePackage(w.cfg.IndexURL, spec), nil
	case w.cfg.PackageIndex == "":
		return "", fmt.Errorf("project name needs a package index")
	default:
		return w.fetcher.ResolveWheel(ctx, w.cfg.PackageIndex, spec)
	}
}

// Execute instantiates the interpreter with req on stdin. The module is
// closed when ctx is done or the configured timeout passes.
func (w *WasmBackend) Execute(ctx context.Context, req Request) (*Result, error) {
	w.mu.RLock()
	r, compiled, driver := w.runtime, w.compiled, w.driver
	pythonPath := make([]string, 0, len(w.wheels))
	for _, f := range w.wheels {
		pythonPath = append(pythonPath, "/packages/"+f)
	}
	w.mu.RUnlock()

	if r == nil {
		return nil, ErrNotReady
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	fs := wazero.NewFSConfig().
		WithReadOnlyDirMount(w.fetcher.Dir(), "/packages").
		WithReadOnlyDirMount(driver, "/driver")

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&limitedWriter{w: &stdout, n: w.cfg.MaxOutput}).
		WithStderr(&stderr).
		WithFSConfig(fs).
		WithArgs("python", "/driver/driver.py").
		WithEnv("PYTHONPATH", strings.Join(pythonPath, ":")).
		WithEnv("PYTHONDONTWRITEBYTECODE", "1")

	runCtx := ctx
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	mod, err := r.InstantiateModule(runCtx, compiled, cfg)
	if mod != nil {
		defer mod.Close(context.Background())
	}
	if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, w.cfg.Timeout)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("interpreter failed: %w\nstderr: %s", err, tail(stderr.String(), 2048))
		}
	}

	return decodeResult(stdout.Bytes(), stderr.String())
}

// Close releases the wazero runtime and compilation cache.
func (w *WasmBackend) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.runtime != nil {
		errs = append(errs, w.runtime.Close(ctx))
		w.runtime = nil
	}
	if w.cache != nil {
		errs = append(errs, w.cache.Close(ctx))
		w.cache = nil
	}
	return errors.Join(errs...)
}

func decodeResult(out []byte, stderr string) (*Result, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("interpreter produced no output\nstderr: %s", tail(stderr, 2048))
	}
	var res Result
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("failed to parse interpreter result as JSON: %w", err)
	}
	return &res, nil
}

// limitedWriter drops bytes past n and reports an error once it overflows.
type limitedWriter struct {
	w *bytes.Buffer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.w.Len()+len(p) > l.n {
		return 0, errors.New("interpreter output too large")
	}
	return l.w.Write(p)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
