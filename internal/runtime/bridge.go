package runtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// prepareTimeout bounds one boot-and-install attempt.
const prepareTimeout = 10 * time.Minute

// Bridge makes a Backend ready on demand and runs executions through it.
// A Bridge is shared by every page session of a server.
type Bridge struct {
	backend  Backend
	packages map[Mode][]string
	logger   *slog.Logger

	group singleflight.Group
	// initMu serializes Boot and Install across modes.
	initMu sync.Mutex

	mu     sync.RWMutex
	booted bool
	ready  map[Mode]bool
}

// NewBridge creates a Bridge. packages lists what each mode installs.
func NewBridge(backend Backend, packages map[Mode][]string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	pk := make(map[Mode][]string, len(packages))
	for m, p := range packages {
		pk[m] = slices.Clone(p)
	}
	return &Bridge{
		backend:  backend,
		packages: pk,
		logger:   logger.With("component", "runtime"),
		ready:    make(map[Mode]bool),
	}
}

// Ready reports whether mode has been installed.
func (b *Bridge) Ready(mode Mode) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready[mode]
}

// EnsureReady boots the interpreter if needed and installs mode's packages
// once. Concurrent callers share one attempt. A failed attempt is not
// remembered: the next call tries again.
func (b *Bridge) EnsureReady(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return &Error{Op: "install", Mode: mode, Err: ErrUnknownMode}
	}
	if b.Ready(mode) {
		return nil
	}

	// The attempt is shared, so it must not end when the caller that
	// started it goes away.
	ch := b.group.DoChan(string(mode), func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), prepareTimeout)
		defer cancel()
		return nil, b.prepare(pctx, mode)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) prepare(ctx context.Context, mode Mode) error {
	b.initMu.Lock()
	defer b.initMu.Unlock()

	if b.Ready(mode) {
		return nil
	}

	b.mu.RLock()
	booted := b.booted
	b.mu.RUnlock()

	if !booted {
		start := time.Now()
		b.logger.Info("booting interpreter")
		if err := b.backend.Boot(ctx); err != nil {
			b.logger.Error("interpreter boot failed", "error", err)
			return &Error{Op: "boot", Mode: mode, Err: err}
		}
		b.mu.Lock()
		b.booted = true
		b.mu.Unlock()
		b.logger.Info("interpreter booted", "duration", time.Since(start))
	}

	pkgs := b.packages[mode]
	start := time.Now()
	if err := b.backend.Install(ctx, mode, pkgs); err != nil {
		b.logger.Error("package install failed", "mode", mode, "error", err)
		return &Error{Op: "install", Mode: mode, Err: err}
	}

	b.mu.Lock()
	b.ready[mode] = true
	b.mu.Unlock()
	b.logger.Info("packages installed", "mode", mode, "count", len(pkgs), "duration", time.Since(start))
	return nil
}

// Execute runs req. The mode its action needs must be ready.
func (b *Bridge) Execute(ctx context.Context, req Request) (*Result, error) {
	mode := req.Action.Mode()
	if !b.Ready(mode) {
		return nil, &Error{Op: "execute", Mode: mode, Err: ErrNotReady}
	}
	if req.Gamut == "" {
		req.Gamut = DefaultGamut
	}

	start := time.Now()
	res, err := b.backend.Execute(ctx, req)
	if err != nil {
		return nil, &Error{Op: "execute", Mode: mode, Err: err}
	}
	b.logger.Debug("executed", "action", req.Action, "id", req.ID, "session", req.Session,
		"failed", res.Failed(), "duration", time.Since(start))
	return res, nil
}

// Close shuts the backend down.
func (b *Bridge) Close(ctx context.Context) error {
	return b.backend.Close(ctx)
}

// Shutdown implements do.Shutdownable.
func (b *Bridge) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.Close(ctx)
}
