package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/livetemplate/colorplay/internal/cache"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
)

// ErrNotFound is returned for a path no docs page is served at.
var ErrNotFound = errors.New("page not found")

// DefaultPageTTL bounds how long a rendered docs page is reused.
const DefaultPageTTL = 10 * time.Minute

// Runtime is what rendering a docs page needs from the runtime bridge.
type Runtime interface {
	EnsureReady(ctx context.Context, mode runtime.Mode) error
	render.Executor
}

// Pages renders docs pages, executing their playground fences, and caches
// the output per URL path.
type Pages struct {
	manager  *Manager
	renderer *render.Renderer
	runtime  Runtime
	cache    *cache.MemoryCache[*render.Output]
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewPages creates a docs page renderer. ttl <= 0 uses DefaultPageTTL.
func NewPages(m *Manager, r *render.Renderer, rt Runtime, ttl time.Duration, logger *slog.Logger) *Pages {
	if ttl <= 0 {
		ttl = DefaultPageTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pages{
		manager:  m,
		renderer: r,
		runtime:  rt,
		cache:    cache.NewMemoryCache[*render.Output](),
		ttl:      ttl,
		logger:   logger.With("component", "pages"),
	}
}

// Render returns the rendered page at urlPath.
func (p *Pages) Render(ctx context.Context, urlPath string) (*render.Output, error) {
	node, ok := p.manager.GetPage(urlPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, urlPath)
	}
	if out, ok := p.cache.Get(node.Path); ok {
		return out, nil
	}

	v, err, _ := p.group.Do(node.Path, func() (any, error) {
		return p.render(ctx, node)
	})
	if err != nil {
		return nil, err
	}
	return v.(*render.Output), nil
}

func (p *Pages) render(ctx context.Context, node *PageNode) (*render.Output, error) {
	if len(node.Page.PlaygroundFences()) > 0 {
		if err := p.runtime.EnsureReady(ctx, runtime.ModeFull); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	out, err := p.renderer.Page(ctx, node.Page, p.runtime, runtime.DefaultGamut)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", node.FilePath, err)
	}
	p.logger.Debug("page rendered", "path", node.Path, "widgets", len(out.Widgets), "duration", time.Since(start))

	p.cache.Set(node.Path, out, p.ttl)
	return out, nil
}

// Invalidate drops cached output for urlPath, or everything when urlPath is "".
func (p *Pages) Invalidate(urlPath string) {
	if urlPath == "" {
		p.cache.InvalidateAll()
		return
	}
	p.cache.Invalidate(urlPath)
}

// Cached returns the number of cached pages.
func (p *Pages) Cached() int { return p.cache.Len() }

// Close stops the cache sweeper.
func (p *Pages) Close() { p.cache.Stop() }
