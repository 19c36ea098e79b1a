package site

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/livetemplate/colorplay/internal/uricodec"
)

// BuildResult summarizes a static build.
type BuildResult struct {
	Pages    int
	Widgets  int
	Duration time.Duration
}

// Builder writes the site as static files. Playground widgets are rendered
// with their initial results; running them again needs the server.
type Builder struct {
	Manager *Manager
	Pages   *Pages
	Layout  *Layout
	Logger  *slog.Logger
}

// Build writes assets, every docs page and the playground shell below outDir.
func (b *Builder) Build(ctx context.Context, outDir string) (*BuildResult, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := b.Layout.Assets.WriteDir(outDir); err != nil {
		return nil, err
	}

	result := &BuildResult{}
	for _, node := range b.Manager.AllPages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := b.Pages.Render(ctx, node.Path)
		if err != nil {
			return nil, err
		}
		if err := b.write(outDir, node.Path, b.Layout.Page(node, out.HTML)); err != nil {
			return nil, err
		}
		result.Pages++
		result.Widgets += len(out.Widgets)
		logger.Debug("page written", "path", node.Path, "widgets", len(out.Widgets))
	}

	if err := b.write(outDir, b.Manager.PlaygroundPath(), b.Layout.Playground()); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	logger.Info("site built", "dir", outDir, "pages", result.Pages, "widgets", result.Widgets, "duration", result.Duration)
	return result, nil
}

// write stores doc as index.html of urlPath, relative to the docs base.
func (b *Builder) write(outDir, urlPath, doc string) error {
	rel := strings.TrimPrefix(urlPath, uricodec.JoinPath(b.Manager.config.Docs.Base))
	dir := filepath.Join(outDir, filepath.FromSlash(strings.Trim(rel, "/")))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	target := filepath.Join(dir, "index.html")
	if err := os.WriteFile(target, []byte(doc), 0644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}
