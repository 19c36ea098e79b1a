package di

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/livetemplate/colorplay/internal/assets"
	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/navigation"
	"github.com/livetemplate/colorplay/internal/playground"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/runtime/pkgcache"
	"github.com/livetemplate/colorplay/internal/server"
	"github.com/livetemplate/colorplay/internal/site"
)

// cacheDir resolves the configured cache directory against the docs root.
func cacheDir(i do.Injector) string {
	cfg := do.MustInvoke[*config.Config](i)
	dir := cfg.Runtime.CacheDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(string(do.MustInvoke[Root](i)), dir)
	}
	return dir
}

// PackageCacheHandle wraps the package cache with shutdown capability.
type PackageCacheHandle struct {
	*pkgcache.Cache
}

// Shutdown implements do.Shutdownable.
func (h *PackageCacheHandle) Shutdown() error {
	return h.Close()
}

// ProvidePackageCache opens the download cache of the wasm backend.
func ProvidePackageCache(i do.Injector) (*PackageCacheHandle, error) {
	log := do.MustInvoke[*slog.Logger](i)

	cache, err := pkgcache.Open(filepath.Join(cacheDir(i), "packages"), pkgcache.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &PackageCacheHandle{Cache: cache}, nil
}

// ProvideBackend selects the interpreter backend from config.
func ProvideBackend(i do.Injector) (runtime.Backend, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	rc := cfg.Runtime
	workDir := filepath.Join(cacheDir(i), "work")

	switch rc.Backend {
	case "exec":
		return runtime.NewExecBackend(runtime.ExecConfig{
			Command:   rc.Exec.Command,
			Installer: rc.Exec.Installer,
			IndexURL:  rc.IndexURL,
			WorkDir:   workDir,
			Timeout:   rc.Timeout,
		}, log), nil
	case "wasm":
		cache := do.MustInvoke[*PackageCacheHandle](i)
		return runtime.NewWasmBackend(runtime.WasmConfig{
			RuntimeURL:   rc.RuntimeURL,
			IndexURL:     rc.IndexURL,
			PackageIndex: rc.PackageIndex,
			Timeout:      rc.Timeout,
			WorkDir:      workDir,
		}, cache.Cache, log), nil
	default:
		return nil, fmt.Errorf("unknown runtime backend %q", rc.Backend)
	}
}

// ProvideBridge provides the server-wide runtime bridge.
func ProvideBridge(i do.Injector) (*runtime.Bridge, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	backend := do.MustInvoke[runtime.Backend](i)

	packages := make(map[runtime.Mode][]string)
	for mode, pkgs := range cfg.Runtime.PackageSets() {
		packages[runtime.Mode(mode)] = pkgs
	}
	return runtime.NewBridge(backend, packages, log), nil
}

// ProvideRenderer provides the page renderer.
func ProvideRenderer(i do.Injector) (*render.Renderer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	return render.New(render.WithStyle(cfg.Styling.CodeStyle), render.WithLogger(log)), nil
}

// ProvideAssets builds the client bundle with the highlighting theme.
func ProvideAssets(i do.Injector) (*assets.Bundle, error) {
	renderer := do.MustInvoke[*render.Renderer](i)

	theme, err := renderer.CSS()
	if err != nil {
		return nil, fmt.Errorf("highlighting theme: %w", err)
	}
	return assets.Build(assets.Options{
		Minify:   !config.UnminifiedAssets(),
		ExtraCSS: theme,
	})
}

// ProvideFetcher provides the remote notebook fetcher.
func ProvideFetcher(i do.Injector) (navigation.Fetcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	pc := cfg.Playground
	return navigation.NewHTTPFetcher(pc.FetchTimeout,
		navigation.WithMaxSize(pc.FetchMaxSize),
		navigation.WithAllowPrivate(pc.AllowPrivateFetch),
	), nil
}

// ProvideManager discovers the docs pages.
func ProvideManager(i do.Injector) (*site.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	m := site.New(string(do.MustInvoke[Root](i)), cfg)
	if err := m.Discover(); err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}
	return m, nil
}

// PagesHandle wraps the page cache with shutdown capability.
type PagesHandle struct {
	*site.Pages
}

// Shutdown implements do.Shutdownable.
func (h *PagesHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvidePages provides the rendered docs page cache.
func ProvidePages(i do.Injector) (*PagesHandle, error) {
	log := do.MustInvoke[*slog.Logger](i)
	pages := site.NewPages(
		do.MustInvoke[*site.Manager](i),
		do.MustInvoke[*render.Renderer](i),
		do.MustInvoke[*runtime.Bridge](i),
		site.DefaultPageTTL,
		log,
	)
	return &PagesHandle{Pages: pages}, nil
}

// ProvideLayout provides the HTML page shell.
func ProvideLayout(i do.Injector) (*site.Layout, error) {
	return &site.Layout{
		Config:  do.MustInvoke[*config.Config](i),
		Manager: do.MustInvoke[*site.Manager](i),
		Assets:  do.MustInvoke[*assets.Bundle](i),
		WSPath:  server.WSPath,
		Debug:   config.IsDebug(),
	}, nil
}

// ProvideBuilder provides the static site builder.
func ProvideBuilder(i do.Injector) (*site.Builder, error) {
	return &site.Builder{
		Manager: do.MustInvoke[*site.Manager](i),
		Pages:   do.MustInvoke[*PagesHandle](i).Pages,
		Layout:  do.MustInvoke[*site.Layout](i),
		Logger:  do.MustInvoke[*slog.Logger](i),
	}, nil
}

// ProvideHub provides the registry of open page sessions.
func ProvideHub(i do.Injector) (*playground.Hub, error) {
	return playground.NewHub(do.MustInvoke[*slog.Logger](i)), nil
}

// ProvideServer provides the HTTP server.
func ProvideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	pages := do.MustInvoke[*PagesHandle](i).Pages

	srv := server.New(server.Options{
		Config:  cfg,
		Manager: do.MustInvoke[*site.Manager](i),
		Pages:   pages,
		Layout:  do.MustInvoke[*site.Layout](i),
		Hub:     do.MustInvoke[*playground.Hub](i),
		Session: playground.Config{
			Base:              cfg.Docs.Base,
			Route:             cfg.Playground.Route,
			IntroURL:          cfg.Playground.IntroURL,
			ShareMaxLength:    cfg.Playground.ShareMaxLength,
			SessionTTL:        cfg.Playground.SessionTTL,
			MessagesPerSecond: cfg.Server.RateLimit.MessagesPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
		Deps: playground.Deps{
			Runtime:  do.MustInvoke[*runtime.Bridge](i),
			Renderer: do.MustInvoke[*render.Renderer](i),
			Fetcher:  do.MustInvoke[navigation.Fetcher](i),
			Docs:     pages.Render,
			Logger:   log,
		},
		Logger: log,
	})
	return srv, nil
}
