// Package di wires colorplay's components with a samber/do container.
package di

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/livetemplate/colorplay/internal/config"
)

// Root is the docs directory the container serves.
type Root string

// NewContainer creates the container for the docs in dir. Every component
// is built lazily on first Invoke.
func NewContainer(dir string, cfg *config.Config, logger *slog.Logger) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, Root(dir))
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)

	// Runtime
	do.Provide(injector, ProvidePackageCache)
	do.Provide(injector, ProvideBackend)
	do.Provide(injector, ProvideBridge)

	// Rendering
	do.Provide(injector, ProvideRenderer)
	do.Provide(injector, ProvideAssets)
	do.Provide(injector, ProvideFetcher)

	// Site
	do.Provide(injector, ProvideManager)
	do.Provide(injector, ProvidePages)
	do.Provide(injector, ProvideLayout)
	do.Provide(injector, ProvideBuilder)

	// Server
	do.Provide(injector, ProvideHub)
	do.Provide(injector, ProvideServer)

	return injector
}
