package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/di"
	"github.com/livetemplate/colorplay/internal/server"
	"github.com/livetemplate/colorplay/internal/site"
)

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
	dir := "."
	var configPath, port, host string
	var watch *bool
	var debug, unminified bool

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if v, n, ok := flagValue(args, i, "--port", "-p"); ok {
			port, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--host"); ok {
			host, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--config", "-c"); ok {
			configPath, i = v, i+n
		} else if arg == "--watch" || arg == "-w" {
			watchVal := true
			watch = &watchVal
		} else if arg == "--no-watch" {
			watchVal := false
			watch = &watchVal
		} else if arg == "--debug" {
			debug = true
		} else if arg == "--unminified" {
			unminified = true
		} else if !strings.HasPrefix(arg, "-") {
			dir = arg
		} else {
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	config.SetDebug(debug)
	config.SetUnminifiedAssets(unminified || debug)

	absDir, cfg, err := loadConfig(dir, configPath)
	if err != nil {
		return err
	}

	// CLI flags override config
	if port != "" {
		portInt, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port: %s", port)
		}
		cfg.Server.Port = portInt
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if watch != nil {
		cfg.Server.HotReload = *watch
	}
	if debug {
		cfg.Server.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg)
	injector := di.NewContainer(absDir, cfg, log)
	defer func() {
		if err := injector.Shutdown(); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	manager := do.MustInvoke[*site.Manager](injector)

	fmt.Printf("🎨 Colorplay Development Server\n\n")
	fmt.Printf("Serving: %s\n", absDir)
	fmt.Printf("Runtime: %s\n", cfg.Runtime.Backend)

	fmt.Printf("\nPages discovered:\n")
	for _, page := range manager.AllPages() {
		fmt.Printf("  %-30s %s\n", page.Path, page.FilePath)
	}
	fmt.Printf("  %-30s %s\n", manager.PlaygroundPath(), "(playground)")

	if cfg.Server.HotReload {
		if err := srv.EnableWatch(); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Printf("\n👀 Watch mode enabled - pages reload when .md files change\n")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("\n🌐 Server running at http://%s%s\n", addr, manager.PlaygroundPath())
	if config.IsDebug() {
		fmt.Printf("🐛 Debug mode enabled\n")
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Printf("👋 Stopped\n")
	return nil
}
