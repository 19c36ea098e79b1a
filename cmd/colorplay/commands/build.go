package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/do/v2"

	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/di"
	"github.com/livetemplate/colorplay/internal/site"
)

// BuildCommand implements the build command. It renders every docs page,
// executing its widgets, and writes the site with revisioned assets.
func BuildCommand(args []string) error {
	dir := "."
	var configPath, outputPath string
	var unminified bool

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if v, n, ok := flagValue(args, i, "--output", "-o"); ok {
			outputPath, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--config", "-c"); ok {
			configPath, i = v, i+n
		} else if arg == "--unminified" {
			unminified = true
		} else if !strings.HasPrefix(arg, "-") {
			dir = arg
		} else {
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}
	config.SetUnminifiedAssets(unminified)

	absDir, cfg, err := loadConfig(dir, configPath)
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = filepath.Join(absDir, cfg.Docs.OutputDir)
	}
	absOutput, err := filepath.Abs(outputPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute output path: %w", err)
	}

	log := newLogger(cfg)
	injector := di.NewContainer(absDir, cfg, log)
	defer injector.Shutdown()

	builder, err := do.Invoke[*site.Builder](injector)
	if err != nil {
		return err
	}

	fmt.Printf("🔨 Building site...\n")
	fmt.Printf("   Input: %s\n", absDir)
	fmt.Printf("   Output: %s\n", absOutput)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := builder.Build(ctx, absOutput)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	fmt.Printf("✅ Built %d pages (%d widgets) in %s\n", res.Pages, res.Widgets, res.Duration.Round(time.Millisecond))
	return nil
}
