package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/samber/do/v2"

	"github.com/livetemplate/colorplay"
	"github.com/livetemplate/colorplay/internal/di"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
)

// RenderCommand renders one markdown file and writes the HTML fragment to out.
func RenderCommand(args []string, out io.Writer) error {
	var file, configPath, gamut string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if v, n, ok := flagValue(args, i, "--config", "-c"); ok {
			configPath, i = v, i+n
		} else if v, n, ok := flagValue(args, i, "--gamut"); ok {
			gamut, i = v, i+n
		} else if !strings.HasPrefix(arg, "-") {
			file = arg
		} else {
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}
	if file == "" {
		return fmt.Errorf("file required\n\nUsage: colorplay render <file.md> [--gamut=srgb] [--config=colorplay.yaml]")
	}

	page, err := colorplay.ParseFile(file)
	if err != nil {
		return err
	}

	absDir, cfg, err := loadConfig(filepath.Dir(file), configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	injector := di.NewContainer(absDir, cfg, log)
	defer injector.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	renderer := do.MustInvoke[*render.Renderer](injector)
	var exec render.Executor = noExecutor{}
	if len(page.PlaygroundFences()) > 0 {
		bridge, err := do.Invoke[*runtime.Bridge](injector)
		if err != nil {
			return err
		}
		if err := bridge.EnsureReady(ctx, runtime.ModeFull); err != nil {
			return err
		}
		exec = bridge
	}

	output, err := renderer.Page(ctx, page, exec, gamut)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, output.HTML)
	return err
}

// noExecutor serves pages without widgets, where nothing is executed.
type noExecutor struct{}

func (noExecutor) Execute(context.Context, runtime.Request) (*runtime.Result, error) {
	return nil, fmt.Errorf("no interpreter available")
}
