// Package commands implements the colorplay subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/logger"
)

// loadConfig resolves dir and loads its configuration, or configPath when set.
func loadConfig(dir, configPath string) (string, *config.Config, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", nil, fmt.Errorf("directory does not exist: %s", dir)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	return absDir, cfg, nil
}

// newLogger builds the process logger; debug forces debug level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if config.IsDebug() {
		level = slog.LevelDebug
	}
	l := logger.New(logger.Config{
		Format: cfg.Log.Format,
		Level:  level,
	})
	slog.SetDefault(l)
	return l
}

// flagValue returns the value of a "--name value" or "--name=value" flag at
// args[i] and how many extra arguments it consumed.
func flagValue(args []string, i int, names ...string) (string, int, bool) {
	arg := args[i]
	for _, name := range names {
		if arg == name {
			if i+1 < len(args) {
				return args[i+1], 1, true
			}
			return "", 0, true
		}
		if len(arg) > len(name)+1 && arg[:len(name)+1] == name+"=" {
			return arg[len(name)+1:], 0, true
		}
	}
	return "", 0, false
}
