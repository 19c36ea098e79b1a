package server

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// skippedDirs are never watched.
var skippedDirs = map[string]bool{"node_modules": true, "vendor": true, "site": true}

// Watcher watches the docs directory and reports changed markdown files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	onChange func(relPath string) error
	logger   *slog.Logger
	done     chan struct{}
}

// NewWatcher creates a file watcher for rootDir. onChange receives the
// path of a written, created, removed or renamed .md file relative to rootDir.
func NewWatcher(rootDir string, onChange func(string) error, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		onChange: onChange,
		logger:   logger.With("component", "watch"),
		done:     make(chan struct{}),
	}

	if err := w.addDirectoryRecursive(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return w, nil
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		// Hidden dirs hold the package cache and VCS data.
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", "dir", path)
		return nil
	})
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handle(event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("watch error", "error", err)

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoryRecursive(event.Name); err != nil {
				w.logger.Warn("watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if filepath.Ext(event.Name) != ".md" {
		return
	}

	relPath, err := filepath.Rel(w.rootDir, event.Name)
	if err != nil {
		relPath = event.Name
	}
	w.logger.Debug("file changed", "file", relPath, "op", event.Op.String())

	if err := w.onChange(relPath); err != nil {
		w.logger.Error("reload failed", "file", relPath, "error", err)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
