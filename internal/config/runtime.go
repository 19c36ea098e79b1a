package config

import (
	"sync"
)

// runtimeFlags stores settings made at runtime via CLI flags.
// These values are not persisted to config files.
type runtimeFlags struct {
	mu         sync.RWMutex
	debug      bool
	unminified bool
}

var globalRuntime = &runtimeFlags{}

// SetDebug enables verbose logging and the debug panel in the client.
func SetDebug(debug bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.debug = debug
}

// IsDebug reports whether --debug was given.
func IsDebug() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.debug
}

// SetUnminifiedAssets makes the asset pipeline serve sources as written.
func SetUnminifiedAssets(on bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.unminified = on
}

// UnminifiedAssets returns whether assets are served without minification.
func UnminifiedAssets() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.unminified
}
