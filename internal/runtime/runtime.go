// Package runtime boots the snippet interpreter and runs executions against it.
//
// The Bridge owns readiness: the interpreter is booted once and each Mode's
// package set is installed once. Backends do the actual work; a wazero-hosted
// WASI interpreter and an external process are provided.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Mode selects the package set an execution needs.
type Mode string

const (
	// ModeLight runs single widgets.
	ModeLight Mode = "light"
	// ModeFull renders whole pages and needs the markdown extensions as well.
	ModeFull Mode = "full"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLight || m == ModeFull
}

// Action tells the interpreter-side driver how to treat the code.
type Action string

const (
	// ActionRender executes a fence while a page is being rendered.
	ActionRender Action = "render"
	// ActionPlayground executes a widget after the user pressed Run.
	ActionPlayground Action = "playground"
)

// Mode returns the package set the action requires.
func (a Action) Mode() Mode {
	if a == ActionRender {
		return ModeFull
	}
	return ModeLight
}

// Request is the execution context handed to the interpreter.
type Request struct {
	Action  Action `json:"action"`
	ID      string `json:"id"`
	Session string `json:"session,omitempty"`
	Code    string `json:"code"`
	Content string `json:"content,omitempty"`
	Gamut   string `json:"gamut"`
	// Exceptions asks the driver to format uncaught exceptions as console output.
	Exceptions bool   `json:"exceptions,omitempty"`
	State      []byte `json:"state,omitempty"`
}

// Color is one color the interpreter discovered in an evaluated statement.
type Color struct {
	String    string `json:"string"`
	CSS       string `json:"css"`
	CSSOpaque string `json:"css_opaque"`
	InGamut   bool   `json:"in_gamut"`
}

// GroupKind says how a ColorGroup is drawn.
type GroupKind string

const (
	GroupColors GroupKind = "colors"
	GroupRow    GroupKind = "row"
	GroupSteps  GroupKind = "steps"
	GroupRamp   GroupKind = "ramp"
)

// ColorGroup is a run of colors produced by one statement.
type ColorGroup struct {
	Kind   GroupKind `json:"kind"`
	Colors []Color   `json:"colors"`
}

// Result is what one execution produced. Error carries interpreter-level
// failures (syntax errors, exceptions) that are rendered, not returned.
type Result struct {
	Console string       `json:"console"`
	Colors  []ColorGroup `json:"colors,omitempty"`
	Error   string       `json:"error,omitempty"`
	State   []byte       `json:"state,omitempty"`
}

// Failed reports whether the interpreter rejected the code.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// Backend hosts an interpreter.
type Backend interface {
	// Boot loads the interpreter. It is called once, before any Install.
	Boot(ctx context.Context) error
	// Install makes packages importable for mode.
	Install(ctx context.Context, mode Mode, packages []string) error
	// Execute runs one request.
	Execute(ctx context.Context, req Request) (*Result, error)
	// Close releases interpreter resources.
	Close(ctx context.Context) error
}

// DefaultGamut is used when the client did not report its display gamut.
const DefaultGamut = "srgb"

var (
	// ErrNotReady is returned by Execute before EnsureReady succeeded for the action's mode.
	ErrNotReady = errors.New("runtime not ready")
	// ErrUnknownMode is returned for a Mode other than ModeLight or ModeFull.
	ErrUnknownMode = errors.New("unknown mode")
	// ErrTimeout is returned when an execution outlives the configured timeout.
	ErrTimeout = errors.New("execution timed out")
)

// Error wraps a backend failure with the operation and mode.
type Error struct {
	Op   string // "boot", "install" or "execute"
	Mode Mode
	Err  error
}

func (e *Error) Error() string {
	if e.Mode != "" {
		return fmt.Sprintf("runtime %s (%s): %v", e.Op, e.Mode, e.Err)
	}
	return fmt.Sprintf("runtime %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsWheel reports whether spec names a wheel file rather than a project.
func IsWheel(spec string) bool {
	return strings.HasSuffix(strings.ToLower(spec), ".whl")
}

// IsLocation reports whether spec is a URL or an absolute path.
func IsLocation(spec string) bool {
	if u, err := url.Parse(spec); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return true
	}
	return filepath.IsAbs(spec)
}

// ResolvePackage turns a package spec into what an installer is given.
// URLs, absolute paths and project names are kept; a relative wheel file is
// taken relative to indexURL.
func ResolvePackage(indexURL, spec string) string {
	if IsLocation(spec) || !IsWheel(spec) || indexURL == "" {
		return spec
	}
	return strings.TrimRight(indexURL, "/") + "/" + strings.TrimLeft(spec, "/")
}
