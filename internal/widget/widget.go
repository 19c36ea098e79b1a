// Package widget holds the state machine behind each runnable snippet of a
// rendered page.
//
// A Controller moves between Viewing and Editing; Run passes through
// Executing. Executions on one page are serialized by the page's execution
// lock: a Run that cannot take it returns ErrBusy without side effects.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/livetemplate/colorplay/internal/busy"
	"github.com/livetemplate/colorplay/internal/executor"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/session"
	"github.com/livetemplate/colorplay/internal/uricodec"
)

// DefaultShareMaxLength bounds the length of a share link.
const DefaultShareMaxLength = 2000

var (
	// ErrBusy is returned when the widget, or another widget of the page, is executing.
	ErrBusy = errors.New("widget is busy")
	// ErrShareTooLong is returned when the share link would exceed the maximum length.
	ErrShareTooLong = errors.New("share link too long")
	// ErrClipboard is returned when the link could not be handed to the clipboard.
	ErrClipboard = errors.New("clipboard write failed")
	// ErrUnknown is returned for an ID the registry does not hold.
	ErrUnknown = errors.New("unknown widget")
)

// ID identifies a widget within one render of a page.
type ID int

// DOMID is the id of the widget's container element.
func (id ID) DOMID() string { return "__playground_" + strconv.Itoa(int(id)) }

// FormID is the id of the element that carries the busy overlay during Run.
func (id ID) FormID() string { return "__playground-code_" + strconv.Itoa(int(id)) }

// Mode is what the widget shows.
type Mode string

const (
	ModeViewing Mode = "viewing-result"
	ModeEditing Mode = "editing-source"
)

// State is the controller state.
type State int

const (
	StateViewing State = iota
	StateEditing
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateViewing:
		return "viewing"
	case StateEditing:
		return "editing"
	case StateExecuting:
		return "executing"
	}
	return "unknown"
}

// Runtime is the part of the runtime bridge a widget uses.
type Runtime interface {
	EnsureReady(ctx context.Context, mode runtime.Mode) error
	Execute(ctx context.Context, req runtime.Request) (*runtime.Result, error)
}

// Clipboard receives share links.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Env is what all widgets of one page share.
type Env struct {
	Runtime  Runtime
	Lock     *executor.Lock
	Sessions *session.Store
	Busy     *busy.Indicator
	Renderer *render.Renderer

	// ShareBase and ShareRoute form the path of share links.
	ShareBase      string
	ShareRoute     string
	ShareMaxLength int

	Logger *slog.Logger
}

// View is a widget's state as the client draws it.
type View struct {
	Widget   ID     `json:"widget"`
	Mode     Mode   `json:"mode"`
	HTML     string `json:"html,omitempty"`
	Text     string `json:"text"`
	ReadOnly bool   `json:"readonly"`
}

// Controller is one widget.
type Controller struct {
	id         ID
	env        *Env
	session    string
	gamut      string
	exceptions bool

	mu       sync.Mutex
	text     string
	result   string
	mode     Mode
	busy     bool
	readOnly bool
	// saved is the text recorded by Edit; hasSaved distinguishes an empty snapshot.
	saved    string
	hasSaved bool
}

// New creates a controller for a rendered widget.
func New(env *Env, w render.Widget) *Controller {
	return &Controller{
		id:         ID(w.Index),
		env:        env,
		session:    w.Session,
		gamut:      w.Gamut,
		exceptions: w.Exceptions,
		text:       w.Code,
		result:     w.ResultHTML,
		mode:       ModeViewing,
	}
}

// ID returns the widget id.
func (c *Controller) ID() ID { return c.id }

// Session returns the session name, or "".
func (c *Controller) Session() string { return c.session }

// Text returns the current source.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.busy:
		return StateExecuting
	case c.mode == ModeEditing:
		return StateEditing
	default:
		return StateViewing
	}
}

// View returns what the client should draw.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{Widget: c.id, Mode: c.mode, HTML: c.result, Text: c.text, ReadOnly: c.readOnly}
}

// Snapshot returns the text saved by Edit, if any.
func (c *Controller) Snapshot() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved, c.hasSaved
}

// Edit shows the source editor and records the text for Cancel. Editing an
// already edited widget keeps the first snapshot.
func (c *Controller) Edit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.mode == ModeEditing {
		return nil
	}
	c.saved, c.hasSaved = c.text, true
	c.mode = ModeEditing
	return nil
}

// Cancel restores the text recorded by Edit and shows the result again.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.mode != ModeEditing {
		return nil
	}
	if c.hasSaved {
		c.text = c.saved
	}
	c.saved, c.hasSaved = "", false
	c.mode = ModeViewing
	return nil
}

// Run executes text. It returns ErrBusy, changing nothing, while this widget
// or any other widget sharing the execution lock is running.
//
// On success the result replaces the previous one and the widget returns to
// Viewing. If the runtime fails the widget stays in Editing with text kept,
// the failure is shown in the results pane and returned.
func (c *Controller) Run(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.env.Lock.TryAcquire() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.readOnly = true
	c.text = text
	c.mu.Unlock()

	hide := c.env.Busy.Show(c.id.FormID(), busy.LabelRunning)
	defer func() {
		hide()
		c.env.Lock.Release()
		c.mu.Lock()
		c.busy = false
		c.readOnly = false
		c.mu.Unlock()
	}()

	res, err := c.execute(ctx, text)
	if err != nil {
		c.logger().Warn("widget run failed", "widget", c.id, "error", err)
		c.mu.Lock()
		c.result = c.env.Renderer.Error(err)
		c.mode = ModeEditing
		c.mu.Unlock()
		return err
	}

	html := c.env.Renderer.Result(res)
	c.mu.Lock()
	c.result = html
	c.mode = ModeViewing
	c.saved, c.hasSaved = "", false
	c.mu.Unlock()
	return nil
}

func (c *Controller) execute(ctx context.Context, text string) (*runtime.Result, error) {
	if err := c.env.Runtime.EnsureReady(ctx, runtime.ModeLight); err != nil {
		return nil, err
	}

	req := runtime.Request{
		Action:     runtime.ActionPlayground,
		ID:         strconv.Itoa(int(c.id)),
		Session:    c.session,
		Code:       text,
		Gamut:      c.gamut,
		Exceptions: c.exceptions,
	}
	live := c.session != "" && c.env.Sessions != nil && c.env.Sessions.Live()
	if live {
		if snap, ok := c.env.Sessions.Get(c.session); ok {
			req.State = snap.Bytes()
		}
	}

	res, err := c.env.Runtime.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if live && !res.Failed() {
		c.env.Sessions.Put(c.session, session.NewSnapshot(res.State))
	}
	return res, nil
}

// Share builds the share link for text and hands it to clip. A link longer
// than the configured maximum is rejected before clip is called.
func (c *Controller) Share(ctx context.Context, origin, text string, clip Clipboard) (string, error) {
	link := uricodec.ShareLink(origin, c.env.ShareBase, c.env.ShareRoute, text)
	if limit := c.env.shareMax(); len(link) > limit {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrShareTooLong, len(link), limit)
	}
	if err := clip.WriteText(ctx, link); err != nil {
		return "", fmt.Errorf("%w: %v", ErrClipboard, err)
	}
	return link, nil
}

func (c *Controller) logger() *slog.Logger {
	if c.env.Logger != nil {
		return c.env.Logger
	}
	return slog.Default()
}

func (e *Env) shareMax() int {
	if e.ShareMaxLength > 0 {
		return e.ShareMaxLength
	}
	return DefaultShareMaxLength
}
