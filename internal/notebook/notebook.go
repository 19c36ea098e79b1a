// Package notebook is the page-level editor: one buffer holding a whole
// markdown page that is rendered, widgets included, on submit.
package notebook

import (
	"context"
	"fmt"
	"sync"

	"github.com/livetemplate/colorplay"
	"github.com/livetemplate/colorplay/internal/busy"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/widget"
)

// TargetArticle is the busy overlay target covering the page body.
const TargetArticle = "article"

// Controller owns the notebook buffer and the widgets of the current render.
type Controller struct {
	env   *widget.Env
	gamut string

	mu       sync.Mutex
	text     string
	saved    string
	editing  bool
	output   *render.Output
	registry *widget.Registry
}

// New creates a notebook controller. gamut is passed to every render.
func New(env *widget.Env, gamut string) *Controller {
	return &Controller{env: env, gamut: gamut}
}

// Text returns the buffer.
func (n *Controller) Text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.text
}

// Editing reports whether the source editor is shown.
func (n *Controller) Editing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.editing
}

// Output returns the last render, or nil.
func (n *Controller) Output() *render.Output {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.output
}

// Registry returns the widgets of the last render. It is nil before the first.
func (n *Controller) Registry() *widget.Registry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry
}

// SetGamut changes the gamut used by later renders.
func (n *Controller) SetGamut(gamut string) {
	n.mu.Lock()
	n.gamut = gamut
	n.mu.Unlock()
}

// Edit shows the source editor and remembers the buffer for Cancel.
func (n *Controller) Edit() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.editing {
		return
	}
	n.saved = n.text
	n.editing = true
}

// Cancel hides the editor and restores the buffer saved by Edit.
func (n *Controller) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.editing {
		return
	}
	n.text = n.saved
	n.saved = ""
	n.editing = false
}

// Submit renders text as a new page. Sessions of the previous page are
// destroyed first. The page overlay is shown for the duration of the call
// and is always removed, also when the render fails.
func (n *Controller) Submit(ctx context.Context, text string) (*render.Output, error) {
	n.env.Sessions.Reset()

	n.mu.Lock()
	n.text = text
	n.saved = ""
	n.editing = false
	gamut := n.gamut
	n.mu.Unlock()

	hide := n.env.Busy.Show(TargetArticle, busy.LabelNotebook)
	defer hide()

	if err := n.env.Runtime.EnsureReady(ctx, runtime.ModeFull); err != nil {
		return nil, err
	}

	page, err := colorplay.Parse("notebook", []byte(text))
	if err != nil {
		return nil, err
	}

	var out *render.Output
	err = n.env.Lock.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = n.env.Renderer.Page(ctx, page, n.env.Runtime, gamut)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("render notebook: %w", err)
	}

	n.Load(out)
	return out, nil
}

// Load installs a rendered page: its widgets replace the current registry
// and a live page switches the session store into live mode.
func (n *Controller) Load(out *render.Output) {
	n.env.Sessions.Reset()
	if out.Live {
		n.env.Sessions.EnterLive()
	}

	reg := widget.NewRegistry(n.env, out.Widgets)
	n.mu.Lock()
	n.output = out
	n.registry = reg
	n.mu.Unlock()
}
