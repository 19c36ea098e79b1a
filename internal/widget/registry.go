package widget

import (
	"fmt"

	"github.com/livetemplate/colorplay/internal/render"
)

// Registry holds the widgets of one render pass. A new render replaces the
// registry as a whole; controllers are never carried over.
type Registry struct {
	widgets map[ID]*Controller
}

// NewRegistry creates controllers for every rendered widget.
func NewRegistry(env *Env, rendered []render.Widget) *Registry {
	r := &Registry{widgets: make(map[ID]*Controller, len(rendered))}
	for _, w := range rendered {
		c := New(env, w)
		r.widgets[c.id] = c
	}
	return r
}

// Get returns the controller for id.
func (r *Registry) Get(id ID) (*Controller, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	c, ok := r.widgets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	return c, nil
}

// Len returns the number of widgets.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.widgets)
}
