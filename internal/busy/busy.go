// Package busy tracks loading overlays per target container.
package busy

import "sync"

// Common overlay labels.
const (
	LabelRuntime  = "Loading runtime..."
	LabelNotebook = "Loading Notebook..."
	LabelRunning  = "Running..."
)

// State is what the client needs to draw or remove an overlay.
type State struct {
	Target  string `json:"target"`
	Label   string `json:"label,omitempty"`
	Visible bool   `json:"visible"`
}

// PublishFunc receives every visible change of an overlay.
type PublishFunc func(State)

type overlay struct {
	depth int
	label string
}

// Indicator holds one overlay per target. Show and Hide nest: the overlay
// stays up until every Show has been matched by a Hide.
type Indicator struct {
	mu       sync.Mutex
	overlays map[string]*overlay
	publish  PublishFunc
}

// New creates an Indicator. publish may be nil.
func New(publish PublishFunc) *Indicator {
	return &Indicator{
		overlays: make(map[string]*overlay),
		publish:  publish,
	}
}

// Show raises the overlay on target, or relabels it if already visible.
// It returns a func that performs the matching Hide exactly once.
func (i *Indicator) Show(target, label string) func() {
	i.mu.Lock()
	o, ok := i.overlays[target]
	if !ok {
		o = &overlay{}
		i.overlays[target] = o
	}
	o.depth++
	changed := !ok || o.label != label
	o.label = label
	i.mu.Unlock()

	if changed {
		i.emit(State{Target: target, Label: label, Visible: true})
	}

	var once sync.Once
	return func() { once.Do(func() { i.Hide(target) }) }
}

// Hide undoes one Show. Extra calls are ignored.
func (i *Indicator) Hide(target string) {
	i.mu.Lock()
	o, ok := i.overlays[target]
	if !ok {
		i.mu.Unlock()
		return
	}
	o.depth--
	gone := o.depth <= 0
	if gone {
		delete(i.overlays, target)
	}
	i.mu.Unlock()

	if gone {
		i.emit(State{Target: target})
	}
}

// Visible reports whether target currently shows an overlay.
func (i *Indicator) Visible(target string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.overlays[target]
	return ok
}

// Label returns the label shown on target, or "".
func (i *Indicator) Label(target string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if o, ok := i.overlays[target]; ok {
		return o.label
	}
	return ""
}

func (i *Indicator) emit(s State) {
	if i.publish != nil {
		i.publish(s)
	}
}
