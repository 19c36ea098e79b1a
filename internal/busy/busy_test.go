package busy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) publish(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func TestShowHide(t *testing.T) {
	rec := &recorder{}
	ind := New(rec.publish)

	hide := ind.Show("article", LabelNotebook)
	assert.True(t, ind.Visible("article"))
	assert.Equal(t, LabelNotebook, ind.Label("article"))

	hide()
	hide() // second call is a no-op
	assert.False(t, ind.Visible("article"))

	assert.Equal(t, []State{
		{Target: "article", Label: LabelNotebook, Visible: true},
		{Target: "article"},
	}, rec.states)
}

func TestNestedShow(t *testing.T) {
	rec := &recorder{}
	ind := New(rec.publish)

	outer := ind.Show("article", LabelRuntime)
	inner := ind.Show("article", LabelNotebook)
	assert.Equal(t, LabelNotebook, ind.Label("article"))

	inner()
	assert.True(t, ind.Visible("article"), "outer show still holds the overlay")

	outer()
	assert.False(t, ind.Visible("article"))
	assert.Len(t, rec.states, 3)
}

func TestSameLabelNotRepublished(t *testing.T) {
	rec := &recorder{}
	ind := New(rec.publish)

	a := ind.Show("w1", LabelRunning)
	b := ind.Show("w1", LabelRunning)
	b()
	a()
	assert.Len(t, rec.states, 2)
}

func TestHideUnknownTarget(t *testing.T) {
	ind := New(nil)
	ind.Hide("nope")
	assert.False(t, ind.Visible("nope"))
}
