package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/colorplay"
	"github.com/livetemplate/colorplay/internal/runtime"
)

type fakeExecutor struct {
	reqs []runtime.Request
	fn   func(runtime.Request) (*runtime.Result, error)
}

func (f *fakeExecutor) Execute(_ context.Context, req runtime.Request) (*runtime.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.fn != nil {
		return f.fn(req)
	}
	return &runtime.Result{
		Console: ">>> " + req.Code + "\n",
		Colors: []runtime.ColorGroup{{
			Kind:   runtime.GroupColors,
			Colors: []runtime.Color{{String: "red", CSS: "rgb(255 0 0)", CSSOpaque: "rgb(255 0 0)", InGamut: true}},
		}},
	}, nil
}

const samplePage = `---
live: true
---
# Gradients

Some *prose*.

<script>alert("x")</script>

` + "```py play session=a\nColor('red')\n```\n\n```go\nfmt.Println(1)\n```\n\n```playground\nColor('blue')\n```\n"

func TestPageRendersWidgetsInOrder(t *testing.T) {
	page, err := colorplay.Parse("gradients", []byte(samplePage))
	require.NoError(t, err)

	exec := &fakeExecutor{}
	out, err := New().Page(context.Background(), page, exec, "")
	require.NoError(t, err)

	assert.True(t, out.Live)
	require.Len(t, out.Widgets, 2)
	assert.Equal(t, 0, out.Widgets[0].Index)
	assert.Equal(t, 1, out.Widgets[1].Index)
	assert.Equal(t, "a", out.Widgets[0].Session)
	assert.Equal(t, "Color('blue')", out.Widgets[1].Code)
	assert.Equal(t, runtime.DefaultGamut, out.Widgets[0].Gamut)

	require.Len(t, exec.reqs, 2)
	for i, req := range exec.reqs {
		assert.Equal(t, runtime.ActionRender, req.Action)
		assert.Equal(t, []string{"0", "1"}[i], req.ID)
		assert.Empty(t, req.State, "render executions start fresh")
	}

	assert.Contains(t, out.HTML, `id="__playground_0"`)
	assert.Contains(t, out.HTML, `id="__playground_1"`)
	assert.Contains(t, out.HTML, "<em>prose</em>")
	assert.Contains(t, out.HTML, `class="chroma"`)
	assert.NotContains(t, out.HTML, "<script")
	assert.NotContains(t, out.HTML, "colorplay-fence-")
	assert.Less(t, strings.Index(out.HTML, "__playground_0"), strings.Index(out.HTML, "fmt"))
	assert.Less(t, strings.Index(out.HTML, "fmt"), strings.Index(out.HTML, "__playground_1"))
}

func TestPageExecutorFailureAborts(t *testing.T) {
	page, err := colorplay.Parse("p", []byte("```playground\nColor('red')\n```\n"))
	require.NoError(t, err)

	boom := errors.New("boom")
	exec := &fakeExecutor{fn: func(runtime.Request) (*runtime.Result, error) { return nil, boom }}
	_, err = New().Page(context.Background(), page, exec, "srgb")
	assert.ErrorIs(t, err, boom)
}

func TestPageInterpreterErrorStillRenders(t *testing.T) {
	page, err := colorplay.Parse("p", []byte("```playground\n1/0\n```\n"))
	require.NoError(t, err)

	exec := &fakeExecutor{fn: func(runtime.Request) (*runtime.Result, error) {
		return &runtime.Result{Console: ">>> 1/0\n", Error: "ZeroDivisionError: division by zero"}, nil
	}}
	out, err := New().Page(context.Background(), page, exec, "display-p3")
	require.NoError(t, err)
	require.Len(t, out.Widgets, 1)
	assert.Contains(t, out.Widgets[0].ResultHTML, "ZeroDivisionError")
	assert.Contains(t, out.HTML, "Gamut: display-p3")
}

func TestPageWithoutFences(t *testing.T) {
	page, err := colorplay.Parse("p", []byte("# Title\n\nJust text.\n"))
	require.NoError(t, err)

	out, err := New().Page(context.Background(), page, &fakeExecutor{}, "")
	require.NoError(t, err)
	assert.Empty(t, out.Widgets)
	assert.False(t, out.Live)
	assert.Contains(t, out.HTML, "Just text.")
}

func TestResultWithoutColors(t *testing.T) {
	html := New().Result(&runtime.Result{Console: ">>> 1 + 1\n2\n"})
	assert.True(t, strings.HasPrefix(html, `<div class="color-command"><div class="swatch-bar"></div>`))
	assert.Contains(t, html, `class="highlight"`)
}

func TestError(t *testing.T) {
	html := New().Error(errors.New("runtime boot: offline"))
	assert.Contains(t, html, "offline")
	assert.Contains(t, html, `<div class="swatch-bar"></div>`)
}

func TestWidgetEscapesCode(t *testing.T) {
	html := New().Widget(Widget{Index: 3, Code: "print('<b>')", Gamut: "srgb"})
	assert.Contains(t, html, "&lt;b&gt;")
	for _, id := range []string{
		"__playground_3", "__playground-results_3", "__playground-code_3", "__playground-inputs_3",
		"__playground-edit_3", "__playground-share_3", "__playground-run_3", "__playground-cancel_3",
	} {
		assert.Contains(t, html, `id="`+id+`"`)
	}
}

func TestHighlightUnknownLanguage(t *testing.T) {
	html := New().Highlight("a < b", "no-such-language")
	assert.Contains(t, html, "&lt;")
}

func TestCSS(t *testing.T) {
	css, err := New(WithStyle("monokai")).CSS()
	require.NoError(t, err)
	assert.Contains(t, css, ".chroma")
}

func TestInlineColorString(t *testing.T) {
	page, err := colorplay.Parse("p", []byte("Use `#!color red` and `plain`.\n"))
	require.NoError(t, err)

	exec := &fakeExecutor{fn: func(req runtime.Request) (*runtime.Result, error) {
		return &runtime.Result{Colors: []runtime.ColorGroup{{
			Kind:   runtime.GroupColors,
			Colors: []runtime.Color{{String: "red", CSS: "rgb(255 0 0 / 0.5)", CSSOpaque: "rgb(255 0 0)", InGamut: false}},
		}}}, nil
	}}
	out, err := New().Page(context.Background(), page, exec, "display-p3")
	require.NoError(t, err)

	require.Len(t, exec.reqs, 1)
	assert.Equal(t, `"red"`, exec.reqs[0].Code)
	assert.Equal(t, runtime.ActionRender, exec.reqs[0].Action)
	assert.Equal(t, "display-p3", exec.reqs[0].Gamut)

	assert.Contains(t, out.HTML, `class="swatch out-of-gamut"`)
	assert.Contains(t, out.HTML, "--swatch-stops: rgb(255 0 0) 50%, rgb(255 0 0 / 0.5) 50%")
	assert.Contains(t, out.HTML, `<code class="color">red</code>`)
	assert.Contains(t, out.HTML, "<code>plain</code>")
	assert.NotContains(t, out.HTML, "colorplay-fence-")
	assert.Empty(t, out.Widgets)
}

func TestInlineColorExpression(t *testing.T) {
	exec := &fakeExecutor{fn: func(req runtime.Request) (*runtime.Result, error) {
		if req.Code != "Color('blue')" {
			return &runtime.Result{Console: ">>> " + req.Code + "\n"}, nil
		}
		return &runtime.Result{Colors: []runtime.ColorGroup{{
			Kind:   runtime.GroupColors,
			Colors: []runtime.Color{{String: "color(srgb 0 0 1)", CSS: "rgb(0 0 255)", CSSOpaque: "rgb(0 0 255)", InGamut: true}},
		}}}, nil
	}}

	html, err := New().InlineColor(context.Background(), exec, " Color('blue') ", "")
	require.NoError(t, err)
	require.Len(t, exec.reqs, 2)
	assert.Equal(t, `"Color('blue')"`, exec.reqs[0].Code)
	assert.Equal(t, runtime.DefaultGamut, exec.reqs[1].Gamut)
	assert.Contains(t, html, `class="swatch"`)
	assert.Contains(t, html, `<code class="color">color(srgb 0 0 1)</code>`)
}

func TestInlineColorNeedsExactlyOneColor(t *testing.T) {
	two := []runtime.ColorGroup{{Kind: runtime.GroupColors, Colors: []runtime.Color{color("red"), color("blue")}}}
	tests := []struct {
		name string
		res  *runtime.Result
	}{
		{"no colors", &runtime.Result{Console: ">>> 1 + 1\n2\n"}},
		{"two colors", &runtime.Result{Colors: two}},
		{"interpreter error", &runtime.Result{Error: "NameError: name 'x' is not defined"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{fn: func(runtime.Request) (*runtime.Result, error) { return tt.res, nil }}
			html, err := New().InlineColor(context.Background(), exec, "1 + 1", "srgb")
			require.NoError(t, err)
			assert.Equal(t, "<code>1 + 1</code>", html)
			assert.Len(t, exec.reqs, 2)
		})
	}
}

func TestInlineColorExecutorFailureAborts(t *testing.T) {
	page, err := colorplay.Parse("p", []byte("A `#!color red` swatch.\n"))
	require.NoError(t, err)

	boom := errors.New("boom")
	exec := &fakeExecutor{fn: func(runtime.Request) (*runtime.Result, error) { return nil, boom }}
	_, err = New().Page(context.Background(), page, exec, "srgb")
	assert.ErrorIs(t, err, boom)
}

func TestColorExpr(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"#!color red", "red", true},
		{"#!color  Color('red')  ", "Color('red')", true},
		{"#!color", "", false},
		{"#!color   ", "", false},
		{"#!colorful red", "", false},
		{"red", "", false},
	}
	for _, tt := range tests {
		got, ok := colorExpr(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}
