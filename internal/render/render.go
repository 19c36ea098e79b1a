// Package render turns pages into HTML: prose through goldmark, playground
// fences into widgets whose results were computed by the interpreter.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"github.com/livetemplate/colorplay"
	"github.com/livetemplate/colorplay/internal/runtime"
)

// DefaultStyle is the chroma style used for code and console output.
const DefaultStyle = "github"

// Executor runs interpreter requests. *runtime.Bridge implements it.
type Executor interface {
	Execute(ctx context.Context, req runtime.Request) (*runtime.Result, error)
}

// Widget is one playground fence after rendering.
type Widget struct {
	Index      int
	Code       string
	Session    string
	Exceptions bool
	Gamut      string
	// HTML is the complete widget markup, ResultHTML only its results pane.
	HTML       string
	ResultHTML string
}

// Output is a rendered page.
type Output struct {
	HTML    string
	Widgets []Widget
	Live    bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStyle selects the chroma style by name.
func WithStyle(name string) Option {
	return func(r *Renderer) { r.style = styles.Get(name) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// Renderer renders pages, results and widgets. It is safe for concurrent use.
type Renderer struct {
	policy    *bluemonday.Policy
	formatter *chromahtml.Formatter
	style     *chroma.Style
	logger    *slog.Logger
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("div", "span")
	policy.AllowAttrs("class").OnElements("div", "span", "p", "code", "pre", "table", "th", "td")

	r := &Renderer{
		policy:    policy,
		formatter: chromahtml.New(chromahtml.WithClasses(true), chromahtml.TabWidth(4)),
		style:     styles.Get(DefaultStyle),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "render")
	return r
}

// CSS returns the stylesheet for highlighted code.
func (r *Renderer) CSS() (string, error) {
	var b strings.Builder
	if err := r.formatter.WriteCSS(&b, r.style); err != nil {
		return "", fmt.Errorf("write highlight css: %w", err)
	}
	return b.String(), nil
}

// Page renders page. Every playground fence is executed with the render
// action, in document order, and becomes a widget numbered from 0. Inline
// `#!color` spans become swatches.
// An interpreter that reports an error still produces a widget; a failing
// Executor aborts the render.
func (r *Renderer) Page(ctx context.Context, page *colorplay.Page, exec Executor, gamut string) (*Output, error) {
	if gamut == "" {
		gamut = runtime.DefaultGamut
	}

	nonce, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
	if err != nil {
		return nil, fmt.Errorf("generate fence token: %w", err)
	}
	fr := &fenceRenderer{token: "colorplay-fence-" + nonce}
	md := colorplay.NewMarkdown(
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(fr, 100)),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert(page.Body, &buf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	if fr.count != len(page.Fences) {
		return nil, fmt.Errorf("page %s: found %d fences, expected %d", page.ID, fr.count, len(page.Fences))
	}

	prose := string(r.policy.SanitizeBytes(buf.Bytes()))

	out := &Output{Live: page.Live}
	for i, f := range page.Fences {
		var frag string
		if f.Play {
			w, err := r.playFence(ctx, exec, f, len(out.Widgets), gamut)
			if err != nil {
				return nil, err
			}
			out.Widgets = append(out.Widgets, w)
			frag = w.HTML
		} else {
			frag = r.Highlight(f.Code, f.Language)
		}
		prose = strings.Replace(prose, fr.placeholder(i), frag, 1)
	}
	for i, expr := range fr.colors {
		frag, err := r.InlineColor(ctx, exec, expr, gamut)
		if err != nil {
			return nil, err
		}
		prose = strings.Replace(prose, fr.colorPlaceholder(i), frag, 1)
	}
	out.HTML = prose

	r.logger.Debug("rendered page", "page", page.ID, "widgets", len(out.Widgets), "live", page.Live)
	return out, nil
}

func (r *Renderer) playFence(ctx context.Context, exec Executor, f *colorplay.Fence, index int, gamut string) (Widget, error) {
	code := strings.TrimSpace(f.Code)
	res, err := exec.Execute(ctx, runtime.Request{
		Action:     runtime.ActionRender,
		ID:         strconv.Itoa(index),
		Session:    f.Session,
		Code:       code,
		Gamut:      gamut,
		Exceptions: f.Exceptions,
	})
	if err != nil {
		return Widget{}, fmt.Errorf("execute fence at line %d: %w", f.Line, err)
	}

	w := Widget{
		Index:      index,
		Code:       code,
		Session:    f.Session,
		Exceptions: f.Exceptions,
		Gamut:      gamut,
		ResultHTML: r.Result(res),
	}
	w.HTML = r.Widget(w)
	return w, nil
}

// fenceRenderer writes a placeholder for every fenced code block and inline
// color so their output is inserted after the prose was sanitized.
type fenceRenderer struct {
	token  string
	count  int
	colors []string
}

func (fr *fenceRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, fr.render)
	reg.Register(ast.KindCodeSpan, fr.renderCodeSpan)
}

func (fr *fenceRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(fr.placeholder(fr.count) + "\n")
	fr.count++
	return ast.WalkSkipChildren, nil
}

func (fr *fenceRenderer) placeholder(i int) string {
	return "<div>" + fr.token + "-" + strconv.Itoa(i) + "</div>"
}
