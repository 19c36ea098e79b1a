package render

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/util"

	"github.com/livetemplate/colorplay/internal/runtime"
)

// colorPrefix marks an inline code span as a color: `#!color red`.
const colorPrefix = "#!color"

// InlineColor renders a swatch followed by the color as code. expr is either
// a color string the color library parses or an expression that evaluates to
// exactly one color. Anything else falls back to plain inline code.
func (r *Renderer) InlineColor(ctx context.Context, exec Executor, expr, gamut string) (string, error) {
	expr = strings.TrimSpace(expr)
	if gamut == "" {
		gamut = runtime.DefaultGamut
	}

	// A quoted string goes through the driver's color string parser.
	for _, code := range []string{strconv.Quote(expr), expr} {
		res, err := exec.Execute(ctx, runtime.Request{
			Action: runtime.ActionRender,
			ID:     "inline-color",
			Code:   code,
			Gamut:  gamut,
		})
		if err != nil {
			return "", fmt.Errorf("execute inline color %q: %w", expr, err)
		}
		if c, ok := singleColor(res); ok {
			return `<span class="inline-color">` + swatch(c) +
				`<code class="color">` + html.EscapeString(c.String) + `</code></span>`, nil
		}
	}

	r.logger.Debug("inline color did not produce one color", "expr", expr)
	return `<code>` + html.EscapeString(expr) + `</code>`, nil
}

func singleColor(res *runtime.Result) (runtime.Color, bool) {
	if res.Failed() || len(res.Colors) != 1 || len(res.Colors[0].Colors) != 1 {
		return runtime.Color{}, false
	}
	return res.Colors[0].Colors[0], true
}

// colorExpr returns the expression of a `#!color ...` span.
func colorExpr(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, colorPrefix)
	if !ok || rest == "" || !unicode.IsSpace(rune(rest[0])) {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func (fr *fenceRenderer) renderCodeSpan(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	var b strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*ast.Text)
		if !ok {
			continue
		}
		value := t.Segment.Value(source)
		if n := len(value); n > 0 && value[n-1] == '\n' {
			b.Write(value[:n-1])
			b.WriteByte(' ')
			continue
		}
		b.Write(value)
	}
	text := b.String()

	if expr, ok := colorExpr(text); ok {
		_, _ = w.WriteString(fr.colorPlaceholder(len(fr.colors)))
		fr.colors = append(fr.colors, expr)
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString("<code>")
	_, _ = w.Write(util.EscapeHTML([]byte(text)))
	_, _ = w.WriteString("</code>")
	return ast.WalkSkipChildren, nil
}

func (fr *fenceRenderer) colorPlaceholder(i int) string {
	return fr.token + "-color-" + strconv.Itoa(i) + "-"
}
