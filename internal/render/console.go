package render

import (
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/livetemplate/colorplay/internal/runtime"
)

// Highlight renders code as a highlighted block. Unknown languages are
// rendered as plain text.
func (r *Renderer) Highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return r.highlight(code, lexer)
}

// Console renders an interpreter transcript.
func (r *Renderer) Console(transcript string) string {
	lexer := lexers.Get("pycon")
	if lexer == nil {
		lexer = lexers.Get("python")
	}
	return r.highlight(transcript, lexer)
}

func (r *Renderer) highlight(code string, lexer chroma.Lexer) string {
	var b strings.Builder
	b.WriteString(`<div class="highlight">`)

	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err == nil {
		err = r.formatter.Format(&b, r.style, it)
	}
	if err != nil {
		r.logger.Warn("highlight failed", "lexer", lexer.Config().Name, "error", err)
		b.Reset()
		b.WriteString(`<div class="highlight"><pre><code>`)
		b.WriteString(html.EscapeString(code))
		b.WriteString(`</code></pre>`)
	}

	b.WriteString(`</div>`)
	return b.String()
}

// Result renders one execution: swatches followed by the console transcript.
// A failed execution shows its error after whatever was printed before it.
func (r *Renderer) Result(res *runtime.Result) string {
	if res.Failed() {
		transcript := res.Console
		if transcript != "" && !strings.HasSuffix(transcript, "\n") {
			transcript += "\n"
		}
		return r.errorCommand(transcript + res.Error)
	}

	var b strings.Builder
	b.WriteString(`<div class="color-command">`)
	if swatches := Swatches(res.Colors); swatches != "" {
		b.WriteString(swatches)
	} else {
		b.WriteString(`<div class="swatch-bar"></div>`)
	}
	b.WriteString(r.Console(res.Console))
	b.WriteString(`</div>`)
	return b.String()
}

// Error renders a failure that happened outside the interpreter, such as a
// runtime that could not be booted.
func (r *Renderer) Error(err error) string {
	return r.errorCommand(err.Error())
}

func (r *Renderer) errorCommand(text string) string {
	return `<div class="color-command"><div class="swatch-bar"></div>` + r.Console(text) + `</div>`
}
