package render

import (
	"fmt"
	"html"
	"strings"
)

// Widget renders the markup of a playground widget. Element ids carry the
// widget index so the client can address the panes and buttons.
func (r *Renderer) Widget(w Widget) string {
	var b strings.Builder
	id := w.Index
	fmt.Fprintf(&b, `<div class="playground" id="__playground_%d" data-widget="%d">`+"\n", id, id)
	fmt.Fprintf(&b, `<div class="playground-results" id="__playground-results_%d">`+"\n", id)
	b.WriteString(w.ResultHTML)
	b.WriteString("\n</div>\n")
	fmt.Fprintf(&b, `<div class="playground-code hidden" id="__playground-code_%d" data-search-exclude>`+"\n", id)
	b.WriteString(`<form autocomplete="off">` + "\n")
	fmt.Fprintf(&b, `<textarea class="playground-inputs" id="__playground-inputs_%d" spellcheck="false">%s</textarea>`+"\n",
		id, html.EscapeString(w.Code))
	b.WriteString("</form>\n</div>\n")
	b.WriteString(`<div class="playground-footer" data-search-exclude>` + "\n<hr>\n")
	fmt.Fprintf(&b, `<button id="__playground-edit_%d" class="playground-edit" title="Edit the current snippet">Edit</button>`+"\n", id)
	fmt.Fprintf(&b, `<button id="__playground-share_%d" class="playground-share" title="Copy URL to current snippet">Share</button>`+"\n", id)
	fmt.Fprintf(&b, `<button id="__playground-run_%d" class="playground-run hidden" title="Run code (Ctrl + Enter)">Run</button>`+"\n", id)
	fmt.Fprintf(&b, `<button id="__playground-cancel_%d" class="playground-cancel hidden" title="Cancel edit (Escape)">Cancel</button>`+"\n", id)
	fmt.Fprintf(&b, `<span class="gamut">Gamut: %s</span>`+"\n", html.EscapeString(w.Gamut))
	b.WriteString("</div>\n</div>")
	return b.String()
}
