package navigation

import (
	"strings"

	"github.com/livetemplate/colorplay/internal/uricodec"
)

// DefaultSnippet is shown when the playground is opened without parameters.
const DefaultSnippet = "import coloraide\ncoloraide.__version__\nColor('red')"

// WrapSnippet builds a one-widget notebook page around code. introURL, when
// set, is linked from the banner as a notebook to load.
func WrapSnippet(code, base, route, introURL string) string {
	var b strings.Builder
	b.WriteString("\n<div class=\"admonition new\">\n\n")
	b.WriteString("This notebook runs snippets against the color library. ")
	if introURL != "" {
		b.WriteString("Learn more [here](" + uricodec.QueryLink(base, route, ParamNotebook, introURL) + "). ")
	}
	b.WriteString("Preview, convert, interpolate, and explore!\n\n</div>\n\n")

	fence := strings.Repeat("`", max(8, longestBacktickRun(code)+1))
	b.WriteString(fence + "playground\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n")
	return b.String()
}

func longestBacktickRun(s string) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}
