package colorplay

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Frontmatter represents the YAML frontmatter at the top of a markdown file.
type Frontmatter struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Live        bool   `yaml:"live"`
	// Nav orders pages in the site navigation; lower comes first.
	Nav int `yaml:"nav"`
}

// Fence is a fenced code block. Play fences become widgets.
type Fence struct {
	Language   string
	Play       bool
	Exceptions bool
	Session    string
	Attrs      map[string]string
	Code       string
	Line       int // Line number of the opening fence in the page
}

// NewMarkdown returns the goldmark instance every page is parsed with.
func NewMarkdown(opts ...goldmark.Option) goldmark.Markdown {
	base := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.DefinitionList),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	}
	return goldmark.New(append(base, opts...)...)
}

// extractFrontmatter extracts YAML frontmatter from the beginning of content.
// It returns the remaining content and the line the remaining content starts on.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, int, error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, 1, nil
	}

	// Find the closing ---
	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		if bytes.HasSuffix(content, []byte("\n---")) {
			endIdx = len(content) - 4 - 4
		} else {
			return nil, nil, 0, NewParseError("", 1, "unclosed frontmatter").
				WithHint("close the frontmatter block with a line containing only ---")
		}
	}

	yamlContent := content[4 : 4+endIdx]
	rest := 4 + endIdx + 5
	if rest > len(content) {
		rest = len(content)
	}
	remaining := content[rest:]

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return nil, nil, 0, NewParseError("", 2, fmt.Sprintf("failed to parse YAML: %v", err))
	}

	line := bytes.Count(content[:rest], []byte("\n")) + 1
	return &fm, remaining, line, nil
}

// ExtractFences walks the markdown and returns every fenced code block.
// firstLine is the page line body starts on.
func ExtractFences(body []byte, firstLine int) ([]*Fence, error) {
	doc := NewMarkdown().Parser().Parse(text.NewReader(body))

	var fences []*Fence
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		line := firstLine
		if fenced.Lines().Len() > 0 {
			// The opening fence sits one line above the first content line.
			line += bytes.Count(body[:fenced.Lines().At(0).Start], []byte("\n")) - 1
		}

		var info string
		if fenced.Info != nil {
			info = string(fenced.Info.Text(body))
		}
		f, err := ParseFenceInfo(info)
		if err != nil {
			return ast.WalkStop, NewParseError("", line, err.Error()).
				WithHint("playground fences take the flags play and exceptions, and session=<name>")
		}
		f.Line = line
		f.Code = FenceCode(fenced, body)
		fences = append(fences, f)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	return fences, nil
}

// FenceCode returns the raw content of a fenced block.
func FenceCode(fenced *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := fenced.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// ParseFenceInfo parses a fence info string.
// Format: "playground", or "py play exceptions session=demo".
func ParseFenceInfo(info string) (*Fence, error) {
	info = strings.TrimSpace(info)
	if strings.HasPrefix(info, "{") && strings.HasSuffix(info, "}") {
		info = strings.TrimPrefix(strings.TrimSpace(info[1:len(info)-1]), ".")
	}
	parts := strings.Fields(info)
	f := &Fence{Attrs: map[string]string{}}
	if len(parts) == 0 {
		return f, nil
	}

	f.Language = strings.ToLower(parts[0])
	for _, part := range parts[1:] {
		if k, v, ok := strings.Cut(part, "="); ok {
			v = strings.Trim(v, `"'`)
			if k == "session" {
				if v == "" {
					return nil, fmt.Errorf("empty session name")
				}
				f.Session = v
				continue
			}
			f.Attrs[k] = v
			continue
		}
		switch part {
		case "play":
			f.Play = true
		case "exceptions":
			f.Exceptions = true
		default:
			// Unknown flag, ignore
		}
	}

	switch f.Language {
	case "playground":
		f.Play = true
	case "py", "python", "python3":
	default:
		// only python fences run
		f.Play = false
	}
	return f, nil
}
