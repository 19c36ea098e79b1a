// Package colorplay provides the page model for interactive color documentation:
// markdown pages whose playground fences become runnable widgets.
package colorplay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Page is a parsed documentation or notebook page.
type Page struct {
	ID         string
	Title      string
	SourceFile string // Absolute path to source .md file (for error messages), empty for notebooks
	// Live pages share interpreter state between widgets through named sessions.
	Live bool
	// Body is the markdown without frontmatter.
	Body   []byte
	Fences []*Fence
}

// PlaygroundFences returns the fences that become widgets.
func (p *Page) PlaygroundFences() []*Fence {
	var out []*Fence
	for _, f := range p.Fences {
		if f.Play {
			out = append(out, f)
		}
	}
	return out
}

// ParseFile parses a markdown file into a Page.
func ParseFile(path string) (*Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Get absolute path for better error messages
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	page, err := Parse(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), content)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.File = absPath
			return nil, pe
		}
		return nil, NewParseError(absPath, 1, fmt.Sprintf("Failed to parse markdown: %v", err))
	}
	page.SourceFile = absPath
	return page, nil
}

// Parse parses in-memory markdown (a submitted notebook, a fetched document).
func Parse(id string, content []byte) (*Page, error) {
	fm, body, line, err := extractFrontmatter(content)
	if err != nil {
		return nil, withSource(err, content)
	}

	fences, err := ExtractFences(body, line)
	if err != nil {
		return nil, withSource(err, content)
	}

	title := fm.Title
	if title == "" {
		title = firstHeading(body)
	}
	return &Page{
		ID:     id,
		Title:  title,
		Live:   fm.Live,
		Body:   body,
		Fences: fences,
	}, nil
}

func withSource(err error, content []byte) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.WithSource(content)
	}
	return err
}

func firstHeading(body []byte) string {
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
