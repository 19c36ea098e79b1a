package site

import (
	"fmt"
	"html"
	"strings"

	"github.com/livetemplate/colorplay/internal/assets"
	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/uricodec"
)

// Layout wraps rendered content into complete HTML documents.
type Layout struct {
	Config  *config.Config
	Manager *Manager
	Assets  *assets.Bundle
	// WSPath is where the client connects, "/ws" when empty.
	WSPath string
	Debug  bool
}

// Page renders a docs page around its content.
func (l *Layout) Page(node *PageNode, content string) string {
	var body strings.Builder
	body.WriteString(l.breadcrumbs(node.Path))
	body.WriteString(`<div class="content-wrapper">`)
	body.WriteString(content)
	body.WriteString(`</div>`)
	body.WriteString(l.prevNext(node.Path))
	return l.document(node.Title, node.Path, body.String())
}

// Playground renders the notebook shell. Its content arrives over the
// WebSocket once the client connects.
func (l *Layout) Playground() string {
	body := `<div id="__notebook-source" class="notebook-source hidden" data-search-exclude>
<div class="notebook-toolbar">
<a href="#" id="__notebook-md-gist" title="Load a notebook from a URL">Load notebook</a>
<a href="#" id="__notebook-py-gist" title="Load a Python script from a URL">Load script</a>
</div>
<form autocomplete="off" onsubmit="return false">
<textarea id="__notebook-input" class="notebook-input" spellcheck="false"></textarea>
</form>
<div class="notebook-toolbar">
<button id="__notebook-submit" class="notebook-submit" title="Render the notebook">Submit</button>
<button id="__notebook-cancel" class="notebook-cancel" title="Discard changes">Cancel</button>
</div>
</div>
<div id="__notebook-render" class="notebook-render"></div>
<div class="notebook-toolbar" data-search-exclude>
<button id="__notebook-edit" class="notebook-edit" title="Edit the whole page">Edit Page</button>
</div>`
	return l.document("Playground", l.Manager.PlaygroundPath(), body)
}

func (l *Layout) document(title, currentPath, body string) string {
	cfg := l.Config
	base := uricodec.JoinPath(cfg.Docs.Base)
	wsPath := l.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}

	pageTitle := cfg.Title
	if title != "" && title != cfg.Title {
		pageTitle = title + " - " + cfg.Title
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="description" content="%s">
<title>%s</title>
<link rel="stylesheet" href="%s">
<style>:root { --cp-primary: %s; --cp-font: %s; }</style>
</head>
<body data-ws="%s" data-playground="%s" data-debug="%t">
<div class="layout">
%s
<article>
%s
</article>
</div>
<script src="%s" defer></script>
</body>
</html>
`,
		html.EscapeString(cfg.Description),
		html.EscapeString(pageTitle),
		l.Assets.Path(base, assets.StylesheetName),
		html.EscapeString(cfg.Styling.PrimaryColor),
		html.EscapeString(cfg.Styling.Font),
		html.EscapeString(wsPath),
		html.EscapeString(l.Manager.PlaygroundPath()),
		l.Debug,
		l.sidebar(currentPath),
		body,
		l.Assets.Path(base, assets.ScriptName),
	)
}

// sidebar renders the navigation tree with the playground as last entry.
func (l *Layout) sidebar(currentPath string) string {
	var b strings.Builder
	b.WriteString(`<nav class="sidebar">`)
	home := uricodec.JoinPath(l.Config.Docs.Base)
	fmt.Fprintf(&b, `<div class="nav-header"><a href="%s">%s</a></div>`, home, html.EscapeString(l.Config.Title))

	b.WriteString(`<ul class="nav-pages">`)
	for _, node := range l.Manager.Navigation() {
		if node.Page != nil {
			b.WriteString(navLink(node, currentPath))
			continue
		}
		fmt.Fprintf(&b, `<li class="nav-section"><span class="nav-section-title">%s</span><ul>`, html.EscapeString(node.Title))
		for _, page := range node.Children {
			b.WriteString(navLink(page, currentPath))
		}
		b.WriteString(`</ul></li>`)
	}
	playground := &PageNode{Title: "Playground", Path: l.Manager.PlaygroundPath()}
	b.WriteString(navLink(playground, currentPath))
	b.WriteString(`</ul></nav>`)
	return b.String()
}

func navLink(node *PageNode, currentPath string) string {
	class := ""
	if node.Path == currentPath {
		class = ` class="active"`
	}
	return fmt.Sprintf(`<li><a href="%s"%s>%s</a></li>`, html.EscapeString(node.Path), class, html.EscapeString(node.Title))
}

func (l *Layout) breadcrumbs(currentPath string) string {
	crumbs := l.Manager.Breadcrumbs(currentPath)
	if len(crumbs) <= 1 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<nav class="breadcrumbs" aria-label="Breadcrumb">`)
	for i, crumb := range crumbs {
		if i > 0 {
			b.WriteString(` › `)
		}
		if i == len(crumbs)-1 || crumb.Page == nil {
			fmt.Fprintf(&b, `<span>%s</span>`, html.EscapeString(crumb.Title))
		} else {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(crumb.Path), html.EscapeString(crumb.Title))
		}
	}
	b.WriteString(`</nav>`)
	return b.String()
}

func (l *Layout) prevNext(currentPath string) string {
	prev, next := l.Manager.PrevNext(currentPath)
	if prev == nil && next == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<nav class="page-nav">`)
	if prev != nil {
		fmt.Fprintf(&b, `<a href="%s" class="page-nav-prev">← %s</a>`, html.EscapeString(prev.Path), html.EscapeString(prev.Title))
	} else {
		b.WriteString(`<span></span>`)
	}
	if next != nil {
		fmt.Fprintf(&b, `<a href="%s" class="page-nav-next">%s →</a>`, html.EscapeString(next.Path), html.EscapeString(next.Title))
	}
	b.WriteString(`</nav>`)
	return b.String()
}
