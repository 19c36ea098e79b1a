package site

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/livetemplate/colorplay"
	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/uricodec"
)

// PageNode represents a page in the site structure
type PageNode struct {
	Title    string          // Page title from frontmatter, config or file name
	Path     string          // URL path (e.g., "/gradients/interpolation/")
	FilePath string          // Relative file path (e.g., "gradients/interpolation.md")
	Page     *colorplay.Page // Parsed page content, nil for sections
	IsHome   bool            // Whether this is the home page
	Children []*PageNode     // Child pages (for sections)
}

// Manager handles multi-page site discovery and navigation
type Manager struct {
	rootDir string
	config  *config.Config

	mu    sync.RWMutex
	pages map[string]*PageNode // Maps URL path to PageNode
	nav   []*PageNode          // Navigation tree (top-level nodes)
	home  *PageNode
}

// New creates a new site manager
func New(rootDir string, cfg *config.Config) *Manager {
	return &Manager{
		rootDir: rootDir,
		config:  cfg,
		pages:   make(map[string]*PageNode),
	}
}

// RootDir is the docs directory.
func (m *Manager) RootDir() string { return m.rootDir }

// Discover scans the directory and builds the site structure
func (m *Manager) Discover() error {
	d := &discovery{m: m, pages: make(map[string]*PageNode)}

	var err error
	if len(m.config.Navigation) > 0 {
		err = d.fromConfig()
	} else {
		err = d.fromFiles()
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pages, m.nav, m.home = d.pages, d.nav, d.home
	m.mu.Unlock()
	return nil
}

// URLPath converts a markdown file path to its URL under the docs base.
//   - "index.md" → "/"
//   - "gradients/interpolation.md" → "/gradients/interpolation/"
//   - "gradients/index.md" → "/gradients/"
func (m *Manager) URLPath(relPath string) string {
	p := strings.TrimSuffix(filepath.ToSlash(relPath), ".md")
	if p == "index" {
		p = ""
	}
	p = strings.TrimSuffix(p, "/index")
	return uricodec.JoinPath(m.config.Docs.Base, p)
}

// PlaygroundPath is the URL of the playground route.
func (m *Manager) PlaygroundPath() string {
	return uricodec.JoinPath(m.config.Docs.Base, m.config.Playground.Route)
}

// Ignored reports whether relPath matches one of the configured ignore patterns.
// A pattern ending in "/**" matches everything below that directory.
func (m *Manager) Ignored(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range m.config.Ignore {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, relPath); ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, _ := path.Match(pattern, path.Base(relPath)); ok {
				return true
			}
		}
	}
	return false
}

type discovery struct {
	m     *Manager
	pages map[string]*PageNode
	nav   []*PageNode
	home  *PageNode
}

func (d *discovery) parse(relPath string) (*PageNode, error) {
	parsed, err := colorplay.ParseFile(filepath.Join(d.m.rootDir, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relPath, err)
	}
	node := &PageNode{
		Title:    parsed.Title,
		Path:     d.m.URLPath(relPath),
		FilePath: filepath.ToSlash(relPath),
		Page:     parsed,
	}
	if node.Title == "" {
		node.Title = titleFromName(strings.TrimSuffix(filepath.Base(relPath), ".md"))
	}
	if node.FilePath == d.m.config.Docs.Home {
		node.IsHome = true
		d.home = node
	}
	return node, nil
}

// fromConfig builds the site structure from the config navigation
func (d *discovery) fromConfig() error {
	for _, section := range d.m.config.Navigation {
		sectionNode := &PageNode{
			Title: section.Title,
			Path:  uricodec.JoinPath(d.m.config.Docs.Base, section.Path),
		}

		for _, page := range section.Pages {
			filePath := page.Path
			if !strings.HasSuffix(filePath, ".md") {
				filePath += ".md"
			}
			node, err := d.parse(filePath)
			if err != nil {
				return err
			}
			if page.Title != "" {
				node.Title = page.Title
			}
			sectionNode.Children = append(sectionNode.Children, node)
			d.pages[node.Path] = node
		}

		d.nav = append(d.nav, sectionNode)
	}

	// The home page may live outside the configured sections.
	if d.home == nil && d.m.config.Docs.Home != "" {
		node, err := d.parse(d.m.config.Docs.Home)
		if err != nil {
			return fmt.Errorf("home page: %w", err)
		}
		node.Title = d.m.config.Title
		d.pages[node.Path] = node
	}
	return nil
}

// fromFiles auto-discovers pages from directory structure
func (d *discovery) fromFiles() error {
	playground := d.m.PlaygroundPath()
	err := filepath.WalkDir(d.m.rootDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			name := entry.Name()
			if p != d.m.rootDir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			if slices.Contains([]string{"node_modules", "vendor", "dist", "build", "site"}, name) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ".md" {
			return nil
		}

		relPath, err := filepath.Rel(d.m.rootDir, p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(filepath.Base(relPath), "_") || d.m.Ignored(relPath) {
			return nil
		}

		node, err := d.parse(relPath)
		if err != nil {
			return err
		}
		if node.Path == playground {
			// The playground route is served by the notebook shell.
			return nil
		}
		d.pages[node.Path] = node
		return nil
	})
	if err != nil {
		return err
	}

	d.buildNavigationTree()
	return nil
}

// buildNavigationTree organizes flat pages into sections by directory.
// Sections come first, then top-level pages, each sorted by path.
func (d *discovery) buildNavigationTree() {
	sections := make(map[string]*PageNode)
	var topLevel []*PageNode

	for _, page := range d.pages {
		if page.IsHome {
			continue
		}
		dir := path.Dir(page.FilePath)
		if dir == "." {
			topLevel = append(topLevel, page)
			continue
		}
		section, ok := sections[dir]
		if !ok {
			section = &PageNode{
				Title: titleFromName(path.Base(dir)),
				Path:  uricodec.JoinPath(d.m.config.Docs.Base, dir),
			}
			sections[dir] = section
		}
		section.Children = append(section.Children, page)
	}

	byPath := func(a, b *PageNode) int { return strings.Compare(a.Path, b.Path) }
	for _, s := range sections {
		slices.SortFunc(s.Children, byPath)
		d.nav = append(d.nav, s)
	}
	slices.SortFunc(d.nav, byPath)
	slices.SortFunc(topLevel, byPath)
	d.nav = append(d.nav, topLevel...)
}

func titleFromName(name string) string {
	title := strings.ReplaceAll(name, "-", " ")
	title = strings.ReplaceAll(title, "_", " ")
	if len(title) > 0 {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	return title
}

// GetPage returns a page by its URL path. A missing trailing slash is tolerated.
func (m *Manager) GetPage(urlPath string) (*PageNode, bool) {
	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	page, ok := m.pages[urlPath]
	return page, ok
}

// Home returns the home page
func (m *Manager) Home() *PageNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.home
}

// Navigation returns the navigation tree
func (m *Manager) Navigation() []*PageNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nav
}

// AllPages returns all pages sorted by URL path.
func (m *Manager) AllPages() []*PageNode {
	m.mu.RLock()
	pages := make([]*PageNode, 0, len(m.pages))
	for _, page := range m.pages {
		pages = append(pages, page)
	}
	m.mu.RUnlock()
	slices.SortFunc(pages, func(a, b *PageNode) int { return strings.Compare(a.Path, b.Path) })
	return pages
}

// PrevNext returns the previous and next pages in navigation order.
func (m *Manager) PrevNext(currentPath string) (prev, next *PageNode) {
	m.mu.RLock()
	ordered := flattenNav(m.nav)
	m.mu.RUnlock()

	idx := slices.IndexFunc(ordered, func(p *PageNode) bool { return p.Path == currentPath })
	if idx == -1 {
		return nil, nil
	}
	if idx > 0 {
		prev = ordered[idx-1]
	}
	if idx < len(ordered)-1 {
		next = ordered[idx+1]
	}
	return prev, next
}

func flattenNav(nodes []*PageNode) []*PageNode {
	var result []*PageNode
	for _, node := range nodes {
		if node.Page != nil {
			result = append(result, node)
		}
		result = append(result, flattenNav(node.Children)...)
	}
	return result
}

// Breadcrumbs returns the trail from the home page to urlPath.
func (m *Manager) Breadcrumbs(urlPath string) []*PageNode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var crumbs []*PageNode
	if m.home != nil {
		crumbs = append(crumbs, m.home)
		if urlPath == m.home.Path {
			return crumbs
		}
	}

	for _, section := range m.nav {
		if section.Page == nil && slices.ContainsFunc(section.Children, func(p *PageNode) bool { return p.Path == urlPath }) {
			crumbs = append(crumbs, section)
			break
		}
	}
	if page, ok := m.pages[urlPath]; ok {
		crumbs = append(crumbs, page)
	}
	return crumbs
}

// Reload re-parses one changed file. Unknown files trigger a full discovery.
func (m *Manager) Reload(relPath string) error {
	urlPath := m.URLPath(relPath)

	m.mu.RLock()
	node, ok := m.pages[urlPath]
	m.mu.RUnlock()
	if !ok {
		return m.Discover()
	}

	parsed, err := colorplay.ParseFile(filepath.Join(m.rootDir, relPath))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", relPath, err)
	}

	m.mu.Lock()
	node.Page = parsed
	if parsed.Title != "" {
		node.Title = parsed.Title
	}
	m.mu.Unlock()
	return nil
}
