// Package assets embeds the browser client and turns it into revisioned,
// minified files served under /assets/.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

//go:embed client/*
var clientFS embed.FS

// Logical asset names.
const (
	ScriptName     = "playground.js"
	StylesheetName = "playground.css"
	ManifestName   = "manifest.json"
)

const hashLen = 10

var mediaTypes = map[string]string{
	".js":  "application/javascript",
	".css": "text/css",
}

// Asset is one built file.
type Asset struct {
	Name        string // logical name, e.g. playground.js
	Revisioned  string // name carrying the content hash
	ContentType string
	Hash        string
	Body        []byte
}

// ETag is the strong validator for the asset.
func (a *Asset) ETag() string { return `"` + a.Hash + `"` }

// Options control Build.
type Options struct {
	// Minify runs the css and js minifiers.
	Minify bool
	// ExtraCSS is appended to the stylesheet (the code highlighting theme).
	ExtraCSS string
}

// Bundle is the set of built assets with its manifest.
type Bundle struct {
	byName       map[string]*Asset
	byRevisioned map[string]*Asset
}

// Source returns an embedded client file as written.
func Source(name string) ([]byte, error) {
	return clientFS.ReadFile("client/" + name)
}

// Build reads the embedded client, appends ExtraCSS to the stylesheet,
// minifies when asked and revisions every file by content hash.
func Build(opts Options) (*Bundle, error) {
	var m *minify.M
	if opts.Minify {
		m = minify.New()
		m.AddFunc("text/css", css.Minify)
		m.AddFunc("application/javascript", js.Minify)
	}

	b := &Bundle{
		byName:       make(map[string]*Asset),
		byRevisioned: make(map[string]*Asset),
	}
	for _, name := range []string{ScriptName, StylesheetName} {
		body, err := Source(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if name == StylesheetName && opts.ExtraCSS != "" {
			body = append(append(body, '\n'), opts.ExtraCSS...)
		}

		mediaType := mediaTypes[path.Ext(name)]
		if m != nil {
			body, err = m.Bytes(mediaType, body)
			if err != nil {
				return nil, fmt.Errorf("minify %s: %w", name, err)
			}
		}
		b.add(name, mediaType, body)
	}
	return b, nil
}

func (b *Bundle) add(name, mediaType string, body []byte) {
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])[:hashLen]
	ext := path.Ext(name)
	a := &Asset{
		Name:        name,
		Revisioned:  strings.TrimSuffix(name, ext) + "." + hash + ext,
		ContentType: mediaType + "; charset=utf-8",
		Hash:        hash,
		Body:        body,
	}
	b.byName[name] = a
	b.byRevisioned[a.Revisioned] = a
}

// Lookup finds an asset by its revisioned name.
func (b *Bundle) Lookup(revisioned string) (*Asset, bool) {
	a, ok := b.byRevisioned[revisioned]
	return a, ok
}

// Path is the URL path of the logical asset name under prefix.
func (b *Bundle) Path(prefix, name string) string {
	a, ok := b.byName[name]
	if !ok {
		return ""
	}
	return strings.TrimRight(prefix, "/") + "/assets/" + a.Revisioned
}

// Manifest maps logical names to revisioned names.
func (b *Bundle) Manifest() map[string]string {
	out := make(map[string]string, len(b.byName))
	for name, a := range b.byName {
		out[name] = a.Revisioned
	}
	return out
}

// ManifestJSON is Manifest encoded with sorted keys.
func (b *Bundle) ManifestJSON() ([]byte, error) {
	return json.MarshalIndent(b.Manifest(), "", "  ")
}

// WriteDir writes every asset to dir/assets and the manifest to dir.
func (b *Bundle) WriteDir(dir string) error {
	assetDir := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", assetDir, err)
	}

	names := make([]string, 0, len(b.byRevisioned))
	for n := range b.byRevisioned {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(assetDir, n), b.byRevisioned[n].Body, 0644); err != nil {
			return fmt.Errorf("write %s: %w", n, err)
		}
	}

	manifest, err := b.ManifestJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), manifest, 0644)
}
