// Package pkgcache keeps downloaded runtime artifacts (the interpreter wasm
// and package wheels) on disk, indexed in SQLite, so restarts do not refetch them.
package pkgcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DefaultMaxSize bounds a single artifact download.
const DefaultMaxSize = 256 << 20

// Artifact is one cached download.
type Artifact struct {
	URL       string
	File      string
	SHA256    string
	Size      int64
	FetchedAt time.Time
}

// FetchError reports a download that did not produce an artifact.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(pc *Cache) { pc.client = c }
}

// WithMaxSize bounds artifact size in bytes.
func WithMaxSize(n int64) Option {
	return func(pc *Cache) { pc.maxSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pc *Cache) { pc.logger = l }
}

// Cache is an on-disk artifact cache.
type Cache struct {
	dir     string
	db      *sql.DB
	client  *http.Client
	maxSize int64
	logger  *slog.Logger

	// fetchMu serializes downloads; artifacts are few and large.
	fetchMu sync.Mutex
}

// Open creates (or reopens) a cache rooted at dir.
func Open(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	c := &Cache{
		dir:     dir,
		db:      db,
		client:  &http.Client{Timeout: 5 * time.Minute},
		maxSize: DefaultMaxSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir is the directory holding cached files.
func (c *Cache) Dir() string {
	return filepath.Join(c.dir, "files")
}

// Close closes the index.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fetch returns the path under Dir of rawURL's content, downloading it on
// first use. file:// URLs and plain paths are copied into Dir without
// touching the index, so a local edit is picked up on the next Fetch.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	switch u.Scheme {
	case "", "file":
		p := u.Path
		if u.Scheme == "" {
			p = rawURL
		}
		return c.importLocal(rawURL, p)
	case "http", "https":
	default:
		return "", &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if a, ok, err := c.Lookup(ctx, rawURL); err != nil {
		return "", err
	} else if ok {
		p := filepath.Join(c.Dir(), a.File)
		if st, err := os.Stat(p); err == nil && st.Size() == a.Size {
			return p, nil
		}
		c.logger.Warn("cached artifact missing, refetching", "url", rawURL)
	}

	a, err := c.download(ctx, u)
	if err != nil {
		return "", err
	}
	if err := c.store(ctx, a); err != nil {
		return "", err
	}
	c.logger.Info("artifact cached", "url", rawURL, "file", a.File, "size", a.Size)
	return filepath.Join(c.Dir(), a.File), nil
}

func (c *Cache) download(ctx context.Context, u *url.URL) (*Artifact, error) {
	rawURL := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(c.Dir(), ".download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(resp.Body, c.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if n > c.maxSize {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("artifact exceeds %d bytes", c.maxSize)}
	}

	sum := hex.EncodeToString(h.Sum(nil))
	file := artifactName(sum, path.Base(u.Path))
	if err := os.Rename(tmp.Name(), filepath.Join(c.Dir(), file)); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	return &Artifact{
		URL:       rawURL,
		File:      file,
		SHA256:    sum,
		Size:      n,
		FetchedAt: time.Now(),
	}, nil
}

// importLocal copies the file at p into Dir under its content-addressed name.
func (c *Cache) importLocal(rawURL, p string) (string, error) {
	src, err := os.Open(p)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer src.Close()

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	tmp, err := os.CreateTemp(c.Dir(), ".import-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}

	dst := filepath.Join(c.Dir(), artifactName(hex.EncodeToString(h.Sum(nil)), filepath.Base(p)))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return dst, nil
}

func artifactName(sum, base string) string {
	if base == "." || base == "/" || base == "" {
		base = "artifact"
	}
	return sum[:16] + "-" + base
}

func (c *Cache) store(ctx context.Context, a *Artifact) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO artifacts (url, file, sha256, size, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			file = excluded.file,
			sha256 = excluded.sha256,
			size = excluded.size,
			fetched_at = excluded.fetched_at`,
		a.URL, a.File, a.SHA256, a.Size, a.FetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("index artifact: %w", err)
	}
	return nil
}

// Lookup returns the index row for rawURL.
func (c *Cache) Lookup(ctx context.Context, rawURL string) (*Artifact, bool, error) {
	var a Artifact
	var fetched int64
	err := c.db.QueryRowContext(ctx,
		`SELECT url, file, sha256, size, fetched_at FROM artifacts WHERE url = ?`, rawURL).
		Scan(&a.URL, &a.File, &a.SHA256, &a.Size, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup artifact: %w", err)
	}
	a.FetchedAt = time.UnixMilli(fetched)
	return &a, true, nil
}

// List returns every indexed artifact, newest first.
func (c *Cache) List(ctx context.Context) ([]Artifact, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT url, file, sha256, size, fetched_at FROM artifacts ORDER BY fetched_at DESC, url`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		var fetched int64
		if err := rows.Scan(&a.URL, &a.File, &a.SHA256, &a.Size, &fetched); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.FetchedAt = time.UnixMilli(fetched)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Remove drops rawURL from the index and deletes its file.
func (c *Cache) Remove(ctx context.Context, rawURL string) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	a, ok, err := c.Lookup(ctx, rawURL)
	if err != nil || !ok {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE url = ?`, rawURL); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if err := os.Remove(filepath.Join(c.Dir(), a.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact file: %w", err)
	}
	return nil
}
