package pkgcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoPureWheel is returned when a project publishes no py3-none-any wheel,
// which is the only kind the WASI interpreter can import.
var ErrNoPureWheel = errors.New("no pure-Python wheel published")

// projectJSON is the subset of the PyPI JSON API response that is used.
type projectJSON struct {
	URLs []struct {
		Filename    string `json:"filename"`
		URL         string `json:"url"`
		PackageType string `json:"packagetype"`
	} `json:"urls"`
}

// ResolveWheel maps a project spec ("coloraide" or "coloraide==4.0") to the
// URL of its pure-Python wheel using the JSON API at indexURL (for PyPI,
// https://pypi.org/pypi). Resolutions are remembered, so unpinned specs keep
// the version first resolved until the cache is cleared.
func (c *Cache) ResolveWheel(ctx context.Context, indexURL, spec string) (string, error) {
	indexURL = strings.TrimRight(indexURL, "/")
	if u, ok, err := c.lookupWheel(ctx, indexURL, spec); err != nil {
		return "", err
	} else if ok {
		return u, nil
	}

	name, version, _ := strings.Cut(spec, "==")
	name, version = strings.TrimSpace(name), strings.TrimSpace(version)
	if name == "" {
		return "", fmt.Errorf("invalid package spec %q", spec)
	}
	metaURL := indexURL + "/" + name + "/json"
	if version != "" {
		metaURL = indexURL + "/" + name + "/" + version + "/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return "", &FetchError{URL: metaURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: metaURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: metaURL, StatusCode: resp.StatusCode}
	}

	var meta projectJSON
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&meta); err != nil {
		return "", &FetchError{URL: metaURL, Err: fmt.Errorf("decode project metadata: %w", err)}
	}

	var wheel string
	for _, f := range meta.URLs {
		if f.PackageType == "bdist_wheel" && strings.HasSuffix(f.Filename, "-none-any.whl") {
			wheel = f.URL
			break
		}
	}
	if wheel == "" {
		return "", fmt.Errorf("%s: %w", spec, ErrNoPureWheel)
	}

	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO wheels (index_url, spec, url, resolved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(index_url, spec) DO UPDATE SET url = excluded.url, resolved_at = excluded.resolved_at`,
		indexURL, spec, wheel, time.Now().UnixMilli()); err != nil {
		return "", fmt.Errorf("index wheel: %w", err)
	}
	c.logger.Info("wheel resolved", "spec", spec, "url", wheel)
	return wheel, nil
}

func (c *Cache) lookupWheel(ctx context.Context, indexURL, spec string) (string, bool, error) {
	var u string
	err := c.db.QueryRowContext(ctx,
		`SELECT url FROM wheels WHERE index_url = ? AND spec = ?`, indexURL, spec).Scan(&u)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup wheel: %w", err)
	}
	return u, true, nil
}
