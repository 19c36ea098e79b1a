package navigation

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/livetemplate/colorplay/internal/security"
)

// Fetch defaults.
const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultFetchMaxSize = 1 << 20
)

// Fetcher loads remote notebook and script content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchError is a fetch that did not return content.
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

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher fetches over HTTP, refusing internal addresses unless allowed.
type HTTPFetcher struct {
	client       *http.Client
	maxSize      int64
	allowPrivate bool
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithMaxSize bounds the response body.
func WithMaxSize(n int64) FetcherOption {
	return func(f *HTTPFetcher) { f.maxSize = n }
}

// WithAllowPrivate permits loopback and private network addresses, for
// serving notebooks from a local machine.
func WithAllowPrivate(allow bool) FetcherOption {
	return func(f *HTTPFetcher) { f.allowPrivate = allow }
}

// NewHTTPFetcher creates a fetcher. A zero timeout uses DefaultFetchTimeout.
func NewHTTPFetcher(timeout time.Duration, opts ...FetcherOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	f := &HTTPFetcher{maxSize: DefaultFetchMaxSize}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{Timeout: timeout}
	if !f.allowPrivate {
		dialer.Control = security.DialControl
	}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return f
}

// Fetch performs one GET of rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if !f.allowPrivate {
		if err := security.ValidateHTTPURL(rawURL); err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/plain, text/markdown, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(body)) > f.maxSize {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("response exceeds %d bytes", f.maxSize)}
	}
	return body, nil
}
