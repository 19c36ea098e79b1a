package server

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/colorplay/internal/assets"
	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/navigation"
	"github.com/livetemplate/colorplay/internal/playground"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/site"
)

type fakeRuntime struct {
	execs atomic.Int32
}

func (f *fakeRuntime) EnsureReady(context.Context, runtime.Mode) error { return nil }

func (f *fakeRuntime) Execute(_ context.Context, req runtime.Request) (*runtime.Result, error) {
	f.execs.Add(1)
	return &runtime.Result{Console: ">>> " + req.Code + "\n"}, nil
}

type testServer struct {
	*Server
	root  string
	rt    *fakeRuntime
	hub   *playground.Hub
	pages *site.Pages
}

func newTestServer(t *testing.T, base string) *testServer {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.md":                   "# Home\n",
		"gradients/interpolation.md": "# Interpolation\n\n```py play\nColor('red')\n```\n",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}

	cfg := config.DefaultConfig()
	cfg.Docs.Base = base
	manager := site.New(root, cfg)
	require.NoError(t, manager.Discover())

	rt := &fakeRuntime{}
	renderer := render.New()
	pages := site.NewPages(manager, renderer, rt, 0, nil)
	t.Cleanup(pages.Close)

	bundle, err := assets.Build(assets.Options{})
	require.NoError(t, err)
	hub := playground.NewHub(nil)

	srv := New(Options{
		Config:  cfg,
		Manager: manager,
		Pages:   pages,
		Layout:  &site.Layout{Config: cfg, Manager: manager, Assets: bundle},
		Hub:     hub,
		Session: playground.Config{Base: cfg.Docs.Base, Route: cfg.Playground.Route, ShareMaxLength: 2000},
		Deps: playground.Deps{
			Runtime:  rt,
			Renderer: renderer,
			Fetcher:  navigation.NewHTTPFetcher(time.Second),
			Docs:     pages.Render,
		},
	})
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, root: root, rt: rt, hub: hub, pages: pages}
}

func get(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestServeDocsPage(t *testing.T) {
	ts := newTestServer(t, "")

	w := get(t, ts, "/gradients/interpolation/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "__playground_0")
	assert.Contains(t, w.Body.String(), "<title>Interpolation - Color Playground</title>")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.EqualValues(t, 1, ts.rt.execs.Load())

	get(t, ts, "/gradients/interpolation/", nil)
	assert.EqualValues(t, 1, ts.rt.execs.Load(), "second request served from cache")
}

func TestServeRedirects(t *testing.T) {
	ts := newTestServer(t, "")

	w := get(t, ts, "/gradients/interpolation?x=1", nil)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/gradients/interpolation/?x=1", w.Header().Get("Location"))

	w = get(t, ts, "/playground?code=abc", nil)
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/playground/?code=abc", w.Header().Get("Location"))

	w = get(t, ts, "/missing/", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestServePlaygroundShell(t *testing.T) {
	ts := newTestServer(t, "coloraide")

	w := get(t, ts, "/coloraide/playground/?code=Color('red')", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="__notebook-render"`)
	assert.Contains(t, w.Body.String(), `data-playground="/coloraide/playground/"`)
	assert.Zero(t, ts.rt.execs.Load())
}

func TestServeAssets(t *testing.T) {
	ts := newTestServer(t, "coloraide")
	script := ts.layout.Assets.Path("/coloraide/", assets.ScriptName)
	require.NotEmpty(t, script)

	w := get(t, ts, script, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, w.Header().Get("Cache-Control"), "immutable")
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = get(t, ts, script, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = get(t, ts, "/coloraide/assets/playground.0000000000.js", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, ts, "/coloraide/manifest.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var manifest map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &manifest))
	assert.True(t, strings.HasSuffix(script, "/"+manifest[assets.ScriptName]))
}

func TestServeCompressed(t *testing.T) {
	ts := newTestServer(t, "")

	w := get(t, ts, "/", map[string]string{"Accept-Encoding": "gzip"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<h1")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	w := get(t, ts, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","pages":2,"sessions":0}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	root := newTestServer(t, "")
	root.cfg.Server.CORS = []string{"https://docs.example"}
	srv := New(Options{Config: root.cfg, Manager: root.manager, Pages: root.pages, Layout: root.layout, Hub: root.hub})
	t.Cleanup(srv.Close)

	w := get(t, srv, "/", map[string]string{"Origin": "https://docs.example"})
	assert.Equal(t, "https://docs.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(t, srv, "/", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) playground.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg playground.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebSocketSessionAndReload(t *testing.T) {
	ts := newTestServer(t, "")
	httpSrv := httptest.NewServer(ts)
	t.Cleanup(httpSrv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpSrv.URL, "http")+WSPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": playground.TypeHello,
		"data": map[string]string{"path": "/gradients/interpolation/", "gamut": "srgb"},
	}))
	msg := readUntil(t, conn, playground.TypePage)
	var page playground.PageData
	require.NoError(t, json.Unmarshal(msg.Data, &page))
	assert.False(t, page.Playground)
	assert.Contains(t, page.HTML, "__playground_0")
	require.Eventually(t, func() bool { return ts.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	file := filepath.Join(ts.root, "gradients", "interpolation.md")
	require.NoError(t, os.WriteFile(file, []byte("# Changed\n"), 0644))
	require.NoError(t, ts.reload(filepath.Join("gradients", "interpolation.md")))

	msg = readUntil(t, conn, playground.TypeReload)
	var reload playground.ReloadData
	require.NoError(t, json.Unmarshal(msg.Data, &reload))
	assert.Equal(t, "/gradients/interpolation/", reload.Path)
	assert.Zero(t, ts.pages.Cached())

	w := get(t, ts, "/gradients/interpolation/", nil)
	assert.Contains(t, w.Body.String(), "<title>Changed - Color Playground</title>")
}

func TestReloadRemovedFile(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, os.Remove(filepath.Join(ts.root, "gradients", "interpolation.md")))
	require.NoError(t, ts.reload(filepath.Join("gradients", "interpolation.md")))

	_, ok := ts.manager.GetPage("/gradients/interpolation/")
	assert.False(t, ok)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ts.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
