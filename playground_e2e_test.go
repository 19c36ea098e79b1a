//go:build !ci

package colorplay_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/livetemplate/colorplay/internal/assets"
	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/navigation"
	"github.com/livetemplate/colorplay/internal/playground"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/server"
	"github.com/livetemplate/colorplay/internal/site"
)

// echoRuntime answers every execution with a transcript of the code.
type echoRuntime struct{}

func (echoRuntime) EnsureReady(context.Context, runtime.Mode) error { return nil }

func (echoRuntime) Execute(_ context.Context, req runtime.Request) (*runtime.Result, error) {
	return &runtime.Result{
		Console: ">>> " + req.Code + "\n",
		Colors: []runtime.ColorGroup{{
			Kind:   runtime.GroupColors,
			Colors: []runtime.Color{{String: "red", CSS: "rgb(255 0 0)", CSSOpaque: "rgb(255 0 0)", InGamut: true}},
		}},
	}, nil
}

func startSite(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	doc := "# Gradients\n\n```py play\nColor('red')\n```\n"
	if err := os.WriteFile(filepath.Join(root, "index.md"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	manager := site.New(root, cfg)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Failed to discover pages: %v", err)
	}
	renderer := render.New()
	pages := site.NewPages(manager, renderer, echoRuntime{}, 0, nil)
	t.Cleanup(pages.Close)
	bundle, err := assets.Build(assets.Options{})
	if err != nil {
		t.Fatal(err)
	}

	srv := server.New(server.Options{
		Config:  cfg,
		Manager: manager,
		Pages:   pages,
		Layout:  &site.Layout{Config: cfg, Manager: manager, Assets: bundle, WSPath: server.WSPath},
		Hub:     playground.NewHub(nil),
		Session: playground.Config{Route: cfg.Playground.Route, ShareMaxLength: cfg.Playground.ShareMaxLength},
		Deps: playground.Deps{
			Runtime:  echoRuntime{},
			Renderer: renderer,
			Fetcher:  navigation.NewHTTPFetcher(time.Second),
			Docs:     pages.Render,
		},
	})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func textContains(selector, text string) chromedp.Action {
	return chromedp.Poll(
		`(() => { const el = document.querySelector(`+quote(selector)+`); return !!el && el.textContent.includes(`+quote(text)+`) })()`,
		nil,
		chromedp.WithPollingTimeout(10*time.Second),
	)
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// TestWidgetEditAndRun edits a docs page widget and runs the new code.
func TestWidgetEditAndRun(t *testing.T) {
	ts := startSite(t)
	b := newBrowser(t, 60*time.Second)

	err := chromedp.Run(b.ctx,
		chromedp.Navigate(b.URL(ts.URL)+"/"),
		chromedp.WaitVisible(`#__playground-results_0`, chromedp.ByQuery),
		textContains(`#__playground-results_0`, ">>> Color('red')"),
		chromedp.WaitVisible(`#__playground_0 .swatch`, chromedp.ByQuery),

		chromedp.Click(`#__playground-edit_0`, chromedp.ByQuery),
		chromedp.WaitVisible(`#__playground-inputs_0`, chromedp.ByQuery),
		chromedp.SetValue(`#__playground-inputs_0`, "Color('blue')", chromedp.ByQuery),
		chromedp.Click(`#__playground-run_0`, chromedp.ByQuery),
		textContains(`#__playground-results_0`, ">>> Color('blue')"),
	)
	if err != nil {
		t.Fatalf("browser run failed: %v", err)
	}
}

// TestPlaygroundSharedCode opens a share link and expects the code rendered
// as a notebook widget.
func TestPlaygroundSharedCode(t *testing.T) {
	ts := startSite(t)
	b := newBrowser(t, 60*time.Second)

	link := b.URL(ts.URL) + "/playground/?code=" + url.QueryEscape("Color('green')")
	err := chromedp.Run(b.ctx,
		chromedp.Navigate(link),
		chromedp.WaitVisible(`#__notebook-render #__playground-results_0`, chromedp.ByQuery),
		textContains(`#__notebook-render #__playground-results_0`, ">>> Color('green')"),

		chromedp.Click(`#__notebook-edit`, chromedp.ByQuery),
		chromedp.WaitVisible(`#__notebook-input`, chromedp.ByQuery),
		chromedp.SetValue(`#__notebook-input`, "# Fresh\n\n```playground\nColor('white')\n```\n", chromedp.ByQuery),
		chromedp.Click(`#__notebook-submit`, chromedp.ByQuery),
		textContains(`#__notebook-render`, ">>> Color('white')"),
	)
	if err != nil {
		t.Fatalf("browser run failed: %v", err)
	}
}
