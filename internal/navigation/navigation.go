// Package navigation decides what the playground shows for a location:
// remote notebooks and scripts, inline code from share links, or the
// default snippet. It also filters history and link events that would not
// change the page.
package navigation

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/livetemplate/colorplay/internal/busy"
	"github.com/livetemplate/colorplay/internal/notebook"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/uricodec"
)

// Query parameters read on the playground route.
const (
	ParamSource   = "source"
	ParamNotebook = "notebook"
	ParamCode     = "code"
)

// Location is a path and its raw query, without the leading '?'.
type Location struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

// Pages renders notebook text and installs rendered pages.
// *notebook.Controller implements it.
type Pages interface {
	Submit(ctx context.Context, text string) (*render.Output, error)
	Load(out *render.Output)
}

// Runtime prepares the interpreter.
type Runtime interface {
	EnsureReady(ctx context.Context, mode runtime.Mode) error
}

// DocsFunc renders the documentation page served at path.
type DocsFunc func(ctx context.Context, path string) (*render.Output, error)

// Config locates the playground.
type Config struct {
	Base  string
	Route string
	// IntroURL is the notebook linked from the banner of wrapped snippets.
	IntroURL string
}

// Outcome is what one navigation produced.
type Outcome struct {
	Output *render.Output
	// Text is the notebook source behind Output, empty for documentation pages.
	Text string
	// ContentURL is the remote URL the content came from, if any.
	ContentURL string
	Playground bool
	// First is set for the navigation that loaded the page.
	First bool
}

// ErrSuperseded is returned by a navigation that a later one replaced
// before it finished. Its output must not be shown.
var ErrSuperseded = errors.New("navigation superseded")

// Orchestrator runs navigations for one browser page.
type Orchestrator struct {
	cfg     Config
	runtime Runtime
	fetcher Fetcher
	pages   Pages
	docs    DocsFunc
	busy    *busy.Indicator
	logger  *slog.Logger

	// runMu lets one navigation at a time reach the pages.
	runMu sync.Mutex

	mu          sync.Mutex
	lastApplied string
	contentURL  string
	latest      uint64 // newest navigation begun
	pending     int    // navigations begun and not finished
	touched     uint64 // last navigation that handed output to the pages
	committed   uint64 // last navigation whose output is shown
}

// Navigation is one reserved navigation. Beginning another navigation on
// the same Orchestrator supersedes it. Run or PopState must be called once.
type Navigation struct {
	o    *Orchestrator
	gen  uint64
	once sync.Once
}

// New creates an Orchestrator.
func New(cfg Config, rt Runtime, fetcher Fetcher, pages Pages, docs DocsFunc, indicator *busy.Indicator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		runtime: rt,
		fetcher: fetcher,
		pages:   pages,
		docs:    docs,
		busy:    indicator,
		logger:  logger.With("component", "navigation"),
	}
}

// Begin reserves the next navigation. Call it in the order navigations are
// requested; the work itself may then run on any goroutine.
func (o *Orchestrator) Begin() *Navigation {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latest++
	o.pending++
	return &Navigation{o: o, gen: o.latest}
}

func (n *Navigation) finish() {
	n.once.Do(func() {
		n.o.mu.Lock()
		n.o.pending--
		n.o.mu.Unlock()
	})
}

func (n *Navigation) superseded() bool {
	n.o.mu.Lock()
	defer n.o.mu.Unlock()
	return n.o.latest != n.gen
}

// touch records that n is about to replace the pages' content.
func (n *Navigation) touch() error {
	n.o.mu.Lock()
	defer n.o.mu.Unlock()
	if n.o.latest != n.gen {
		return ErrSuperseded
	}
	n.o.touched = n.gen
	return nil
}

// commit records n's query as shown unless a later navigation began.
func (n *Navigation) commit(canonical, contentURL string) error {
	n.o.mu.Lock()
	defer n.o.mu.Unlock()
	if n.o.latest != n.gen {
		return ErrSuperseded
	}
	n.o.lastApplied = canonical
	n.o.contentURL = contentURL
	n.o.committed = n.gen
	return nil
}

// PlaygroundPath is the path of the playground route.
func (o *Orchestrator) PlaygroundPath() string {
	return uricodec.JoinPath(o.cfg.Base, o.cfg.Route)
}

// IsPlayground reports whether path is the playground route.
func (o *Orchestrator) IsPlayground(path string) bool {
	if path == "" {
		return false
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path == o.PlaygroundPath()
}

// LastApplied is the canonical query of the last playground render.
func (o *Orchestrator) LastApplied() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastApplied
}

// ContentURL is the remote URL currently shown, used to prefill the
// "load from URL" prompts.
func (o *Orchestrator) ContentURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.contentURL
}

// Run renders what loc asks for. first marks the navigation that loaded the
// page; it is passed through to the Outcome.
func (o *Orchestrator) Run(ctx context.Context, loc Location, first bool) (*Outcome, error) {
	return o.Begin().Run(ctx, loc, first)
}

// Run renders what loc asks for. It returns ErrSuperseded, leaving the last
// applied query untouched, when a later navigation began before it finished.
func (n *Navigation) Run(ctx context.Context, loc Location, first bool) (*Outcome, error) {
	defer n.finish()
	o := n.o
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if n.superseded() {
		return nil, ErrSuperseded
	}
	out, err := n.run(ctx, loc, first)
	if err != nil && n.superseded() {
		return nil, ErrSuperseded
	}
	return out, err
}

func (n *Navigation) run(ctx context.Context, loc Location, first bool) (*Outcome, error) {
	o := n.o
	if !o.IsPlayground(loc.Path) {
		out, err := o.docs(ctx, loc.Path)
		if err != nil {
			return nil, err
		}
		if err := n.touch(); err != nil {
			return nil, err
		}
		o.pages.Load(out)
		if err := n.commit("", ""); err != nil {
			return nil, err
		}
		return &Outcome{Output: out, First: first}, nil
	}

	params, err := url.ParseQuery(strings.TrimPrefix(loc.Query, "?"))
	if err != nil {
		o.logger.Debug("ignoring malformed query", "query", loc.Query, "error", err)
		params = url.Values{}
	}
	canonical := uricodec.CanonicalQuery(loc.Query)

	kind := ParamNotebook
	if params.Has(ParamSource) {
		kind = ParamSource
	}
	remote := strings.TrimSpace(params.Get(kind))

	hide := o.busy.Show(notebook.TargetArticle, busy.LabelRuntime)
	err = o.runtime.EnsureReady(ctx, runtime.ModeFull)
	hide()
	if err != nil {
		return nil, err
	}

	var text string
	if remote != "" {
		body := o.fetch(ctx, remote)
		text = string(body)
		if kind == ParamSource {
			text = o.wrap(text)
		}
	} else {
		code := DefaultSnippet
		if params.Has(ParamCode) {
			code = params.Get(ParamCode)
		}
		text = o.wrap(code)
	}

	if err := n.touch(); err != nil {
		return nil, err
	}
	out, err := o.pages.Submit(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := n.commit(canonical, remote); err != nil {
		return nil, err
	}
	return &Outcome{Output: out, Text: text, ContentURL: remote, Playground: true, First: first}, nil
}

// fetch loads remote content with the notebook overlay up. Failures are
// logged and produce empty content.
func (o *Orchestrator) fetch(ctx context.Context, rawURL string) []byte {
	hide := o.busy.Show(notebook.TargetArticle, busy.LabelNotebook)
	defer hide()

	body, err := o.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		o.logger.Warn("remote content unavailable", "url", rawURL, "error", err)
		return nil
	}
	return body
}

func (o *Orchestrator) wrap(code string) string {
	return WrapSnippet(code, o.cfg.Base, o.cfg.Route, o.cfg.IntroURL)
}

// PopState re-runs navigation after a history transition, unless it leads
// to the query that is already shown. The bool reports whether it ran.
func (o *Orchestrator) PopState(ctx context.Context, loc Location) (*Outcome, bool, error) {
	return o.Begin().PopState(ctx, loc)
}

// PopState re-runs navigation after a history transition. It is skipped
// when loc's query is the one on screen and no other navigation is pending
// or left the pages holding output that was never shown.
func (n *Navigation) PopState(ctx context.Context, loc Location) (*Outcome, bool, error) {
	o := n.o
	if !o.IsPlayground(loc.Path) {
		n.finish()
		return nil, false, nil
	}
	o.mu.Lock()
	settled := o.pending == 1 && o.touched == o.committed && uricodec.CanonicalQuery(loc.Query) == o.lastApplied
	o.mu.Unlock()
	if settled {
		n.finish()
		return nil, false, nil
	}
	out, err := n.Run(ctx, loc, false)
	return out, true, err
}

// ShouldIntercept reports whether a click from current to target can be
// handled in place: same host, both on the playground route, different query.
func (o *Orchestrator) ShouldIntercept(current, target *url.URL) bool {
	if current == nil || target == nil {
		return false
	}
	return target.Host == current.Host &&
		o.IsPlayground(current.Path) &&
		current.Path == target.Path &&
		current.RawQuery != target.RawQuery
}

// PromptLink builds the playground link for a "load from URL" prompt.
// kind is ParamNotebook or ParamSource.
func (o *Orchestrator) PromptLink(kind, rawURL string) string {
	return uricodec.QueryLink(o.cfg.Base, o.cfg.Route, kind, rawURL)
}
