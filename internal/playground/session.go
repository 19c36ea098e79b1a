// Package playground runs one page session per connected browser page. A
// session owns the page's notebook, widgets, interpreter sessions and
// execution lock, and speaks the JSON message protocol over a WebSocket.
package playground

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/time/rate"

	"github.com/livetemplate/colorplay/internal/busy"
	"github.com/livetemplate/colorplay/internal/executor"
	"github.com/livetemplate/colorplay/internal/navigation"
	"github.com/livetemplate/colorplay/internal/notebook"
	"github.com/livetemplate/colorplay/internal/render"
	"github.com/livetemplate/colorplay/internal/runtime"
	"github.com/livetemplate/colorplay/internal/session"
	"github.com/livetemplate/colorplay/internal/widget"
)

const (
	writeWait        = 10 * time.Second
	defaultReadLimit = 4 << 20
)

// Config holds the settings shared by every page session.
type Config struct {
	Base           string
	Route          string
	IntroURL       string
	ShareMaxLength int
	SessionTTL     time.Duration
	// MessagesPerSecond and Burst limit inbound messages per connection.
	MessagesPerSecond float64
	Burst             int
	ReadLimit         int64
}

// Deps are the server-wide services a page session uses.
type Deps struct {
	Runtime  widget.Runtime
	Renderer *render.Renderer
	Fetcher  navigation.Fetcher
	Docs     navigation.DocsFunc
	Logger   *slog.Logger
}

// Session is one browser page.
type Session struct {
	id     string
	conn   *websocket.Conn
	cfg    Config
	logger *slog.Logger

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	// taskMu orders tasks.Add against Close's tasks.Wait.
	taskMu  sync.Mutex
	closing bool
	tasks   sync.WaitGroup
	limiter *rate.Limiter

	// navMu runs one navigation at a time, output included. navCancel
	// stops the newest one; it is only touched by the Serve goroutine.
	navMu     sync.Mutex
	navCancel context.CancelFunc

	busy     *busy.Indicator
	sessions *session.Store
	notebook *notebook.Controller
	nav      *navigation.Orchestrator
}

// NewSession creates the session for an upgraded connection.
func NewSession(conn *websocket.Conn, cfg Config, deps Deps) (*Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", id)

	limit := rate.Inf
	if cfg.MessagesPerSecond > 0 {
		limit = rate.Limit(cfg.MessagesPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &Session{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.busy = busy.New(func(st busy.State) {
		_ = s.send(TypeBusy, 0, st)
	})

	var storeOpts []session.Option
	if cfg.SessionTTL > 0 {
		storeOpts = append(storeOpts, session.WithTTL(cfg.SessionTTL))
	}
	storeOpts = append(storeOpts, session.WithLogger(logger))
	s.sessions = session.New(storeOpts...)

	env := &widget.Env{
		Runtime:        deps.Runtime,
		Lock:           executor.New(),
		Sessions:       s.sessions,
		Busy:           s.busy,
		Renderer:       deps.Renderer,
		ShareBase:      cfg.Base,
		ShareRoute:     cfg.Route,
		ShareMaxLength: cfg.ShareMaxLength,
		Logger:         logger,
	}
	s.notebook = notebook.New(env, runtime.DefaultGamut)
	s.nav = navigation.New(navigation.Config{
		Base:     cfg.Base,
		Route:    cfg.Route,
		IntroURL: cfg.IntroURL,
	}, deps.Runtime, deps.Fetcher, s.notebook, deps.Docs, s.busy, logger)
	return s, nil
}

// ID is the session's random identifier.
func (s *Session) ID() string { return s.id }

// Notebook exposes the page's notebook controller.
func (s *Session) Notebook() *notebook.Controller { return s.notebook }

// Serve reads messages until the connection or ctx closes. Long operations
// run in their own goroutines; Serve waits for them before returning.
func (s *Session) Serve(ctx context.Context) error {
	defer s.Close()

	readLimit := s.cfg.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	s.conn.SetReadLimit(readLimit)

	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	go func() {
		<-s.ctx.Done()
		s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && s.ctx.Err() == nil {
				return fmt.Errorf("read: %w", err)
			}
			return nil
		}
		if !s.limiter.Allow() {
			s.logger.Debug("message dropped by rate limit")
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("malformed message", "error", err)
			continue
		}
		s.handle(msg)
	}
}

// Close cancels in-flight work, waits for it and destroys interpreter
// sessions. It is safe to call more than once.
func (s *Session) Close() {
	s.taskMu.Lock()
	if s.closing {
		s.taskMu.Unlock()
		return
	}
	s.closing = true
	s.taskMu.Unlock()

	s.cancel()
	s.tasks.Wait()
	s.sessions.Close()
	s.conn.Close()
}

// spawn runs fn on its own goroutine unless the session is closing.
func (s *Session) spawn(fn func(ctx context.Context)) bool {
	s.taskMu.Lock()
	if s.closing {
		s.taskMu.Unlock()
		return false
	}
	s.tasks.Add(1)
	s.taskMu.Unlock()

	go func() {
		defer s.tasks.Done()
		fn(s.ctx)
	}()
	return true
}

func (s *Session) handle(msg Message) {
	s.logger.Debug("message", "type", msg.Type, "widget", msg.Widget)

	switch msg.Type {
	case TypeHello:
		var d HelloData
		if !s.decode(msg, &d) {
			return
		}
		gamut := d.Gamut
		if gamut == "" {
			gamut = runtime.DefaultGamut
		}
		s.notebook.SetGamut(gamut)
		s.navigate(func(ctx context.Context, n *navigation.Navigation) {
			s.applied(n.Run(ctx, navigation.Location{Path: d.Path, Query: d.Query}, true))
		})

	case TypeNavigate:
		var d LocationData
		if !s.decode(msg, &d) {
			return
		}
		s.navigate(func(ctx context.Context, n *navigation.Navigation) {
			s.applied(n.Run(ctx, navigation.Location{Path: d.Path, Query: d.Query}, false))
		})

	case TypePopState:
		var d LocationData
		if !s.decode(msg, &d) {
			return
		}
		s.navigate(func(ctx context.Context, n *navigation.Navigation) {
			out, ran, err := n.PopState(ctx, navigation.Location{Path: d.Path, Query: d.Query})
			if !ran {
				return
			}
			s.applied(out, err)
		})

	case TypeEdit, TypeCancel:
		w, ok := s.widget(msg.Widget)
		if !ok {
			return
		}
		var err error
		if msg.Type == TypeEdit {
			err = w.Edit()
		} else {
			err = w.Cancel()
		}
		if errors.Is(err, widget.ErrBusy) {
			return
		}
		s.sendView(w)

	case TypeRun:
		var d TextData
		if !s.decode(msg, &d) {
			return
		}
		w, ok := s.widget(msg.Widget)
		if !ok {
			return
		}
		s.spawn(func(ctx context.Context) {
			err := w.Run(ctx, d.Text)
			if errors.Is(err, widget.ErrBusy) {
				s.logger.Debug("run ignored, page is busy", "widget", msg.Widget)
				return
			}
			s.sendView(w)
		})

	case TypeShare:
		var d ShareData
		if !s.decode(msg, &d) {
			return
		}
		w, ok := s.widget(msg.Widget)
		if !ok {
			return
		}
		s.share(w, d)

	case TypeNotebookEdit:
		s.notebook.Edit()
		s.sendEditor()

	case TypeNotebookCancel:
		s.notebook.Cancel()
		s.sendEditor()

	case TypeNotebookSubmit:
		var d TextData
		if !s.decode(msg, &d) {
			return
		}
		s.spawn(func(ctx context.Context) {
			out, err := s.notebook.Submit(ctx, d.Text)
			if err != nil {
				s.failure("Failed to render the notebook", err)
				return
			}
			_ = s.send(TypePage, 0, PageData{
				HTML:       out.HTML,
				Source:     d.Text,
				Playground: true,
				ContentURL: s.nav.ContentURL(),
			})
		})

	default:
		s.logger.Warn("unknown message type", "type", msg.Type)
	}
}

func (s *Session) decode(msg Message, v any) bool {
	if len(msg.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		s.logger.Warn("malformed message data", "type", msg.Type, "error", err)
		return false
	}
	return true
}

func (s *Session) widget(id widget.ID) (*widget.Controller, bool) {
	w, err := s.notebook.Registry().Get(id)
	if err != nil {
		s.logger.Warn("message for unknown widget", "widget", id)
		return nil, false
	}
	return w, true
}

// navigate reserves a navigation in message order, cancels the one before
// it and runs fn in the background. Navigations and the pages they send are
// serialized, so a superseded one can never overwrite a newer page.
func (s *Session) navigate(fn func(ctx context.Context, n *navigation.Navigation)) {
	n := s.nav.Begin()
	if s.navCancel != nil {
		s.navCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.navCancel = cancel

	if !s.spawn(func(context.Context) {
		defer cancel()
		s.navMu.Lock()
		defer s.navMu.Unlock()
		fn(ctx, n)
	}) {
		cancel()
	}
}

func (s *Session) applied(out *navigation.Outcome, err error) {
	if errors.Is(err, navigation.ErrSuperseded) {
		s.logger.Debug("navigation superseded")
		return
	}
	if err != nil {
		s.failure("Failed to load the page", err)
		return
	}
	_ = s.send(TypePage, 0, PageData{
		HTML:       out.Output.HTML,
		Source:     out.Text,
		Playground: out.Playground,
		ContentURL: out.ContentURL,
	})
}

func (s *Session) share(w *widget.Controller, d ShareData) {
	_, err := w.Share(s.ctx, d.Origin, d.Text, s)
	switch {
	case err == nil:
	case errors.Is(err, widget.ErrShareTooLong):
		s.notice(fmt.Sprintf("Code must be under %d characters to generate a URL!", s.shareMax()), LevelWarn)
	case errors.Is(err, widget.ErrClipboard):
		s.logger.Warn("share link not delivered", "error", err)
		s.notice("Failed to copy link to clipboard!", LevelError)
	default:
		s.logger.Error("share failed", "error", err)
	}
}

// WriteText hands text to the browser's clipboard.
func (s *Session) WriteText(_ context.Context, text string) error {
	return s.send(TypeClipboard, 0, ClipboardData{Text: text})
}

// Reload tells the browser that path changed on disk.
func (s *Session) Reload(path string) error {
	return s.send(TypeReload, 0, ReloadData{Path: path})
}

func (s *Session) shareMax() int {
	if s.cfg.ShareMaxLength > 0 {
		return s.cfg.ShareMaxLength
	}
	return widget.DefaultShareMaxLength
}

func (s *Session) failure(msg string, err error) {
	if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
		return
	}
	s.logger.Error(msg, "error", err)
	s.notice(msg+": "+err.Error(), LevelError)
}

func (s *Session) notice(msg, level string) {
	_ = s.send(TypeNotice, 0, NoticeData{Message: msg, Level: level})
}

func (s *Session) sendView(w *widget.Controller) {
	_ = s.send(TypeWidget, w.ID(), w.View())
}

func (s *Session) sendEditor() {
	_ = s.send(TypePage, 0, PageData{
		Source:     s.notebook.Text(),
		Playground: true,
		Editing:    s.notebook.Editing(),
	})
}

func (s *Session) send(typ string, id widget.ID, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	msg := Message{Type: typ, Widget: id, Data: raw}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("write failed", "type", typ, "error", err)
		return err
	}
	return nil
}
