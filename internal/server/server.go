// Package server serves the documentation site, the playground shell and the
// page-session WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/livetemplate/colorplay/internal/assets"
	"github.com/livetemplate/colorplay/internal/config"
	"github.com/livetemplate/colorplay/internal/playground"
	"github.com/livetemplate/colorplay/internal/site"
	"github.com/livetemplate/colorplay/internal/uricodec"
)

// WSPath is the page-session endpoint.
const WSPath = "/ws"

const shutdownTimeout = 10 * time.Second

// Options are the components a Server serves.
type Options struct {
	Config  *config.Config
	Manager *site.Manager
	Pages   *site.Pages
	Layout  *site.Layout
	Hub     *playground.Hub
	// Session and Deps configure every page session.
	Session playground.Config
	Deps    playground.Deps
	Logger  *slog.Logger
}

// Server is the colorplay HTTP server.
type Server struct {
	cfg     *config.Config
	manager *site.Manager
	pages   *site.Pages
	layout  *site.Layout
	hub     *playground.Hub
	logger  *slog.Logger
	router  chi.Router

	limits  *clientLimits
	watcher *Watcher
}

// New creates a Server and its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     opts.Config,
		manager: opts.Manager,
		pages:   opts.Pages,
		layout:  opts.Layout,
		hub:     opts.Hub,
		logger:  logger.With("component", "server"),
	}

	s.limits = newClientLimits(s.cfg.Server.RateLimit, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())
	if len(s.cfg.Server.CORS) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Server.CORS,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         86400,
		}))
	}
	r.Use(s.limits.Middleware)

	r.Get("/healthz", s.serveHealth)
	r.Handle(WSPath, playground.NewHandler(s.hub, opts.Session, opts.Deps, s.cfg.Server.CORS))

	base := uricodec.JoinPath(s.cfg.Docs.Base)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "text/html", "text/css", "application/javascript", "application/json"))
		r.Get(base+"assets/{name}", s.serveAsset)
		r.Get(base+assets.ManifestName, s.serveManifest)
		r.Get("/*", s.servePage)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","pages":%d,"sessions":%d}`, len(s.manager.AllPages()), s.hub.Len())
}

// serveAsset serves a revisioned client asset. Its name changes with its
// content so it is cached forever.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.layout.Assets.Lookup(chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("ETag", a.ETag())
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if r.Header.Get("If-None-Match") == a.ETag() {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Body)))
	_, _ = w.Write(a.Body)
}

func (s *Server) serveManifest(w http.ResponseWriter, _ *http.Request) {
	body, err := s.layout.Assets.ManifestJSON()
	if err != nil {
		http.Error(w, "manifest unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(body)
}

// servePage serves the playground shell and docs pages. Paths without a
// trailing slash are redirected to their canonical form.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if !strings.HasSuffix(p, "/") {
		if _, ok := s.manager.GetPage(p); ok || p+"/" == s.manager.PlaygroundPath() {
			target := p + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
	}

	if p == s.manager.PlaygroundPath() {
		writeHTML(w, s.layout.Playground())
		return
	}

	node, ok := s.manager.GetPage(p)
	if !ok {
		// No page here - redirect to the home page instead of 404.
		http.Redirect(w, r, uricodec.JoinPath(s.cfg.Docs.Base), http.StatusSeeOther)
		return
	}

	out, err := s.pages.Render(r.Context(), node.Path)
	if err != nil {
		s.logger.Error("page render failed", "path", node.Path, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	writeHTML(w, s.layout.Page(node, out.HTML))
}

func writeHTML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(doc))
}

// reload applies a changed file to the site and tells open pages.
func (s *Server) reload(relPath string) error {
	urlPath := s.manager.URLPath(relPath)

	if _, err := os.Stat(filepath.Join(s.manager.RootDir(), relPath)); err != nil {
		if err := s.manager.Discover(); err != nil {
			return fmt.Errorf("failed to re-discover pages: %w", err)
		}
		s.pages.Invalidate("")
	} else {
		if err := s.manager.Reload(relPath); err != nil {
			return err
		}
		s.pages.Invalidate(urlPath)
	}

	s.hub.BroadcastReload(urlPath)
	return nil
}

// EnableWatch enables file watching for live reload.
func (s *Server) EnableWatch() error {
	watcher, err := NewWatcher(s.manager.RootDir(), s.reload, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	s.logger.Info("file watcher started", "dir", s.manager.RootDir())
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		w := s.watcher
		s.watcher = nil
		return w.Stop()
	}
	return nil
}

// ListenAndServe serves on addr until ctx is cancelled, then closes page
// sessions and shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "sessions", s.hub.Len())
	s.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the watcher and background workers.
func (s *Server) Close() {
	if err := s.StopWatch(); err != nil {
		s.logger.Warn("stop watcher", "error", err)
	}
	s.limits.stop()
}
