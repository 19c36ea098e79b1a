package playground

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks the open page sessions of a server.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{sessions: make(map[string]*Session), logger: logger}
}

// Add registers s.
func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("page session opened", "session", s.ID(), "active", n)
}

// Remove unregisters s.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("page session closed", "session", s.ID(), "active", n)
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// BroadcastReload asks every open page to reload because path changed.
func (h *Hub) BroadcastReload(path string) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	if len(sessions) == 0 {
		return
	}
	h.logger.Info("broadcasting reload", "path", path, "sessions", len(sessions))
	for _, s := range sessions {
		if err := s.Reload(path); err != nil {
			h.logger.Debug("reload not delivered", "session", s.ID(), "error", err)
		}
	}
}

// CloseAll closes every open session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.Close()
	}
}

// Handler upgrades requests to WebSocket page sessions.
type Handler struct {
	hub      *Hub
	cfg      Config
	deps     Deps
	upgrader websocket.Upgrader
}

// NewHandler creates the /ws handler. origins lists the pages allowed to
// connect; empty means same-origin only and "*" allows any.
func NewHandler(hub *Hub, cfg Config, deps Deps, origins []string) *Handler {
	h := &Handler{hub: hub, cfg: cfg, deps: deps}
	if len(origins) > 0 {
		h.upgrader.CheckOrigin = originChecker(origins)
	}
	return h
}

func originChecker(origins []string) func(r *http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		return slices.ContainsFunc(origins, func(o string) bool {
			return strings.EqualFold(strings.TrimRight(o, "/"), origin)
		})
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s, err := NewSession(conn, h.cfg, h.deps)
	if err != nil {
		logger.Error("page session", "error", err)
		conn.Close()
		return
	}
	h.hub.Add(s)
	defer h.hub.Remove(s)

	if err := s.Serve(r.Context()); err != nil {
		s.logger.Warn("page session ended", "error", err)
	}
}
