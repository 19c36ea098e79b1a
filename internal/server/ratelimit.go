package server

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/livetemplate/colorplay/internal/cache"
	"github.com/livetemplate/colorplay/internal/config"
)

// clientIdleTTL is how long a quiet client keeps its bucket.
const clientIdleTTL = 10 * time.Minute

// clientLimits gives every client a token bucket for HTTP requests. At
// capacity the least recently seen client is forgotten and starts over
// with a full bucket. Page-session messages are limited per session by
// the playground package instead.
type clientLimits struct {
	limit   rate.Limit
	burst   int
	max     int
	idle    time.Duration
	logger  *slog.Logger
	mu      sync.Mutex
	buckets *cache.MemoryCache[*rate.Limiter]
}

func newClientLimits(cfg config.RateLimitConfig, logger *slog.Logger) *clientLimits {
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.MaxTrackedIPs
	if capacity <= 0 {
		capacity = 10000
	}
	return &clientLimits{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.RequestBurst,
		max:     capacity,
		idle:    clientIdleTTL,
		logger:  logger,
		buckets: cache.NewMemoryCache(cache.WithCleanupInterval[*rate.Limiter](time.Minute)),
	}
}

// allow takes a token from key's bucket.
func (l *clientLimits) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.buckets.Get(key)
	if !ok {
		if l.buckets.Len() >= l.max {
			if oldest, found := l.buckets.Oldest(); found {
				l.buckets.Invalidate(oldest)
				l.logger.Debug("rate limiter forgot client", "client", oldest, "capacity", l.max)
			}
		}
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Set(key, lim, l.idle)
	return lim.Allow()
}

// Middleware rejects requests of clients that ran out of tokens.
func (l *clientLimits) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *clientLimits) stop() {
	l.buckets.Stop()
}

// clientKey identifies the client behind r. Forwarding headers count only
// when the peer itself is on a loopback or private address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return host
	}
	if peer.IsLoopback() || peer.IsPrivate() {
		for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
			if v := r.Header.Get(header); v != "" {
				first, _, _ := strings.Cut(v, ",")
				return strings.TrimSpace(first)
			}
		}
	}
	return peer.String()
}
