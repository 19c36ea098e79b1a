// Package session stores interpreter state snapshots shared between widgets
// of a page running in live mode.
package session

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"github.com/livetemplate/colorplay/internal/cache"
)

// Snapshot is an immutable copy of serialized interpreter variable state.
// The zero value is an empty snapshot.
type Snapshot struct {
	data []byte
}

// NewSnapshot copies state into a new Snapshot. Later changes to state
// do not affect the snapshot.
func NewSnapshot(state []byte) Snapshot {
	if len(state) == 0 {
		return Snapshot{}
	}
	return Snapshot{data: bytes.Clone(state)}
}

// Bytes returns a copy of the snapshot's state.
func (s Snapshot) Bytes() []byte {
	return bytes.Clone(s.data)
}

// Len is the size of the serialized state.
func (s Snapshot) Len() int { return len(s.data) }

// IsZero reports whether the snapshot carries no state.
func (s Snapshot) IsZero() bool { return len(s.data) == 0 }

// Equal reports whether both snapshots hold the same state.
func (s Snapshot) Equal(o Snapshot) bool { return bytes.Equal(s.data, o.data) }

// ReleaseFunc is run for every snapshot that leaves the store.
type ReleaseFunc func(id string, s Snapshot)

// Option configures a Store.
type Option func(*Store)

// WithTTL expires sessions that were not stored to for d.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithRelease sets the release hook.
func WithRelease(fn ReleaseFunc) Option {
	return func(s *Store) { s.release = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store maps session ids to snapshots for one page.
type Store struct {
	entries *cache.MemoryCache[Snapshot]
	ttl     time.Duration
	release ReleaseFunc
	logger  *slog.Logger

	mu   sync.Mutex
	live bool
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.entries = cache.NewMemoryCache[Snapshot](cache.WithOnEvict[Snapshot](s.onEvict))
	return s
}

func (s *Store) onEvict(id string, snap Snapshot) {
	s.logger.Debug("session released", "session", id, "bytes", snap.Len())
	if s.release != nil {
		s.release(id, snap)
	}
}

// Get returns the snapshot stored under id.
func (s *Store) Get(id string) (Snapshot, bool) {
	return s.entries.Get(id)
}

// Put stores snap under id, releasing whatever was there before.
func (s *Store) Put(id string, snap Snapshot) {
	s.entries.Set(id, snap, s.ttl)
}

// DestroyAll releases every snapshot and empties the store.
func (s *Store) DestroyAll() {
	s.entries.InvalidateAll()
}

// Len returns the number of stored sessions.
func (s *Store) Len() int { return s.entries.Len() }

// Live reports whether the page currently shares state between widgets.
func (s *Store) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// EnterLive switches the page into live mode. The first entry destroys all
// sessions so the page starts from a clean slate; repeated calls do nothing.
func (s *Store) EnterLive() {
	s.mu.Lock()
	first := !s.live
	s.live = true
	s.mu.Unlock()

	if first {
		s.DestroyAll()
	}
}

// Reset leaves live mode and destroys all sessions. Called on every full render.
func (s *Store) Reset() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
	s.DestroyAll()
}

// Close releases all sessions and stops the expiry sweeper.
func (s *Store) Close() {
	s.DestroyAll()
	s.entries.Stop()
}
