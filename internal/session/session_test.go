package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCopyOnCreate(t *testing.T) {
	state := []byte(`{"x": 1}`)
	snap := NewSnapshot(state)
	state[2] = 'y'

	assert.Equal(t, `{"x": 1}`, string(snap.Bytes()))

	out := snap.Bytes()
	out[0] = '!'
	assert.Equal(t, `{"x": 1}`, string(snap.Bytes()), "Bytes returns a copy")
}

func TestSnapshotZero(t *testing.T) {
	assert.True(t, Snapshot{}.IsZero())
	assert.True(t, NewSnapshot(nil).IsZero())
	assert.False(t, NewSnapshot([]byte("a")).IsZero())
	assert.True(t, NewSnapshot([]byte("a")).Equal(NewSnapshot([]byte("a"))))
}

func TestPutGet(t *testing.T) {
	s := New()
	defer s.Close()

	state := []byte("abc")
	s.Put("s1", NewSnapshot(state))
	state[0] = 'z'

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "abc", string(got.Bytes()))

	_, ok = s.Get("s2")
	assert.False(t, ok)
}

func TestDestroyAllReleases(t *testing.T) {
	var mu sync.Mutex
	released := map[string]bool{}
	s := New(WithRelease(func(id string, _ Snapshot) {
		mu.Lock()
		released[id] = true
		mu.Unlock()
	}))
	defer s.Close()

	s.Put("a", NewSnapshot([]byte("1")))
	s.Put("b", NewSnapshot([]byte("2")))
	s.DestroyAll()

	assert.Equal(t, 0, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.False(t, ok)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, released)
}

func TestPutReplacesAndReleasesPrevious(t *testing.T) {
	count := 0
	s := New(WithRelease(func(string, Snapshot) { count++ }))
	defer s.Close()

	s.Put("a", NewSnapshot([]byte("1")))
	s.Put("a", NewSnapshot([]byte("2")))

	got, _ := s.Get("a")
	assert.Equal(t, "2", string(got.Bytes()))
	assert.Equal(t, 1, count)
}

func TestEnterLiveDestroysOnce(t *testing.T) {
	s := New()
	defer s.Close()

	s.Put("stale", NewSnapshot([]byte("x")))
	s.EnterLive()
	assert.True(t, s.Live())
	assert.Equal(t, 0, s.Len())

	s.Put("fresh", NewSnapshot([]byte("y")))
	s.EnterLive()
	assert.Equal(t, 1, s.Len(), "second entry keeps sessions")
}

func TestReset(t *testing.T) {
	s := New()
	defer s.Close()

	s.EnterLive()
	s.Put("a", NewSnapshot([]byte("x")))
	s.Reset()

	assert.False(t, s.Live())
	assert.Equal(t, 0, s.Len())
}

func TestTTLExpiry(t *testing.T) {
	s := New(WithTTL(30 * time.Millisecond))
	defer s.Close()

	s.Put("a", NewSnapshot([]byte("x")))
	time.Sleep(60 * time.Millisecond)

	_, ok := s.Get("a")
	assert.False(t, ok)
}
