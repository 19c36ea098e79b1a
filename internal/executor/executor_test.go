package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireRelease(t *testing.T) {
	l := New()
	require.True(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.False(t, l.TryAcquire())

	l.Release()
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire())
	l.Release()
}

func TestReleaseUnheldPanics(t *testing.T) {
	assert.Panics(t, func() { New().Release() })
}

func TestAcquireHonorsContext(t *testing.T) {
	l := New()
	require.True(t, l.TryAcquire())
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l := New()
	require.True(t, l.TryAcquire())

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Acquire returned while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release()
	require.NoError(t, <-done)
	l.Release()
}

func TestDoHoldsTheSlot(t *testing.T) {
	l := New()
	ran := false
	err := l.Do(context.Background(), func(context.Context) error {
		ran = true
		assert.True(t, l.Held())
		assert.False(t, l.TryAcquire(), "slot taken while fn runs")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, l.Held(), "lock released after fn returns")
}

func TestDoReleasesOnError(t *testing.T) {
	l := New()
	boom := errors.New("boom")
	err := l.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.Held())
}
