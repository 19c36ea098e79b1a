// Package executor serializes access to a shared interpreter namespace.
package executor

import "context"

// Lock is a single-slot execution gate. The zero value is not usable; use New.
type Lock struct {
	slot chan struct{}
}

// New returns an unlocked Lock.
func New() *Lock {
	return &Lock{slot: make(chan struct{}, 1)}
}

// TryAcquire takes the slot if it is free and reports whether it did.
func (l *Lock) TryAcquire() bool {
	select {
	case l.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the slot is free or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot. Releasing an unheld lock panics.
func (l *Lock) Release() {
	select {
	case <-l.slot:
	default:
		panic("executor: release of unlocked Lock")
	}
}

// Held reports whether an execution currently owns the slot.
func (l *Lock) Held() bool {
	return len(l.slot) == 1
}

// Do waits for the slot, then runs fn.
func (l *Lock) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}
