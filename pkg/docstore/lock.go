package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/metrics"
)

// KeyedMutex provides mutual exclusion per document key. Waiters block on a
// per-key channel instead of polling, are served in arrival order, and give
// up when their context ends or the configured timeout elapses.
type KeyedMutex struct {
	mu      sync.Mutex
	locks   map[docid.Key]*keyLock
	timeout time.Duration
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns a KeyedMutex. A zero timeout waits until the
// context ends.
func NewKeyedMutex(timeout time.Duration) *KeyedMutex {
	return &KeyedMutex{
		locks:   make(map[docid.Key]*keyLock),
		timeout: timeout,
	}
}

// Lock acquires the lock for key.
func (m *KeyedMutex) Lock(ctx context.Context, key docid.Key) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	select {
	case l.ch <- struct{}{}:
		metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	case <-ctx.Done():
		m.release(key, l)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return ctx.Err()
	}
}

// TryLock acquires the lock for key only if it is free.
func (m *KeyedMutex) TryLock(key docid.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	select {
	case l.ch <- struct{}{}:
		l.refs++
		return true
	default:
		if l.refs == 0 {
			delete(m.locks, key)
		}
		return false
	}
}

// Unlock releases the lock for key. Releasing a key that is not held is a
// no-op.
func (m *KeyedMutex) Unlock(key docid.Key) {
	m.mu.Lock()
	l, ok := m.locks[key]
	m.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-l.ch:
		m.release(key, l)
	default:
	}
}

// Held reports whether key is currently locked.
func (m *KeyedMutex) Held(key docid.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	return ok && len(l.ch) == 1
}

// Len returns the number of keys that are held or waited on.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *KeyedMutex) release(key docid.Key, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
