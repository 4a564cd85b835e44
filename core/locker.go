package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryResourceLocker is a keyed mutex registry for single-process deployments.
// Entries are created on demand and pruned once no caller holds or waits on them.
type MemoryResourceLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

func NewMemoryResourceLocker() *MemoryResourceLocker {
	return &MemoryResourceLocker{entries: make(map[string]*lockEntry)}
}

func (l *MemoryResourceLocker) TryAcquire(ctx context.Context, key LockKey, wait time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: resource locker is not configured")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name := key.String()
	entry := l.retain(name)

	select {
	case entry.slot <- struct{}{}:
		return &memoryResourceHandle{locker: l, name: name, entry: entry}, nil
	default:
	}
	if wait <= 0 {
		l.release(name, entry)
		return nil, LockUnavailableError(key)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case entry.slot <- struct{}{}:
		return &memoryResourceHandle{locker: l, name: name, entry: entry}, nil
	case <-timer.C:
		l.release(name, entry)
		return nil, LockUnavailableError(key)
	case <-ctx.Done():
		l.release(name, entry)
		return nil, ctx.Err()
	}
}

// Size reports the number of live lock entries.
func (l *MemoryResourceLocker) Size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryResourceLocker) retain(name string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[name]
	if !ok {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		l.entries[name] = entry
	}
	entry.refs++
	return entry
}

func (l *MemoryResourceLocker) release(name string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, name)
	}
}

type memoryResourceHandle struct {
	locker *MemoryResourceLocker
	name   string
	entry  *lockEntry
	once   sync.Once
}

func (h *memoryResourceHandle) Unlock(context.Context) error {
	if h == nil || h.locker == nil || h.entry == nil {
		return nil
	}
	h.once.Do(func() {
		<-h.entry.slot
		h.locker.release(h.name, h.entry)
	})
	return nil
}

// LockUnavailableError builds the conflict error returned when a lock stays held.
func LockUnavailableError(key LockKey) error {
	return NewError(ErrLockUnavailable, fmt.Sprintf("lock already held for %s", key.String()), map[string]any{
		"resource_type": key.ResourceType,
		"resource_id":   key.ResourceID,
	})
}

var _ ResourceLocker = (*MemoryResourceLocker)(nil)
