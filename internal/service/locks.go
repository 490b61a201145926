package service

import (
	"context"
	"sync"
)

// LockSet is a set of in-process mutexes addressed by key. Entries are created
// on demand and dropped once no goroutine holds or waits for them.
type LockSet struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// NewLockSet returns an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{entries: make(map[string]*lockEntry)}
}

func (l *LockSet) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *LockSet) release(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until key is held or ctx ends.
func (l *LockSet) Lock(ctx context.Context, key string) (func(), error) {
	entry := l.acquire(key)
	select {
	case entry.sem <- struct{}{}:
		return l.unlocker(key, entry), nil
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}
}

// TryLock takes key only if it is free.
func (l *LockSet) TryLock(key string) (func(), bool) {
	entry := l.acquire(key)
	select {
	case entry.sem <- struct{}{}:
		return l.unlocker(key, entry), true
	default:
		l.release(key, entry)
		return nil, false
	}
}

func (l *LockSet) unlocker(key string, entry *lockEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(key, entry)
		})
	}
}

func ticketKey(id string) string  { return "ticket:" + id }
func counterKey(id string) string { return "counter:" + id }
func staffKey(id string) string   { return "staff:" + id }
