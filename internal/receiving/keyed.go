package receiving

import (
	"sync"
	"time"
)

// keyedMutex serializes work per key. Entries are dropped when the last
// holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// scanDedupe collapses repeated deliveries of one physical scan.
type scanDedupe struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[string]time.Time
}

func newScanDedupe(window time.Duration, now func() time.Time) *scanDedupe {
	return &scanDedupe{window: window, now: now, last: make(map[string]time.Time)}
}

// Seen records the code and reports whether it already arrived inside the
// window.
func (d *scanDedupe) Seen(code string) bool {
	if d.window <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for c, at := range d.last {
		if now.Sub(at) >= d.window {
			delete(d.last, c)
		}
	}
	if at, ok := d.last[code]; ok && now.Sub(at) < d.window {
		return true
	}
	d.last[code] = now
	return false
}
