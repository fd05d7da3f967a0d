package repository

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryGuard is the in-process Guard used without Redis or while Redis is down.
type MemoryGuard struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
	seen    map[string]time.Time
	now     func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		windows: make(map[string]*windowEntry),
		seen:    make(map[string]time.Time),
		now:     time.Now,
	}
}

func (g *MemoryGuard) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	entry, ok := g.windows[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &windowEntry{expiresAt: now.Add(window)}
		g.windows[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

func (g *MemoryGuard) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiresAt, ok := g.seen[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (g *MemoryGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for key, entry := range g.windows {
		if now.After(entry.expiresAt) {
			delete(g.windows, key)
			removed++
		}
	}
	for key, expiresAt := range g.seen {
		if !now.Before(expiresAt) {
			delete(g.seen, key)
			removed++
		}
	}
	return removed
}
