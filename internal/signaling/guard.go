package signaling

import (
	"context"
	"sync"
	"time"
)

// AcceptanceGuard suppresses duplicate acceptances of the same call.
type AcceptanceGuard interface {
	// Claim records the acceptance of caller's call by receiver. It returns false
	// when an unexpired record for the pair already exists.
	Claim(ctx context.Context, receiver, caller string) (bool, error)
	// Sweep discards expired records and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

type acceptKey struct {
	receiver string
	caller   string
}

// MemoryGuard keeps acceptance records in process memory.
type MemoryGuard struct {
	mu        sync.Mutex
	records   map[acceptKey]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryGuard creates an in-memory guard. Records older than retention are
// treated as absent; a non-positive retention keeps records forever.
func NewMemoryGuard(retention time.Duration) *MemoryGuard {
	return &MemoryGuard{
		records:   make(map[acceptKey]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Claim implements AcceptanceGuard.
func (g *MemoryGuard) Claim(_ context.Context, receiver, caller string) (bool, error) {
	key := acceptKey{receiver: receiver, caller: caller}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if at, ok := g.records[key]; ok && !g.expired(at, now) {
		return false, nil
	}
	g.records[key] = now
	return true, nil
}

// Sweep implements AcceptanceGuard.
func (g *MemoryGuard) Sweep(_ context.Context) (int, error) {
	if g.retention <= 0 {
		return 0, nil
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, at := range g.records {
		if g.expired(at, now) {
			delete(g.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records, expired or not.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

func (g *MemoryGuard) expired(at, now time.Time) bool {
	return g.retention > 0 && now.Sub(at) >= g.retention
}
