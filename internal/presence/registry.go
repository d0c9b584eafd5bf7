// Package presence tracks which identities currently have a reachable connection.
package presence

import (
	"log/slog"
	"sync"

	"github.com/ashureev/pairline/internal/domain"
)

// Conn is a connection handle that can receive named events.
// Send must not block on the remote peer.
type Conn interface {
	ID() string
	Send(event string, data any) error
}

// Registry maps identities to their most recent connection.
// Re-registration overwrites; the previous connection is orphaned, not closed.
type Registry struct {
	mu     sync.RWMutex
	active map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]Conn)}
}

// Register maps identity to conn, replacing any previous entry.
func (r *Registry) Register(identity string, conn Conn) error {
	if identity == "" {
		return domain.ErrInvalidIdentity
	}

	r.mu.Lock()
	previous, replaced := r.active[identity]
	r.active[identity] = conn
	r.mu.Unlock()

	if replaced && previous != conn {
		slog.Info("Presence replaced", "user_id", identity, "previous_conn", previous.ID(), "conn", conn.ID())
		return nil
	}
	slog.Info("Presence registered", "user_id", identity, "conn", conn.ID())
	return nil
}

// Unregister removes identity if it is still mapped to conn. A nil conn removes
// the entry unconditionally. It reports whether an entry was removed.
func (r *Registry) Unregister(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.active[identity]
	if !ok {
		return false
	}
	if conn != nil && current != conn {
		return false
	}
	delete(r.active, identity)
	slog.Info("Presence unregistered", "user_id", identity)
	return true
}

// Resolve returns the connection registered for identity.
func (r *Registry) Resolve(identity string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.active[identity]
	return conn, ok
}

// Owns reports whether conn is the live connection for identity.
func (r *Registry) Owns(identity string, conn Conn) bool {
	current, ok := r.Resolve(identity)
	return ok && current == conn
}

// Others returns a snapshot of every registered identity except exclude.
func (r *Registry) Others(exclude string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.active))
	for id := range r.active {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
