// Package matchmaking pairs online identities and keeps the advisory waiting list.
package matchmaking

import "sync"

// WaitingList is an ordered, deduplicated set of identities waiting for a match.
type WaitingList struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

// NewWaitingList creates an empty waiting list.
func NewWaitingList() *WaitingList {
	return &WaitingList{index: make(map[string]struct{})}
}

// Add inserts identity if absent and reports whether it was inserted.
func (w *WaitingList) Add(identity string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.index[identity]; ok {
		return false
	}
	w.index[identity] = struct{}{}
	w.order = append(w.order, identity)
	return true
}

// Remove deletes identity and reports whether it was present.
func (w *WaitingList) Remove(identity string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeLocked(identity)
}

func (w *WaitingList) removeLocked(identity string) bool {
	if _, ok := w.index[identity]; !ok {
		return false
	}
	delete(w.index, identity)
	for i, id := range w.order {
		if id == identity {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAll deletes each identity in one critical section.
func (w *WaitingList) RemoveAll(identities ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range identities {
		w.removeLocked(id)
	}
}

// Contains reports whether identity is waiting.
func (w *WaitingList) Contains(identity string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.index[identity]
	return ok
}

// Snapshot returns the waiting identities in insertion order.
func (w *WaitingList) Snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}
