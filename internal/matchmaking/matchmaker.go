package matchmaking

import (
	"log/slog"
	"math/rand/v2"

	"github.com/ashureev/pairline/internal/domain"
)

// Directory lists identities that are currently reachable.
type Directory interface {
	Others(exclude string) []string
}

// Matchmaker picks a random online partner for a requester. Any present identity
// is a candidate; the waiting list is bookkeeping only.
type Matchmaker struct {
	presence Directory
	waiting  *WaitingList
	pick     func(n int) int
}

// New creates a matchmaker over the given directory and waiting list.
func New(presence Directory, waiting *WaitingList) *Matchmaker {
	return &Matchmaker{presence: presence, waiting: waiting, pick: rand.IntN}
}

// RequestMatch returns a partner for requester, or domain.ErrNoMatchAvailable
// after adding requester to the waiting list.
func (m *Matchmaker) RequestMatch(requester string) (string, error) {
	if requester == "" {
		return "", domain.ErrMissingIdentity
	}

	candidates := m.presence.Others(requester)
	if len(candidates) == 0 {
		if m.waiting.Add(requester) {
			slog.Info("User added to waiting list", "user_id", requester)
		}
		return "", domain.ErrNoMatchAvailable
	}

	matched := candidates[m.pick(len(candidates))]
	m.waiting.RemoveAll(requester, matched)
	slog.Info("Users matched", "user_id", requester, "matched_user_id", matched)
	return matched, nil
}

// LeaveWaiting removes identity from the waiting list. Absent identities are ignored.
func (m *Matchmaker) LeaveWaiting(identity string) {
	if m.waiting.Remove(identity) {
		slog.Info("User left waiting list", "user_id", identity)
	}
}

// Waiting returns the current waiting identities.
func (m *Matchmaker) Waiting() []string {
	return m.waiting.Snapshot()
}
