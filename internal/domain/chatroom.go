package domain

import "time"

// ChatRoom is created once per unordered pair that reached StepDate.
// UserA is always the lexicographically smaller identity.
type ChatRoom struct {
	ID        string    `json:"id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}
