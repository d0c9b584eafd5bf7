// Package domain contains core domain types for the pairline service.
package domain

import (
	"time"
)

// Step is the mutually agreed progression level between two identities.
type Step int

const (
	// StepNone means no agreement has been recorded.
	StepNone Step = 0
	// StepRequested means one or both sides asked for a reveal but it is not mutual.
	StepRequested Step = 1
	// StepRevealed means both sides agreed to reveal photo and voice.
	StepRevealed Step = 2
	// StepDate means both sides agreed to reveal date and location. Terminal.
	StepDate Step = 3
)

// Valid reports whether s is inside the protocol range.
func (s Step) Valid() bool {
	return s >= StepNone && s <= StepDate
}

// AgreeLevel is the consent one side has granted towards the other.
type AgreeLevel int

const (
	AgreeNone   AgreeLevel = 0
	AgreeReveal AgreeLevel = 1
	AgreeDate   AgreeLevel = 2
)

// LevelFor maps a requested step to the agreement level it grants.
// Only the terminal step asks for the date level.
func LevelFor(requested Step) AgreeLevel {
	if requested == StepDate {
		return AgreeDate
	}
	return AgreeReveal
}

// DirectedConsent is one row of consent state owned by FromID about ToID.
// (A,B) and (B,A) are distinct rows; Step is kept equal on both.
type DirectedConsent struct {
	FromID            string     `json:"from_id"`
	ToID              string     `json:"to_id"`
	InteractionCount  int        `json:"interaction_count"`
	MyAgree           AgreeLevel `json:"my_agree"`
	PartnerAgree      AgreeLevel `json:"partner_agree"`
	Step              Step       `json:"step"`
	LastInteractionAt time.Time  `json:"last_interaction_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewDirectedConsent returns an empty row for the ordered pair.
func NewDirectedConsent(from, to string, now time.Time) *DirectedConsent {
	return &DirectedConsent{
		FromID:    from,
		ToID:      to,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ConsentResult is the outcome of a consent advancement.
type ConsentResult struct {
	Step        Step
	Mutual      bool
	Deleted     bool
	RoomCreated bool
}

// PairKey returns the unordered key for two identities, smaller identity first.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
