package model

import "time"

// Assignment is the record kept for one giver in a round.
//
// Wishlist and Address are a snapshot of the receiver taken when the round was
// generated. Editing the receiver afterwards does not change them.
type Assignment struct {
	Giver      string     `json:"giver"`
	Receiver   string     `json:"receiver"`
	Wishlist   string     `json:"wishlist"`
	Address    string     `json:"address"`
	Code       string     `json:"code"`
	Revealed   bool       `json:"revealed"`
	RevealedAt *time.Time `json:"revealedAt,omitempty"`
}

// RoundState is a full snapshot of the current round. It is what storage and
// replication collaborators serialise, and what the ledger is rehydrated from.
//
// An empty RoundID means no round has been generated.
type RoundState struct {
	RoundID     string       `json:"roundId"`
	GeneratedAt time.Time    `json:"generatedAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Assignments []Assignment `json:"assignments"`
}

// Empty reports whether the state holds no round.
func (s RoundState) Empty() bool {
	return s.RoundID == ""
}

// Clone returns a deep copy so callers can never alias ledger internals.
func (s RoundState) Clone() RoundState {
	out := s
	out.Assignments = make([]Assignment, len(s.Assignments))
	for i, a := range s.Assignments {
		if a.RevealedAt != nil {
			at := *a.RevealedAt
			a.RevealedAt = &at
		}
		out.Assignments[i] = a
	}
	return out
}

// Pair is one line of the code distribution list.
type Pair struct {
	Giver    string `json:"giver"`
	Receiver string `json:"receiver"`
	Code     string `json:"code"`
}

// RoundSummary is returned by round generation. It carries every giver's code
// so an organiser can hand the codes out; it must never reach participants.
type RoundSummary struct {
	RoundID     string    `json:"roundId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Pairs       []Pair    `json:"pairs"`
}

// RevealResult is what a giver sees after a successful reveal.
type RevealResult struct {
	Receiver string `json:"receiver"`
	Wishlist string `json:"wishlist"`
	Address  string `json:"address"`
}

// GiverStatus is the admin-facing view of one giver: no receiver, no code.
type GiverStatus struct {
	Giver      string     `json:"giver"`
	Revealed   bool       `json:"revealed"`
	RevealedAt *time.Time `json:"revealedAt,omitempty"`
}

// RoundStatus summarises reveal progress for the organiser.
type RoundStatus struct {
	RoundID     string        `json:"roundId"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Total       int           `json:"total"`
	Revealed    int           `json:"revealed"`
	Givers      []GiverStatus `json:"givers"`
}
