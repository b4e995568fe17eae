// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Go favours composition over inheritance.
package model

import "time"

// Participant is one person taking part in the exchange.
//
// Name is the identity: unique, case-sensitive, never empty after trimming.
// Wishlist and Address are free text that the assignment engine copies but
// never interprets.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Wishlist  string    `json:"wishlist"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Names returns the participant names in input order.
func Names(participants []Participant) []string {
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = p.Name
	}
	return names
}
