// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an organiser who signed in with GitHub.
//
// Only logins listed in the admin allowlist are ever stored. The GitHub ID is
// the stable external key; ID is our own xid so primary keys don't depend on a
// third party's numbering.
type User struct {
	ID        string    `json:"id"        db:"id"`
	GitHubID  int64     `json:"githubId"  db:"github_id"`
	Login     string    `json:"login"     db:"login"`
	Email     string    `json:"email"     db:"email"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
