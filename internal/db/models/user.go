// Package models - user.go defines the User model for registry accounts. The
// registry keeps a thin mirror of the host's central identity: a stable central
// id plus the attributes the registration workflow needs (confirmed email,
// block state, capability scopes).
package models

import "time"

// User represents an actor known to the registry.
type User struct {
	CentralID      int64 // Stable central account id; primary key
	Username       string
	Email          string
	EmailConfirmed bool
	Blocked        bool
	// Scopes are the capability scopes granted to this user
	// (see internal/auth/scopes.go).
	Scopes    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligible reports whether the user may use the registration subsystem at all.
// Blocked users and users without a confirmed email are vetoed up front.
func (u *User) Eligible() bool {
	return !u.Blocked && u.EmailConfirmed
}
