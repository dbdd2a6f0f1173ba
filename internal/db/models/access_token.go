// Package models - access_token.go defines the AccessToken model issued to a
// (consumer, user) pair once the user authorizes the consumer.
package models

import "time"

// AccessToken represents an issued access credential for a consumer acting on
// behalf of a user. The token secret itself is returned to the caller exactly
// once at issuance; only its keyed derivation is stored, so a lost token can be
// revoked but never retrieved.
type AccessToken struct {
	ID         string
	ConsumerID string
	UserID     int64  // Central user id the token acts for
	TokenKey   string // Public token identifier
	SecretHash string // Keyed derivation of the token secret
	// Grants is the subset of the consumer's registered grants this token
	// was authorized with.
	Grants []string
	// Wiki restricts the token to one site id; "*" means any wiki the
	// consumer itself is usable on.
	Wiki      string
	IssuedAt  time.Time
	RevokedAt *time.Time
}

// Revoked reports whether the token has been revoked.
func (t *AccessToken) Revoked() bool {
	return t.RevokedAt != nil
}
