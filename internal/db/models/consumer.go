// Package models defines the database model types for the consumer registry.
// Each type corresponds to a database table; JSONB columns (grants, restrictions)
// are marshalled at the repository boundary so the models stay plain data.
// Models are pure data types — business logic belongs in the consumers service,
// query logic belongs in the repositories layer.
package models

import "time"

// Stage represents a consumer's position in the registration lifecycle.
type Stage string

const (
	StageProposed Stage = "proposed"
	StageRejected Stage = "rejected"
	StageExpired  Stage = "expired"
	StageApproved Stage = "approved"
	StageDisabled Stage = "disabled"
)

// OAuth protocol versions a consumer can register for.
const (
	OAuthVersion1 = 1
	OAuthVersion2 = 2
)

// Consumer represents a registered third-party application.
//
// Credential modes are mutually exclusive: SecretHash is set for shared-secret
// consumers, RSAPublicKey for asymmetric ones — never both, never neither.
type Consumer struct {
	ID          string
	ConsumerKey string // Public identifier; immutable once created
	Name        string
	Version     string
	OwnerID     int64 // Central user id of the registrant
	Description string
	Email       string

	SecretHash   *string // Keyed one-way derivation of the shared secret; never the plaintext
	RSAPublicKey *string // PEM-encoded, for consumers using asymmetric credentials

	CallbackURL      string
	CallbackIsPrefix bool

	// Grants the consumer may request; access tokens carry a subset.
	Grants []string
	// AllowedGrantTypes only applies to OAuth 2 consumers
	// (e.g. "authorization_code", "refresh_token", "client_credentials").
	AllowedGrantTypes []string

	// Restrictions holds usage restrictions such as an IP/CIDR allowlist
	// and a wiki allowlist.
	Restrictions Restrictions

	Stage        Stage
	StageChanged time.Time
	Suppressed   bool // Hides the record from non-privileged views; orthogonal to Stage
	Deleted      bool

	OAuthVersion int
	Confidential bool // OAuth 2 only: client can hold its secret
	OwnerOnly    bool // Acts only for its own registrant; skips end-user authorization

	RegisteredAt time.Time
}

// Restrictions describes where a consumer may be used from and against.
type Restrictions struct {
	// IPRanges is a list of IP addresses or CIDR ranges API calls must
	// originate from. Empty means unrestricted.
	IPRanges []string `json:"ip_ranges,omitempty"`
	// Wikis lists site ids the consumer is valid on; "*" means all.
	Wikis []string `json:"wikis,omitempty"`
}

// UsableOn reports whether the restrictions permit use on the given wiki.
func (r Restrictions) UsableOn(wiki string) bool {
	if len(r.Wikis) == 0 {
		return true
	}
	for _, w := range r.Wikis {
		if w == "*" || w == wiki {
			return true
		}
	}
	return false
}

// IsUsable reports whether the consumer can currently authorize requests.
func (c *Consumer) IsUsable() bool {
	return c.Stage == StageApproved && !c.Deleted
}
