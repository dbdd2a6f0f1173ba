// view.go implements the field redaction wrapper: a read-time projection of a
// raw consumer record into exactly the fields the requesting actor may see.
// The projection is pure — it never mutates the record and can be constructed
// any number of times per request. Visibility is decided once, by tier, in a
// single exhaustive mapping function, so a newly added field has to be placed
// in a tier explicitly rather than defaulting to visible.
package consumers

import (
	"time"

	"github.com/consumer-registry/consumer-registry/internal/auth"
	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

// Hidden is the sentinel value restricted string fields carry in views below
// the required tier, so downstream rendering is uniform instead of branching
// on absence.
const Hidden = "(hidden)"

// ViewTier is the capability tier a view was projected at.
type ViewTier int

const (
	// TierPublic exposes only the always-visible fields.
	TierPublic ViewTier = iota
	// TierOwner adds the registration details the owner may see.
	TierOwner
	// TierManage adds suppression and deletion metadata. Owners never reach
	// this tier on their own consumers without the manage capability.
	TierManage
)

// ConsumerView is the capability-filtered projection of a consumer.
//
// Restricted string fields hold Hidden below the required tier; restricted
// slices and struct pointers are nil; restricted bools are nil pointers so
// "hidden" and "false" stay distinguishable.
type ConsumerView struct {
	Tier ViewTier

	// Always visible.
	ConsumerKey  string
	Name         string
	Version      string
	Stage        models.Stage
	OAuthVersion int
	RegisteredAt time.Time

	// Visible to the owner or the manage capability.
	OwnerID           int64
	Email             string
	Description       string
	CallbackURL       string
	CallbackIsPrefix  *bool
	Grants            []string
	AllowedGrantTypes []string
	Restrictions      *models.Restrictions
	SecretHash        string // derived representation only; the raw secret is never reconstructable
	RSAPublicKey      string
	Confidential      *bool
	OwnerOnly         *bool

	// Visible to the manage capability only.
	Suppressed   *bool
	Deleted      *bool
	StageChanged *time.Time
}

// tierFor computes the actor's tier for a given consumer. Ownership grants the
// owner tier; the manage capability grants the manage tier regardless of
// ownership.
func tierFor(c *models.Consumer, actor *auth.Actor) ViewTier {
	switch {
	case actor.CanManage():
		return TierManage
	case actor.Owns(c.OwnerID):
		return TierOwner
	default:
		return TierPublic
	}
}

// NewConsumerView wraps a raw consumer for the given actor. Returns nil when
// there is nothing the actor may see: the consumer does not exist, or it is
// suppressed (or deleted) and the actor lacks the view-suppressed capability.
// Callers treat a nil view exactly like a missing record.
func NewConsumerView(c *models.Consumer, actor *auth.Actor) *ConsumerView {
	if c == nil {
		return nil
	}
	if (c.Suppressed || c.Deleted) && !actor.CanViewSuppressed() && !actor.CanManage() {
		return nil
	}

	tier := tierFor(c, actor)

	v := &ConsumerView{
		Tier:         tier,
		ConsumerKey:  c.ConsumerKey,
		Name:         c.Name,
		Version:      c.Version,
		Stage:        c.Stage,
		OAuthVersion: c.OAuthVersion,
		RegisteredAt: c.RegisteredAt,
		Email:        Hidden,
		Description:  Hidden,
		CallbackURL:  Hidden,
		SecretHash:   Hidden,
		RSAPublicKey: Hidden,
	}

	if tier >= TierOwner {
		v.OwnerID = c.OwnerID
		v.Email = c.Email
		v.Description = c.Description
		v.CallbackURL = c.CallbackURL
		v.CallbackIsPrefix = boolPtr(c.CallbackIsPrefix)
		v.Grants = append([]string(nil), c.Grants...)
		v.AllowedGrantTypes = append([]string(nil), c.AllowedGrantTypes...)
		restrictions := c.Restrictions
		v.Restrictions = &restrictions
		if c.SecretHash != nil {
			v.SecretHash = *c.SecretHash
		} else {
			v.SecretHash = ""
		}
		if c.RSAPublicKey != nil {
			v.RSAPublicKey = *c.RSAPublicKey
		} else {
			v.RSAPublicKey = ""
		}
		v.Confidential = boolPtr(c.Confidential)
		v.OwnerOnly = boolPtr(c.OwnerOnly)
	}

	if tier >= TierManage {
		v.Suppressed = boolPtr(c.Suppressed)
		v.Deleted = boolPtr(c.Deleted)
		changed := c.StageChanged
		v.StageChanged = &changed
	}

	return v
}

func boolPtr(b bool) *bool {
	return &b
}
