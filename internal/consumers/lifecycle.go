// Package consumers implements the consumer registration core: the lifecycle
// state machine, field-level access control, parameter unification, and the
// listing façade. See service.go for the transactional operations.
//
// lifecycle.go holds the transition table and the lazy-expiry rule. Stages move
// one-directionally except the approve/disable pair:
//
//	PROPOSED → APPROVED → DISABLED → APPROVED → ...
//	PROPOSED → REJECTED            (terminal)
//	PROPOSED → EXPIRED             (terminal, time-driven)
//
// There is no path back to PROPOSED once left, no edge out of REJECTED or
// EXPIRED, and suppression — an orthogonal visibility flag settable on reject
// and disable — can never be cleared.
package consumers

import (
	"time"

	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

// Transition names the explicit stage transitions a manager can apply.
type Transition string

const (
	TransitionApprove  Transition = "approve"
	TransitionReject   Transition = "reject"
	TransitionDisable  Transition = "disable"
	TransitionReenable Transition = "reenable"
)

// transitionRule captures the single valid source stage for a transition, the
// stage it produces, and the sentinel raised when the precondition fails.
type transitionRule struct {
	from    models.Stage
	to      models.Stage
	failure error
}

var transitionRules = map[Transition]transitionRule{
	TransitionApprove:  {from: models.StageProposed, to: models.StageApproved, failure: ErrNotProposed},
	TransitionReject:   {from: models.StageProposed, to: models.StageRejected, failure: ErrNotProposed},
	TransitionDisable:  {from: models.StageApproved, to: models.StageDisabled, failure: ErrNotApproved},
	TransitionReenable: {from: models.StageDisabled, to: models.StageApproved, failure: ErrNotDisabled},
}

// checkTransition validates the precondition for t against the consumer's
// current stage and returns the target stage. The stage passed in must already
// have expiry materialized; an expired proposal fails approve/reject with
// NotProposed like any other wrong-stage attempt.
func checkTransition(t Transition, current models.Stage) (models.Stage, error) {
	rule, ok := transitionRules[t]
	if !ok {
		return "", invalidField("transition", string(t))
	}
	if current != rule.from {
		return "", &WrongStageError{Err: rule.failure, Expected: rule.from, Actual: current}
	}
	return rule.to, nil
}

// MaterializeExpiry returns the effective stage of a consumer at the given
// instant: a proposal left untouched past the retention window reads as
// EXPIRED even while the persisted row still says PROPOSED. Every path that
// cares about stage must call this before trusting the stored value; expiry is
// computed lazily on access instead of by a background scheduler so no
// persistent schedule state exists. A window of zero disables expiry.
func MaterializeExpiry(c *models.Consumer, now time.Time, window time.Duration) models.Stage {
	if window > 0 && c.Stage == models.StageProposed && now.Sub(c.StageChanged) >= window {
		return models.StageExpired
	}
	return c.Stage
}
