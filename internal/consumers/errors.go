// errors.go defines the typed error taxonomy the registry core returns.
// The core never renders user-facing text or logs; it hands these typed values
// plus structured context (field name, expected stage) to the HTTP boundary,
// which maps them to status codes and localized messages.
package consumers

import (
	"errors"
	"fmt"

	"github.com/consumer-registry/consumer-registry/internal/db/models"
)

var (
	// ErrAlreadyExists is returned when a propose would violate the
	// (name, version, owner) uniqueness invariant.
	ErrAlreadyExists = errors.New("consumer already exists")

	// ErrNoSuchConsumer is returned on lookup misses, and when the record
	// exists but is suppressed beyond the actor's visibility (existence is
	// not leaked).
	ErrNoSuchConsumer = errors.New("no such consumer")

	// ErrNoSuchAccessToken is returned on access token lookup misses.
	ErrNoSuchAccessToken = errors.New("no such access token")

	// ErrInsufficientRights is returned on capability check failures. It
	// deliberately carries no detail about which check failed.
	ErrInsufficientRights = errors.New("insufficient rights")

	// ErrInvalidUser is returned when the actor is vetoed from using the
	// registration subsystem entirely (blocked, unconfirmed email).
	ErrInvalidUser = errors.New("user may not use the consumer registration subsystem")

	// ErrNoSuchUser is returned when a username cannot be resolved to a
	// central account.
	ErrNoSuchUser = errors.New("no such user")

	// Stage precondition sentinels. Each transition has exactly one required
	// source stage; a mismatch surfaces the corresponding sentinel wrapped in
	// a WrongStageError carrying the actual stage.
	ErrNotAccepted = errors.New("consumer is no longer awaiting approval") // update requires PROPOSED
	ErrNotProposed = errors.New("consumer is not in the proposed stage")
	ErrNotApproved = errors.New("consumer is not in the approved stage")
	ErrNotDisabled = errors.New("consumer is not in the disabled stage")
)

// MissingFieldError reports a required field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// InvalidFieldError reports a field that was present but malformed.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

// WrongStageError reports a transition attempted against a consumer whose
// current stage does not satisfy the precondition. It wraps one of the stage
// sentinels so callers can match with errors.Is while still seeing both stages.
type WrongStageError struct {
	Err      error // one of ErrNotAccepted/ErrNotProposed/ErrNotApproved/ErrNotDisabled
	Expected models.Stage
	Actual   models.Stage
}

func (e *WrongStageError) Error() string {
	return fmt.Sprintf("%v (expected %s, got %s)", e.Err, e.Expected, e.Actual)
}

func (e *WrongStageError) Unwrap() error {
	return e.Err
}

func missingField(field string) error {
	return &MissingFieldError{Field: field}
}

func invalidField(field, reason string) error {
	return &InvalidFieldError{Field: field, Reason: reason}
}
