// Package auth - actor.go defines the Actor identity threaded explicitly
// through every core entry point. There is no ambient "current user": handlers
// build an Actor from the verified session and pass it down, so the core stays
// testable and capability checks are visible at every call site.
package auth

// Actor is the authenticated identity performing an operation.
type Actor struct {
	CentralID int64
	Username  string
	Email     string
	// Scopes are the capability scopes granted to this actor.
	Scopes []string
}

// CanManage reports whether the actor may perform moderation transitions.
func (a *Actor) CanManage() bool {
	return HasScope(a.Scopes, ScopeConsumersManage)
}

// CanViewSuppressed reports whether the actor may see suppressed consumers.
func (a *Actor) CanViewSuppressed() bool {
	return HasScope(a.Scopes, ScopeSuppressedView)
}

// CanSuppress reports whether the actor may set the suppression flag.
func (a *Actor) CanSuppress() bool {
	return HasScope(a.Scopes, ScopeSuppress)
}

// IsAdmin reports whether the actor holds the wildcard scope.
func (a *Actor) IsAdmin() bool {
	return HasScope(a.Scopes, ScopeAdmin)
}

// Owns reports whether the actor is the owner of the given central account id.
func (a *Actor) Owns(ownerID int64) bool {
	return a.CentralID == ownerID
}
