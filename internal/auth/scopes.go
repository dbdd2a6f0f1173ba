// Package auth - scopes.go defines the capability scopes the registry checks
// and provides HasScope, HasAnyScope, and HasAllScopes helpers. The core never
// consults the host application's full permission framework; these scopes are
// the entire capability surface it needs.
package auth

import "fmt"

// Scope represents a capability/scope type.
type Scope string

const (
	// ScopeConsumersManage allows approving, rejecting, disabling, and
	// re-enabling consumer registrations, and viewing any consumer's
	// restricted fields.
	ScopeConsumersManage Scope = "consumers:manage"

	// ScopeSuppressedView allows seeing consumers whose suppression flag
	// hides them from everyone else, including their owners' listings.
	ScopeSuppressedView Scope = "consumers:suppressed-view"

	// ScopeSuppress allows setting the suppression flag on reject/disable.
	ScopeSuppress Scope = "consumers:suppress"

	// ScopeAuditRead allows reading the transition audit trail.
	ScopeAuditRead Scope = "audit:read"

	// ScopeAdmin is the wildcard scope implying all others. It also lifts
	// the rule that a manager may not review their own proposal.
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes.
func AllScopes() []Scope {
	return []Scope{
		ScopeConsumersManage,
		ScopeSuppressedView,
		ScopeSuppress,
		ScopeAuditRead,
		ScopeAdmin,
	}
}

// ValidateScopes checks that every name is a known scope.
func ValidateScopes(scopes []string) error {
	valid := make(map[Scope]bool)
	for _, s := range AllScopes() {
		valid[s] = true
	}
	for _, s := range scopes {
		if !valid[Scope(s)] {
			return fmt.Errorf("invalid scope: %s", s)
		}
	}
	return nil
}

// HasScope checks if the scope list contains the target scope or admin.
func HasScope(scopes []string, target Scope) bool {
	for _, s := range scopes {
		if Scope(s) == target || Scope(s) == ScopeAdmin {
			return true
		}
	}
	return false
}

// HasAnyScope checks if the scope list contains at least one of the targets.
func HasAnyScope(scopes []string, targets ...Scope) bool {
	for _, target := range targets {
		if HasScope(scopes, target) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if the scope list contains every target.
func HasAllScopes(scopes []string, targets ...Scope) bool {
	for _, target := range targets {
		if !HasScope(scopes, target) {
			return false
		}
	}
	return true
}
