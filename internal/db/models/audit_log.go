// Package models - audit_log.go defines the AuditLog model for recording
// consumer lifecycle transitions and other security-relevant events, capturing
// actor, action, affected resource, stage change, client IP, and free-text reason.
package models

import "time"

// AuditLog represents an immutable audit log entry. Lifecycle transition
// entries carry OldStage/NewStage; other actions leave them nil.
type AuditLog struct {
	ID           string
	ActorID      *int64 // Nullable for system actions (e.g. lazy expiry)
	Action       string // "consumer.propose", "consumer.approve", "token.revoke", ...
	ResourceType *string
	ResourceID   *string
	OldStage     *string
	NewStage     *string
	Reason       string
	Metadata     map[string]interface{} // JSONB: additional context
	IPAddress    *string
	CreatedAt    time.Time
}
