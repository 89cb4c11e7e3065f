package domain

import "time"

// AuditAction enumerates compliance-grade actions.
type AuditAction string

const (
	AuditActionCreated   AuditAction = "created"
	AuditActionDeleted   AuditAction = "deleted"
	AuditActionEscalated AuditAction = "escalated"
	AuditActionRated     AuditAction = "rated"
)

// AuditLog is a compliance trace entry. IdempotencyKey is unique at the
// storage layer; a duplicate insert means the same logical operation was
// replayed and must be dropped, not retried.
type AuditLog struct {
	ID             string
	EntityType     string
	EntityID       string
	Action         AuditAction
	ActorKind      ActorKind
	ActorID        *string
	Detail         map[string]any
	IdempotencyKey string
	CreatedAt      time.Time
}
