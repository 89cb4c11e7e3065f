package domain

import "time"

// HistoryAction captures what kind of change a history entry records.
type HistoryAction string

const (
	HistoryActionCreated         HistoryAction = "created"
	HistoryActionStatusChanged   HistoryAction = "status_changed"
	HistoryActionPriorityChanged HistoryAction = "priority_changed"
	HistoryActionAssigned        HistoryAction = "assigned"
	HistoryActionEscalated       HistoryAction = "escalated"
	HistoryActionFieldChanged    HistoryAction = "field_changed"
	HistoryActionDeleted         HistoryAction = "deleted"
)

// HistorySeverity tags entries for timeline rendering and filtering.
type HistorySeverity string

const (
	HistorySeverityInfo     HistorySeverity = "info"
	HistorySeverityWarning  HistorySeverity = "warning"
	HistorySeverityCritical HistorySeverity = "critical"
)

// TicketHistory is an immutable timeline entry. Never updated or deleted
// after insert.
type TicketHistory struct {
	ID          string
	TicketID    string
	Action      HistoryAction
	Field       string
	OldValue    string
	NewValue    string
	ActorKind   ActorKind
	ActorID     *string
	Description string
	Severity    HistorySeverity
	CreatedAt   time.Time
}
