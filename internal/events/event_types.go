package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates lifecycle event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketAssigned   EventType = "ticket_assigned"
	EventTicketUnassigned EventType = "ticket_unassigned"
	EventFirstResponse    EventType = "first_response"
	EventStatusChanged    EventType = "status_changed"
	EventPriorityChanged  EventType = "priority_changed"
	EventTicketEscalated  EventType = "ticket_escalated"
	EventTicketResolved   EventType = "ticket_resolved"
	EventSLABreach        EventType = "sla_breach"
	EventTicketClosed     EventType = "closed"
	EventTicketRated      EventType = "ticket_rated"
	EventAssignmentFailed EventType = "assignment_failed"
	EventTicketDeleted    EventType = "ticket_deleted"
)

// Severity tags events for history recording and notification priority.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one immutable semantic change produced by a ticket transition.
// Events carry data only; consumers perform the side effects.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Severity  Severity     `json:"severity"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber  string                `json:"ticket_number"`
	ApplicationID string                `json:"application_id"`
	CategoryID    string                `json:"category_id"`
	Priority      domain.TicketPriority `json:"priority"`
	Title         string                `json:"title"`
	DueDate       time.Time             `json:"due_date"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TechnicianID         string  `json:"technician_id"`
	PreviousTechnicianID *string `json:"previous_technician_id,omitempty"`
}

// TicketUnassignedPayload payload.
type TicketUnassignedPayload struct {
	TechnicianID string `json:"technician_id"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// PriorityChangedPayload payload.
type PriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	NewDueDate  *time.Time            `json:"new_due_date,omitempty"`
}

// FirstResponsePayload payload.
type FirstResponsePayload struct {
	FirstResponseAt time.Time `json:"first_response_at"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	Reason string `json:"reason"`
}

// ResolvedPayload payload.
type ResolvedPayload struct {
	OldStatus          domain.TicketStatus `json:"old_status"`
	ResolvedAt         time.Time           `json:"resolved_at"`
	ResolutionDuration time.Duration       `json:"resolution_duration"`
	SLABreached        bool                `json:"sla_breached"`
}

// SLABreachPayload payload.
type SLABreachPayload struct {
	DueDate    time.Time     `json:"due_date"`
	ResolvedAt time.Time     `json:"resolved_at"`
	OverdueBy  time.Duration `json:"overdue_by"`
}

// ClosedPayload payload.
type ClosedPayload struct {
	OldStatus    domain.TicketStatus `json:"old_status"`
	ClosedAt     time.Time           `json:"closed_at"`
	TechnicianID *string             `json:"technician_id,omitempty"`
}

// RatedPayload payload.
type RatedPayload struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

// AssignmentFailedPayload payload.
type AssignmentFailedPayload struct {
	Algorithm string `json:"algorithm"`
	Reason    string `json:"reason"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber string              `json:"ticket_number"`
	LastStatus   domain.TicketStatus `json:"last_status"`
}
