package domain

import "time"

// NotificationType enumerates delivered notification kinds.
type NotificationType string

const (
	NotificationTicketCreated    NotificationType = "ticket_created"
	NotificationTicketAssigned   NotificationType = "ticket_assigned"
	NotificationTicketUnassigned NotificationType = "ticket_unassigned"
	NotificationFirstResponse    NotificationType = "ticket_first_response"
	NotificationStatusChanged    NotificationType = "ticket_status_changed"
	NotificationTicketEscalated  NotificationType = "ticket_escalated"
	NotificationTicketResolved   NotificationType = "ticket_resolved"
	NotificationTicketClosed     NotificationType = "ticket_closed"
	NotificationTicketRated      NotificationType = "ticket_rated"
	NotificationSLABreach        NotificationType = "sla_breach"
	NotificationAssignmentFailed NotificationType = "assignment_failed"
	NotificationTicketDeleted    NotificationType = "ticket_deleted"
)

// RecipientKind is the closed set of notification addressees.
type RecipientKind string

const (
	RecipientUser       RecipientKind = "user"
	RecipientTechnician RecipientKind = "technician"
	RecipientAdmin      RecipientKind = "admin"
)

// Recipient addresses one notification target.
type Recipient struct {
	Kind RecipientKind
	ID   string
}

// Notification is a persisted in-app delivery unit, created exactly once per
// (event, recipient) pair. SentAt and ReadAt are the only mutable fields.
type Notification struct {
	ID            string
	Type          NotificationType
	RecipientKind RecipientKind
	RecipientID   string
	TicketID      *string
	ActorKind     *ActorKind
	ActorID       *string
	Title         string
	Message       string
	Priority      TicketPriority
	Payload       map[string]any
	SentAt        *time.Time
	ReadAt        *time.Time
	CreatedAt     time.Time
}
