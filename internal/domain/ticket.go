package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "open"
	TicketStatusAssigned     TicketStatus = "assigned"
	TicketStatusInProgress   TicketStatus = "in_progress"
	TicketStatusWaitingUser  TicketStatus = "waiting_user"
	TicketStatusWaitingAdmin TicketStatus = "waiting_admin"
	TicketStatusResolved     TicketStatus = "resolved"
	TicketStatusClosed       TicketStatus = "closed"
)

// IsActive reports whether the status still demands technician attention.
// Resolved tickets are not active but keep counting toward workload until
// closure; see workload.Tracker.
func (s TicketStatus) IsActive() bool {
	switch s {
	case TicketStatusOpen, TicketStatusAssigned, TicketStatusInProgress,
		TicketStatusWaitingUser, TicketStatusWaitingAdmin:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is expected.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for helpdesk requests.
type Ticket struct {
	ID               string
	TicketNumber     string
	OwnerID          string
	ApplicationID    string
	CategoryID       string
	TechnicianID     *string
	Title            string
	Description      string
	Status           TicketStatus
	Priority         TicketPriority
	DueDate          time.Time
	FirstResponseAt  *time.Time
	ResolvedAt       *time.Time
	ClosedAt         *time.Time
	IsEscalated      bool
	EscalationReason string
	UserRating       *int
	UserFeedback     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Assigned reports whether the ticket currently has a technician.
func (t *Ticket) Assigned() bool {
	return t.TechnicianID != nil && *t.TechnicianID != ""
}
