package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ApplicationID string                `json:"application_id"`
	CategoryID    string                `json:"category_id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Priority      domain.TicketPriority `json:"priority"`
}

// TransitionRequest payload for POST /tickets/:id/transition. Any combination
// of the optional fields may be present; they apply as one atomic change.
type TransitionRequest struct {
	Status           *domain.TicketStatus   `json:"status,omitempty"`
	TechnicianID     *string                `json:"technician_id,omitempty"`
	Priority         *domain.TicketPriority `json:"priority,omitempty"`
	Escalate         bool                   `json:"escalate,omitempty"`
	EscalationReason string                 `json:"escalation_reason,omitempty"`
	Comment          string                 `json:"comment,omitempty"`
}

// RatingRequest payload.
type RatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

// TicketSummary response.
type TicketSummary struct {
	ID            string                `json:"id"`
	TicketNumber  string                `json:"ticket_number"`
	ApplicationID string                `json:"application_id"`
	CategoryID    string                `json:"category_id"`
	TechnicianID  *string               `json:"technician_id"`
	Title         string                `json:"title"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	DueDate       time.Time             `json:"due_date"`
	IsEscalated   bool                  `json:"is_escalated"`
	IsOverdue     bool                  `json:"is_overdue"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID               string                `json:"id"`
	TicketNumber     string                `json:"ticket_number"`
	OwnerID          string                `json:"owner_id"`
	ApplicationID    string                `json:"application_id"`
	CategoryID       string                `json:"category_id"`
	TechnicianID     *string               `json:"technician_id"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Status           domain.TicketStatus   `json:"status"`
	Priority         domain.TicketPriority `json:"priority"`
	DueDate          time.Time             `json:"due_date"`
	FirstResponseAt  *time.Time            `json:"first_response_at"`
	ResolvedAt       *time.Time            `json:"resolved_at"`
	ClosedAt         *time.Time            `json:"closed_at"`
	IsEscalated      bool                  `json:"is_escalated"`
	EscalationReason string                `json:"escalation_reason,omitempty"`
	IsOverdue        bool                  `json:"is_overdue"`
	UserRating       *int                  `json:"user_rating"`
	UserFeedback     string                `json:"user_feedback,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// HistoryEntryResponse represents one timeline entry.
type HistoryEntryResponse struct {
	ID          string                 `json:"id"`
	Action      domain.HistoryAction   `json:"action"`
	Field       string                 `json:"field,omitempty"`
	OldValue    string                 `json:"old_value,omitempty"`
	NewValue    string                 `json:"new_value,omitempty"`
	ActorKind   domain.ActorKind       `json:"actor_kind"`
	ActorID     *string                `json:"actor_id"`
	Description string                 `json:"description"`
	Severity    domain.HistorySeverity `json:"severity"`
	CreatedAt   time.Time              `json:"created_at"`
}

// WorkloadResponse reports a technician's current queue.
type WorkloadResponse struct {
	TechnicianID string  `json:"technician_id"`
	CurrentLoad  int     `json:"current_load"`
	Capacity     int     `json:"capacity"`
	Utilization  float64 `json:"utilization_percent"`
}

// NotificationResponse represents one delivered notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	TicketID  *string                 `json:"ticket_id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Priority  domain.TicketPriority   `json:"priority"`
	SentAt    *time.Time              `json:"sent_at"`
	ReadAt    *time.Time              `json:"read_at"`
	CreatedAt time.Time               `json:"created_at"`
}
