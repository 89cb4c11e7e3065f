// Package history appends immutable timeline entries for lifecycle events.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Recorder writes one entry per field-level change plus one per status
// transition. Entries are never updated or deleted.
type Recorder struct {
	store repository.TicketHistoryRepository
}

// NewRecorder constructs the recorder.
func NewRecorder(store repository.TicketHistoryRepository) *Recorder {
	return &Recorder{store: store}
}

// Consume translates one lifecycle event into history entries.
func (r *Recorder) Consume(ctx context.Context, ticket domain.Ticket, event events.Event) error {
	for _, entry := range entriesFor(ticket, event) {
		entry := entry
		if err := r.store.Create(ctx, &entry); err != nil {
			return err
		}
	}
	return nil
}

func entriesFor(ticket domain.Ticket, event events.Event) []domain.TicketHistory {
	base := domain.TicketHistory{
		TicketID:  ticket.ID,
		ActorKind: event.Actor.Kind,
		ActorID:   actorID(event.Actor),
		Severity:  severityFor(event.Severity),
	}

	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		entry := base
		entry.Action = domain.HistoryActionCreated
		entry.Description = fmt.Sprintf("ticket %s created with priority %s", payload.TicketNumber, payload.Priority)
		return []domain.TicketHistory{entry}

	case events.StatusChangedPayload:
		entry := base
		entry.Action = domain.HistoryActionStatusChanged
		entry.Field = "status"
		entry.OldValue = string(payload.OldStatus)
		entry.NewValue = string(payload.NewStatus)
		entry.Description = payload.Comment
		return []domain.TicketHistory{entry}

	case events.TicketAssignedPayload:
		entry := base
		entry.Action = domain.HistoryActionAssigned
		entry.Field = "technician_id"
		if payload.PreviousTechnicianID != nil {
			entry.OldValue = *payload.PreviousTechnicianID
		}
		entry.NewValue = payload.TechnicianID
		return []domain.TicketHistory{entry}

	case events.TicketUnassignedPayload:
		entry := base
		entry.Action = domain.HistoryActionAssigned
		entry.Field = "technician_id"
		entry.OldValue = payload.TechnicianID
		entry.Description = "technician unassigned"
		return []domain.TicketHistory{entry}

	case events.PriorityChangedPayload:
		entry := base
		entry.Action = domain.HistoryActionPriorityChanged
		entry.Field = "priority"
		entry.OldValue = string(payload.OldPriority)
		entry.NewValue = string(payload.NewPriority)
		out := []domain.TicketHistory{entry}
		if payload.NewDueDate != nil {
			due := base
			due.Action = domain.HistoryActionFieldChanged
			due.Field = "due_date"
			due.NewValue = payload.NewDueDate.Format(time.RFC3339)
			due.Description = "due date recomputed from new priority"
			out = append(out, due)
		}
		return out

	case events.FirstResponsePayload:
		entry := base
		entry.Action = domain.HistoryActionFieldChanged
		entry.Field = "first_response_at"
		entry.NewValue = payload.FirstResponseAt.Format(time.RFC3339)
		return []domain.TicketHistory{entry}

	case events.EscalatedPayload:
		entry := base
		entry.Action = domain.HistoryActionEscalated
		entry.Field = "is_escalated"
		entry.OldValue = "false"
		entry.NewValue = "true"
		entry.Description = payload.Reason
		return []domain.TicketHistory{entry}

	case events.ResolvedPayload:
		entry := base
		entry.Action = domain.HistoryActionStatusChanged
		entry.Field = "status"
		entry.OldValue = string(payload.OldStatus)
		entry.NewValue = string(domain.TicketStatusResolved)
		entry.Description = fmt.Sprintf("resolved after %s", payload.ResolutionDuration)
		return []domain.TicketHistory{entry}

	case events.SLABreachPayload:
		entry := base
		entry.Action = domain.HistoryActionFieldChanged
		entry.Field = "sla"
		entry.Description = fmt.Sprintf("resolution exceeded due date by %s", payload.OverdueBy)
		return []domain.TicketHistory{entry}

	case events.ClosedPayload:
		entry := base
		entry.Action = domain.HistoryActionStatusChanged
		entry.Field = "status"
		entry.OldValue = string(payload.OldStatus)
		entry.NewValue = string(domain.TicketStatusClosed)
		return []domain.TicketHistory{entry}

	case events.RatedPayload:
		entry := base
		entry.Action = domain.HistoryActionFieldChanged
		entry.Field = "user_rating"
		entry.NewValue = fmt.Sprintf("%d", payload.Rating)
		entry.Description = payload.Feedback
		return []domain.TicketHistory{entry}

	case events.AssignmentFailedPayload:
		entry := base
		entry.Action = domain.HistoryActionAssigned
		entry.Description = fmt.Sprintf("auto-assignment (%s) failed: %s", payload.Algorithm, payload.Reason)
		return []domain.TicketHistory{entry}

	case events.TicketDeletedPayload:
		entry := base
		entry.Action = domain.HistoryActionDeleted
		entry.Description = fmt.Sprintf("ticket %s deleted in status %s", payload.TicketNumber, payload.LastStatus)
		return []domain.TicketHistory{entry}
	}
	return nil
}

func severityFor(severity events.Severity) domain.HistorySeverity {
	switch severity {
	case events.SeverityCritical:
		return domain.HistorySeverityCritical
	case events.SeverityWarning:
		return domain.HistorySeverityWarning
	default:
		return domain.HistorySeverityInfo
	}
}

func actorID(actor domain.Actor) *string {
	if actor.ID == "" {
		return nil
	}
	id := actor.ID
	return &id
}
