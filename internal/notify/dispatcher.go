// Package notify turns lifecycle events into persisted in-app notifications,
// exactly one per (event, recipient) pair.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Dispatcher resolves recipients and writes notifications.
type Dispatcher struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	logger        *zap.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(notifications repository.NotificationRepository, users repository.UserRepository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		logger:        logger,
	}
}

// Consume fans one event out to its recipient set. Each (event, recipient)
// pair yields exactly one notification; the dispatcher never merges events
// and never deduplicates across separate calls.
func (d *Dispatcher) Consume(ctx context.Context, ticket domain.Ticket, event events.Event) error {
	recipients, err := d.resolveRecipients(ctx, ticket, event)
	if err != nil {
		return err
	}

	title, message := render(ticket, event)
	now := event.Timestamp
	ticketID := ticket.ID

	for _, recipient := range recipients {
		notification := &domain.Notification{
			Type:          notificationType(event.Type),
			RecipientKind: recipient.Kind,
			RecipientID:   recipient.ID,
			Title:         title,
			Message:       message,
			Priority:      priorityFor(event.Type),
			Payload:       payloadMap(event),
			SentAt:        &now,
		}
		if ticketID != "" {
			notification.TicketID = &ticketID
		}
		if event.Actor.Kind != "" && event.Actor.Kind != domain.ActorKindSystem {
			kind := event.Actor.Kind
			id := event.Actor.ID
			notification.ActorKind = &kind
			notification.ActorID = &id
		}
		if err := d.notifications.Create(ctx, notification); err != nil {
			return fmt.Errorf("create notification for %s/%s: %w", recipient.Kind, recipient.ID, err)
		}
	}
	d.logger.Debug("notifications dispatched",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", ticket.ID),
		zap.Int("recipients", len(recipients)))
	return nil
}

// resolveRecipients applies the recipient rules: the owner always, the
// assigned technician for assignment/status/escalation events, and the admin
// roster for system-wide events.
func (d *Dispatcher) resolveRecipients(ctx context.Context, ticket domain.Ticket, event events.Event) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	seen := map[domain.Recipient]struct{}{}
	add := func(r domain.Recipient) {
		if r.ID == "" {
			return
		}
		if _, dup := seen[r]; dup {
			return
		}
		seen[r] = struct{}{}
		recipients = append(recipients, r)
	}

	add(domain.Recipient{Kind: domain.RecipientUser, ID: ticket.OwnerID})

	if concernsTechnician(event.Type) && ticket.TechnicianID != nil {
		add(domain.Recipient{Kind: domain.RecipientTechnician, ID: *ticket.TechnicianID})
	}
	if unassigned, ok := event.Payload.(events.TicketUnassignedPayload); ok {
		add(domain.Recipient{Kind: domain.RecipientTechnician, ID: unassigned.TechnicianID})
	}

	if concernsAdmins(event.Type) {
		admins, err := d.users.ListActiveAdmins(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve admin roster: %w", err)
		}
		for _, admin := range admins {
			add(domain.Recipient{Kind: domain.RecipientAdmin, ID: admin.ID})
		}
	}
	return recipients, nil
}

func concernsTechnician(eventType events.EventType) bool {
	switch eventType {
	case events.EventTicketAssigned, events.EventStatusChanged, events.EventFirstResponse,
		events.EventTicketEscalated, events.EventTicketResolved, events.EventTicketClosed,
		events.EventTicketRated:
		return true
	}
	return false
}

func concernsAdmins(eventType events.EventType) bool {
	switch eventType {
	case events.EventTicketCreated, events.EventTicketEscalated, events.EventSLABreach,
		events.EventTicketClosed, events.EventAssignmentFailed, events.EventTicketDeleted:
		return true
	}
	return false
}

// priorityFor derives the notification priority from the event, never from
// the ticket: a breach is urgent even on a low-priority ticket.
func priorityFor(eventType events.EventType) domain.TicketPriority {
	switch eventType {
	case events.EventSLABreach, events.EventTicketEscalated:
		return domain.TicketPriorityUrgent
	case events.EventAssignmentFailed, events.EventTicketDeleted:
		return domain.TicketPriorityHigh
	case events.EventStatusChanged, events.EventFirstResponse, events.EventPriorityChanged:
		return domain.TicketPriorityLow
	default:
		return domain.TicketPriorityMedium
	}
}

func notificationType(eventType events.EventType) domain.NotificationType {
	switch eventType {
	case events.EventTicketCreated:
		return domain.NotificationTicketCreated
	case events.EventTicketAssigned:
		return domain.NotificationTicketAssigned
	case events.EventTicketUnassigned:
		return domain.NotificationTicketUnassigned
	case events.EventFirstResponse:
		return domain.NotificationFirstResponse
	case events.EventStatusChanged:
		return domain.NotificationStatusChanged
	case events.EventTicketEscalated:
		return domain.NotificationTicketEscalated
	case events.EventTicketResolved:
		return domain.NotificationTicketResolved
	case events.EventTicketClosed:
		return domain.NotificationTicketClosed
	case events.EventTicketRated:
		return domain.NotificationTicketRated
	case events.EventSLABreach:
		return domain.NotificationSLABreach
	case events.EventAssignmentFailed:
		return domain.NotificationAssignmentFailed
	case events.EventTicketDeleted:
		return domain.NotificationTicketDeleted
	default:
		return domain.NotificationStatusChanged
	}
}

func render(ticket domain.Ticket, event events.Event) (string, string) {
	number := ticket.TicketNumber
	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		return fmt.Sprintf("Ticket %s created", number),
			fmt.Sprintf("%q was filed with priority %s, due %s.", payload.Title, payload.Priority, payload.DueDate.Format(time.RFC1123))
	case events.TicketAssignedPayload:
		return fmt.Sprintf("Ticket %s assigned", number),
			fmt.Sprintf("Ticket %s is now handled by technician %s.", number, payload.TechnicianID)
	case events.TicketUnassignedPayload:
		return fmt.Sprintf("Ticket %s reassigned", number),
			fmt.Sprintf("You are no longer assigned to ticket %s.", number)
	case events.FirstResponsePayload:
		return fmt.Sprintf("Ticket %s picked up", number),
			fmt.Sprintf("Work on ticket %s started at %s.", number, payload.FirstResponseAt.Format(time.RFC1123))
	case events.StatusChangedPayload:
		return fmt.Sprintf("Ticket %s status changed", number),
			fmt.Sprintf("Status moved from %s to %s.", payload.OldStatus, payload.NewStatus)
	case events.PriorityChangedPayload:
		return fmt.Sprintf("Ticket %s priority changed", number),
			fmt.Sprintf("Priority moved from %s to %s.", payload.OldPriority, payload.NewPriority)
	case events.EscalatedPayload:
		return fmt.Sprintf("Ticket %s escalated", number),
			fmt.Sprintf("Ticket %s was escalated: %s", number, payload.Reason)
	case events.ResolvedPayload:
		return fmt.Sprintf("Ticket %s resolved", number),
			fmt.Sprintf("Ticket %s was resolved after %s.", number, payload.ResolutionDuration)
	case events.SLABreachPayload:
		return fmt.Sprintf("SLA breached on ticket %s", number),
			fmt.Sprintf("Ticket %s missed its due date by %s.", number, payload.OverdueBy)
	case events.ClosedPayload:
		return fmt.Sprintf("Ticket %s closed", number),
			fmt.Sprintf("Ticket %s was closed at %s.", number, payload.ClosedAt.Format(time.RFC1123))
	case events.RatedPayload:
		return fmt.Sprintf("Ticket %s rated", number),
			fmt.Sprintf("The requester rated ticket %s %d/5.", number, payload.Rating)
	case events.AssignmentFailedPayload:
		return fmt.Sprintf("No technician available for ticket %s", number),
			fmt.Sprintf("Auto-assignment (%s) found no technician with capacity: %s", payload.Algorithm, payload.Reason)
	case events.TicketDeletedPayload:
		return fmt.Sprintf("Ticket %s deleted", payload.TicketNumber),
			fmt.Sprintf("Ticket %s was deleted (last status %s).", payload.TicketNumber, payload.LastStatus)
	default:
		return fmt.Sprintf("Ticket %s updated", number), fmt.Sprintf("Ticket %s changed.", number)
	}
}

func payloadMap(event events.Event) map[string]any {
	return map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"payload":    event.Payload,
	}
}
