// Package audit writes compliance-grade log entries for a subset of
// lifecycle events. Duplicate suppression uses an idempotency key enforced
// by a unique index, not a time-window query.
package audit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Writer records creation, deletion, escalation and rating events.
type Writer struct {
	store  repository.AuditLogRepository
	logger *zap.Logger
}

// NewWriter constructs the writer.
func NewWriter(store repository.AuditLogRepository, logger *zap.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Consume writes one audit entry when the event is audit-relevant. A
// duplicate idempotency key means the same operation was replayed; the write
// is dropped silently.
func (w *Writer) Consume(ctx context.Context, ticket domain.Ticket, event events.Event) error {
	action, ok := actionFor(event.Type)
	if !ok {
		return nil
	}

	entry := &domain.AuditLog{
		EntityType: "ticket",
		EntityID:   ticket.ID,
		Action:     action,
		ActorKind:  event.Actor.Kind,
		ActorID:    actorID(event.Actor),
		Detail: map[string]any{
			"ticket_number": ticket.TicketNumber,
			"event_type":    string(event.Type),
			"payload":       event.Payload,
		},
		// The event id is the attempt nonce: replaying the same event can
		// never double-write, while a genuinely new operation always can.
		IdempotencyKey: fmt.Sprintf("ticket:%s:%s:%s", ticket.ID, action, event.ID),
	}

	if err := w.store.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateAuditEntry) {
			w.logger.Debug("audit entry already recorded",
				zap.String("idempotency_key", entry.IdempotencyKey))
			return nil
		}
		return err
	}
	return nil
}

func actionFor(eventType events.EventType) (domain.AuditAction, bool) {
	switch eventType {
	case events.EventTicketCreated:
		return domain.AuditActionCreated, true
	case events.EventTicketDeleted:
		return domain.AuditActionDeleted, true
	case events.EventTicketEscalated:
		return domain.AuditActionEscalated, true
	case events.EventTicketRated:
		return domain.AuditActionRated, true
	}
	return "", false
}

func actorID(actor domain.Actor) *string {
	if actor.ID == "" {
		return nil
	}
	id := actor.ID
	return &id
}
