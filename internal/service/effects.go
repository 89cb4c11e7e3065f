package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/history"
	"github.com/spec-kit/helpdesk-service/internal/notify"
)

// EffectRunner applies the side effects for a transition's event list.
// Consumers run synchronously in fixed order (history, notification, audit)
// per event; a consumer failure is logged and never blocks the others or
// rolls back the ticket mutation. Extra observers (metrics, log sinks)
// attach through the events dispatcher.
type EffectRunner struct {
	history    *history.Recorder
	notify     *notify.Dispatcher
	audit      *audit.Writer
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewEffectRunner constructs the runner. dispatcher may be nil.
func NewEffectRunner(recorder *history.Recorder, dispatcher *notify.Dispatcher, writer *audit.Writer, observers events.Dispatcher, logger *zap.Logger) *EffectRunner {
	return &EffectRunner{
		history:    recorder,
		notify:     dispatcher,
		audit:      writer,
		dispatcher: observers,
		logger:     logger,
	}
}

// Run processes events in the order the state machine produced them.
func (r *EffectRunner) Run(ctx context.Context, ticket domain.Ticket, evts []events.Event) {
	for _, event := range evts {
		if err := r.history.Consume(ctx, ticket, event); err != nil {
			r.logger.Error("history write failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
		if err := r.notify.Consume(ctx, ticket, event); err != nil {
			r.logger.Error("notification dispatch failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
		if err := r.audit.Consume(ctx, ticket, event); err != nil {
			r.logger.Error("audit write failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
		if r.dispatcher != nil {
			r.dispatcher.Publish(ctx, event)
		}
	}
}
