package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Consumer handles one published event. A consumer error never stops the
// remaining consumers; it is logged and swallowed at the dispatcher.
type Consumer func(context.Context, Event) error

// Dispatcher fans lifecycle events out to registered consumers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event)
	Register(name string, consumer Consumer)
}

// syncDispatcher invokes consumers inline, in registration order, so the
// history -> notification -> audit ordering is fixed by wiring order.
type syncDispatcher struct {
	mu        sync.RWMutex
	names     []string
	consumers []Consumer
	logger    *zap.Logger
}

// NewSyncDispatcher creates a synchronous dispatcher.
func NewSyncDispatcher(logger *zap.Logger) Dispatcher {
	return &syncDispatcher{logger: logger}
}

// Publish invokes every consumer for the event, isolating failures.
func (d *syncDispatcher) Publish(ctx context.Context, event Event) {
	d.mu.RLock()
	names := append([]string{}, d.names...)
	consumers := append([]Consumer{}, d.consumers...)
	d.mu.RUnlock()

	for i, consumer := range consumers {
		if err := consumer(ctx, event); err != nil {
			d.logger.Error("event consumer failed",
				zap.String("consumer", names[i]),
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

// Register appends a consumer. Registration order defines invocation order.
func (d *syncDispatcher) Register(name string, consumer Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	d.consumers = append(d.consumers, consumer)
}
