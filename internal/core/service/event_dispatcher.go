package service

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

type eventBatch struct {
	span   trace.SpanContext
	events []domain.Event
}

// EventDispatcher decouples event publishing from the stock write path. Events
// are queued and drained by a fixed pool of workers; a full queue drops events.
type EventDispatcher struct {
	publisher port.EventPublisher
	logger    *zap.Logger
	queue     chan eventBatch
	wg        sync.WaitGroup

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
}

func NewEventDispatcher(publisher port.EventPublisher, logger *zap.Logger, queueSize int) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &EventDispatcher{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan eventBatch, queueSize),
	}
}

// Start launches workers that publish until Close drains the queue.
func (d *EventDispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

func (d *EventDispatcher) worker(id int) {
	defer d.wg.Done()
	for batch := range d.queue {
		ctx := trace.ContextWithSpanContext(context.Background(), batch.span)
		if err := d.publisher.Publish(ctx, batch.events...); err != nil {
			d.logger.Warn("failed to publish events",
				zap.Int("worker", id),
				zap.Int("count", len(batch.events)),
				zap.Error(err),
			)
		}
	}
}

// Dispatch queues events without blocking. Only the span context of ctx is
// kept; cancellation is not. Events dispatched after Close are dropped.
func (d *EventDispatcher) Dispatch(ctx context.Context, events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("event dispatcher closed, dropping events",
			zap.String("type", string(events[0].Type)),
			zap.String("product_id", events[0].ProductID),
		)
		return
	}
	select {
	case d.queue <- eventBatch{span: trace.SpanContextFromContext(ctx), events: events}:
	default:
		d.logger.Warn("event queue full, dropping events",
			zap.String("type", string(events[0].Type)),
			zap.String("product_id", events[0].ProductID),
		)
	}
}

// Close stops accepting events and waits for the workers to flush the queue.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
