// Package dispatch fans monitoring events out to registered subscribers.
//
// Every subscriber owns a bounded queue drained by its own goroutine, so a
// slow or failing subscriber never delays the publisher or its peers.
// Events reach a subscriber in the order they were published; when its
// queue is full the event is dropped and counted.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yairfalse/vigil/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultQueueSize is the per-subscriber queue capacity
const DefaultQueueSize = 64

// Kind selects which events a subscriber receives
type Kind string

const (
	KindMetrics Kind = "metrics"
	KindAlerts  Kind = "alerts"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindMetrics || k == KindAlerts
}

// Event is delivered to subscribers. Metrics events carry Snapshot, alert
// events carry the alerts created during one tick.
type Event struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  domain.Snapshot `json:"snapshot"`
	Alerts    []domain.Alert  `json:"alerts,omitempty"`
}

// Handler consumes one event. Returned errors and panics are logged and
// otherwise ignored.
type Handler func(ctx context.Context, ev Event) error

// Subscription identifies a registered handler
type Subscription struct {
	id   uint64
	kind Kind
}

// Kind returns the event kind the subscription receives
func (s Subscription) Kind() Kind {
	return s.kind
}

// Stats are lifetime dispatcher counters
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
	Failed      int64 `json:"failed"`
}

type subscriber struct {
	id      uint64
	kind    Kind
	name    string
	handler Handler
	queue   chan Event
	stop    chan struct{}
}

// Dispatcher is an observer registry with per-subscriber delivery queues
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	queueSize   int
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64

	droppedCounter metric.Int64Counter
	failedCounter  metric.Int64Counter
}

// New creates a dispatcher. queueSize <= 0 selects DefaultQueueSize.
func New(queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		subscribers: make(map[uint64]*subscriber),
		queueSize:   queueSize,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	d.initializeMetrics()
	return d
}

func (d *Dispatcher) initializeMetrics() {
	meter := otel.Meter("vigil/dispatch")

	var err error
	d.droppedCounter, err = meter.Int64Counter(
		"vigil_dispatch_events_dropped_total",
		metric.WithDescription("Events dropped because a subscriber queue was full"),
	)
	if err != nil {
		d.logger.Debug("Failed to create dropped events counter", zap.Error(err))
		d.droppedCounter = nil
	}

	d.failedCounter, err = meter.Int64Counter(
		"vigil_dispatch_handler_failures_total",
		metric.WithDescription("Subscriber handler invocations that returned an error or panicked"),
	)
	if err != nil {
		d.logger.Debug("Failed to create handler failures counter", zap.Error(err))
		d.failedCounter = nil
	}
}

// Subscribe registers handler for events of kind. name only labels logs.
func (d *Dispatcher) Subscribe(kind Kind, name string, handler Handler) (Subscription, error) {
	if !kind.Valid() {
		return Subscription{}, fmt.Errorf("unknown event kind %q: %w", kind, domain.ErrValidation)
	}
	if handler == nil {
		return Subscription{}, fmt.Errorf("handler is required: %w", domain.ErrValidation)
	}
	sub := &subscriber{
		id:      d.nextID.Add(1),
		kind:    kind,
		name:    name,
		handler: handler,
		queue:   make(chan Event, d.queueSize),
		stop:    make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return Subscription{}, fmt.Errorf("dispatcher closed")
	}
	d.subscribers[sub.id] = sub
	d.wg.Add(1)
	d.mu.Unlock()

	go d.deliver(sub)

	d.logger.Debug("Subscriber registered",
		zap.String("subscriber", name),
		zap.String("kind", string(kind)),
		zap.Uint64("id", sub.id))

	return Subscription{id: sub.id, kind: kind}, nil
}

// Unsubscribe removes a subscription. Queued events that were not yet
// delivered are discarded.
func (d *Dispatcher) Unsubscribe(s Subscription) error {
	d.mu.Lock()
	sub, ok := d.subscribers[s.id]
	if ok {
		delete(d.subscribers, s.id)
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("subscription %d: %w", s.id, domain.ErrNotFound)
	}

	close(sub.stop)
	d.logger.Debug("Subscriber removed", zap.String("subscriber", sub.name), zap.Uint64("id", sub.id))
	return nil
}

// Publish enqueues ev for every subscriber of its kind without blocking
func (d *Dispatcher) Publish(ev Event) {
	if d.closed.Load() {
		return
	}
	d.published.Add(1)

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subscribers {
		if sub.kind != ev.Kind {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			d.dropped.Add(1)
			if d.droppedCounter != nil {
				d.droppedCounter.Add(d.ctx, 1, metric.WithAttributes(
					attribute.String("subscriber", sub.name),
					attribute.String("kind", string(ev.Kind))))
			}
			d.logger.Warn("Subscriber queue full, dropping event",
				zap.String("subscriber", sub.name),
				zap.String("kind", string(ev.Kind)),
				zap.Int("queue_size", d.queueSize))
		}
	}
}

// Stats returns dispatcher counters
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	n := len(d.subscribers)
	d.mu.RUnlock()

	return Stats{
		Subscribers: n,
		Published:   d.published.Load(),
		Delivered:   d.delivered.Load(),
		Dropped:     d.dropped.Load(),
		Failed:      d.failed.Load(),
	}
}

// Close stops every subscriber goroutine and waits for them to exit
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}

	d.mu.Lock()
	for id, sub := range d.subscribers {
		close(sub.stop)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(sub *subscriber) {
	defer d.wg.Done()

	for {
		select {
		case <-sub.stop:
			return
		case ev := <-sub.queue:
			// stop wins over a queued event
			select {
			case <-sub.stop:
				return
			default:
			}
			d.invoke(sub, ev)
		}
	}
}

func (d *Dispatcher) invoke(sub *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.recordFailure(sub, ev, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := sub.handler(d.ctx, ev); err != nil {
		d.recordFailure(sub, ev, err)
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) recordFailure(sub *subscriber, ev Event, err error) {
	d.failed.Add(1)
	if d.failedCounter != nil {
		d.failedCounter.Add(d.ctx, 1, metric.WithAttributes(attribute.String("subscriber", sub.name)))
	}
	d.logger.Error("Subscriber failed to handle event",
		zap.String("subscriber", sub.name),
		zap.String("kind", string(ev.Kind)),
		zap.Error(err))
}
