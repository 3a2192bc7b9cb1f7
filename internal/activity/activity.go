// Package activity delivers ledger events to the activity feed and to users.
// Delivery is best-effort: failures are logged and counted, never returned to
// the code that produced the event.
package activity

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/susu3304/warikan/internal/ledger"
)

// Recorder receives one event. Implementations may block briefly.
type Recorder interface {
	Record(ctx context.Context, ev ledger.Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev ledger.Event) error

func (f RecorderFunc) Record(ctx context.Context, ev ledger.Event) error { return f(ctx, ev) }

// Metrics
var (
	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warikan_activity_delivered_total",
		Help: "Events handed to a recorder, by recorder and result",
	}, []string{"recorder", "result"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warikan_activity_dropped_total",
		Help: "Events dropped because the dispatch queue was full or closed",
	})
)

const (
	DefaultQueueSize     = 256
	defaultRecordTimeout = 15 * time.Second
)

type namedRecorder struct {
	name string
	rec  Recorder
}

// Dispatcher fans events out to recorders from a single worker goroutine.
// It implements ledger.EventSink.
type Dispatcher struct {
	recorders []namedRecorder
	queue     chan ledger.Event
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ ledger.EventSink = (*Dispatcher)(nil)

func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		queue:   make(chan ledger.Event, queueSize),
		timeout: defaultRecordTimeout,
		done:    make(chan struct{}),
	}
}

// Add registers a recorder. Call before Start.
func (d *Dispatcher) Add(name string, r Recorder) {
	d.recorders = append(d.recorders, namedRecorder{name: name, rec: r})
}

func (d *Dispatcher) Start() {
	go d.loop()
}

// Publish enqueues ev without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(ev ledger.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		eventsDropped.Inc()
		return
	}
	select {
	case d.queue <- ev:
	default:
		eventsDropped.Inc()
		log.Printf("activity: queue full, dropped %s event for payment %q", ev.Type, ev.PaymentID)
	}
}

// Stop closes the queue and waits for queued events to be delivered or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev ledger.Event) {
	for _, r := range d.recorders {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := r.rec.Record(ctx, ev)
		cancel()
		if err != nil {
			eventsDelivered.WithLabelValues(r.name, "error").Inc()
			log.Printf("activity: %s failed to record %s event: %v", r.name, ev.Type, err)
			continue
		}
		eventsDelivered.WithLabelValues(r.name, "ok").Inc()
	}
}

// LogRecorder writes a one-line summary of every event.
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, ev ledger.Event) error {
	log.Printf("activity: %s actor=%s counterparty=%s amount=%d allocations=%d payment=%s",
		ev.Type, ev.ActorID, ev.CounterpartyID, ev.Amount, len(ev.Allocations), ev.PaymentID)
	return nil
}
