package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
	"github.com/memberhub/memberdash/internal/pkg/metrics"
)

const channelBuffer = 256

// Dispatcher feeds auth events to a single worker so each event is handled to
// completion before the next one starts, in arrival order.
type Dispatcher struct {
	events  chan domain.AuthEvent
	handler ports.AuthEventHandler
	log     zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	exited  chan struct{}
}

// NewDispatcher creates a Dispatcher delivering to handler.
func NewDispatcher(handler ports.AuthEventHandler, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		events:  make(chan domain.AuthEvent, channelBuffer),
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// Start launches the worker. It stops when ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.run(ctx)
}

// Enqueue hands event to the worker without blocking. It returns false when the
// dispatcher is stopped or its buffer is full.
func (d *Dispatcher) Enqueue(event domain.AuthEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "dropped").Inc()
		return false
	}
	select {
	case d.events <- event:
		return true
	default:
		metrics.AuthEventsTotal.WithLabelValues(string(event.Type), "dropped").Inc()
		d.log.Warn().Str("event", string(event.Type)).Msg("auth event queue full, event dropped")
		return false
	}
}

// Stop rejects further events and waits for the event in progress, if any.
// Buffered events not yet started are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	started := d.started
	if !d.stopped {
		d.stopped = true
		close(d.done)
	}
	d.mu.Unlock()
	if started {
		<-d.exited
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.exited)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case event := <-d.events:
			d.handler.HandleAuthEvent(ctx, event)
		}
	}
}
