package streaming

import (
	"context"
	"strconv"
	"sync"

	"flowattr-lab/pkg/logger"
)

// maxPendingEchoes bounds how many own event IDs wait for their NATS echo
const maxPendingEchoes = 4096

// remoteTransport carries events between processes
type remoteTransport interface {
	IsConnected() bool
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context) (<-chan *Event, error)
	Close()
}

// EventBus distributes attribution events to NATS and local subscribers
type EventBus struct {
	nats   remoteTransport
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]chan *Event
	nextID      int

	// IDs this bus published to NATS; Relay drops their echo
	echoMu  sync.Mutex
	pending map[string]struct{}
	order   []string
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	if nats == nil {
		return newEventBus(nil, log)
	}
	return newEventBus(nats, log)
}

func newEventBus(remote remoteTransport, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        remote,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]chan *Event),
		pending:     make(map[string]struct{}),
	}
}

// Publish publishes an event to NATS, when connected, and to every local
// subscriber. NATS failures only degrade to local delivery.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	if eb.nats != nil && eb.nats.IsConnected() {
		// recorded first, the echo may arrive before Publish returns
		eb.remember(event.ID)
		if err := eb.nats.Publish(ctx, event); err != nil {
			eb.forget(event.ID)
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.broadcast(event)
	return nil
}

func (eb *EventBus) remember(id string) {
	eb.echoMu.Lock()
	defer eb.echoMu.Unlock()

	if _, ok := eb.pending[id]; ok {
		return
	}
	if len(eb.order) >= maxPendingEchoes {
		delete(eb.pending, eb.order[0])
		eb.order = eb.order[1:]
	}
	eb.pending[id] = struct{}{}
	eb.order = append(eb.order, id)
}

func (eb *EventBus) forget(id string) {
	eb.echoMu.Lock()
	defer eb.echoMu.Unlock()
	delete(eb.pending, id)
}

// isEcho reports whether id was published by this bus, consuming the record
func (eb *EventBus) isEcho(id string) bool {
	eb.echoMu.Lock()
	defer eb.echoMu.Unlock()

	if _, ok := eb.pending[id]; !ok {
		return false
	}
	delete(eb.pending, id)
	return true
}

func (eb *EventBus) broadcast(event *Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}
}

// Subscribe creates a new subscription and returns a channel for events
func (eb *EventBus) Subscribe() (<-chan *Event, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := strconv.Itoa(eb.nextID)
	ch := make(chan *Event, 100)
	eb.subscribers[id] = ch
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if _, ok := eb.subscribers[id]; ok {
			close(ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
		}
	}

	return ch, unsubscribe
}

// Relay forwards events other processes published on NATS to the local
// subscribers until ctx ends
func (eb *EventBus) Relay(ctx context.Context) error {
	if eb.nats == nil {
		return nil
	}
	events, err := eb.nats.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for event := range events {
			if eb.isEcho(event.ID) {
				continue
			}
			eb.broadcast(event)
		}
	}()
	return nil
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, ch := range eb.subscribers {
		close(ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
