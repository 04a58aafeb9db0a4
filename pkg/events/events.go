// Package events implements the Event Publisher (spec §4.2, component
// C8): a fire-and-forget broadcast of status changes — supervisor,
// address, application, and process — to anything that cares to
// subscribe. The broker shape (buffered intake channel, per-subscriber
// buffered channel, broadcast-drops-on-full) is unchanged from conclave's
// original orchestrator; only the event vocabulary is new.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names one of the four status views the spec requires the
// core to publish on every change (spec §4.2, §4.4).
type EventType string

const (
	TypeSupervisorStatus  EventType = "supervisor_status"
	TypeAddressStatus     EventType = "address_status"
	TypeApplicationStatus EventType = "application_status"
	TypeProcessStatus     EventType = "process_status"
)

// Event is one published status change. Payload carries the
// type-specific fields as plain strings — the publisher boundary is
// intentionally narrow and JSON-friendly, since the transport that
// carries these events is an external collaborator (spec §1).
type Event struct {
	ID        string
	Type      EventType
	Address   string // the host this event concerns, when applicable
	Timestamp time.Time
	Payload   map[string]string
}

// Publisher is the contract the rest of the core depends on. The
// default implementation is Broker; tests use an in-memory fake that
// records published events without any goroutines.
type Publisher interface {
	Publish(event Event)
}

// Subscriber is a channel that receives published events.
type Subscriber chan *Event

// Broker is the default Publisher: a single intake channel fanned out
// to per-subscriber buffered channels, non-blocking on both ends so a
// slow or absent subscriber never stalls the agent thread.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a broker with the agent thread's intake buffered to
// absorb a burst of status changes between ticks.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop in its own goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution. Subsequent Publish calls are no-ops.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber with its own buffered channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues event for broadcast, stamping an ID and timestamp if
// the caller left them zero. Fire-and-forget: if the broker has been
// stopped, the event is silently dropped.
func (b *Broker) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- &event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
