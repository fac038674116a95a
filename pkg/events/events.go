package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventRolloutStarted    EventType = "rollout.started"
	EventRolloutCompleted  EventType = "rollout.completed"
	EventRolloutFailed     EventType = "rollout.failed"
	EventStepStarted       EventType = "step.started"
	EventStepApplied       EventType = "step.applied"
	EventStepHealthy       EventType = "step.healthy"
	EventStepUnhealthy     EventType = "step.unhealthy"
	EventAgentDraining     EventType = "agent.draining"
	EventAgentDrained      EventType = "agent.drained"
	EventAgentDrainFailed  EventType = "agent.drain_failed"
	EventAgentsCreated     EventType = "agents.created"
	EventRollbackStarted   EventType = "rollback.started"
	EventRollbackCompleted EventType = "rollback.completed"
	EventRollbackFailed    EventType = "rollback.failed"
)

// Event represents a rollout event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Publisher accepts events
type Publisher interface {
	Publish(event *Event)
}

// Emit publishes an event on p if p is set
func Emit(p Publisher, eventType EventType, message string, metadata map[string]string) {
	if p == nil {
		return
	}
	p.Publish(&Event{
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	})
}

// Subscriber receives events until the broker stops
type Subscriber chan *Event

const (
	queueSize      = 256
	subscriberSize = 128
)

// Broker fans published events out to subscribers from a single goroutine,
// so every subscriber sees events in publish order
type Broker struct {
	mu sync.RWMutex
	// value is true for lossless subscribers
	subscribers map[Subscriber]bool

	queue    chan *Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewBroker creates a broker; call Start before publishing
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		queue:       make(chan *Event, queueSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the fan-out loop
func (b *Broker) Start() {
	go b.run()
}

// Stop delivers events still queued, closes every subscriber channel and
// waits for the fan-out loop to exit. Start must have been called.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// Subscribe registers a subscriber that misses events while its buffer is full
func (b *Broker) Subscribe() Subscriber {
	return b.subscribe(false)
}

// SubscribeLossless registers a subscriber that receives every event. The
// fan-out loop waits for it when its buffer is full, so it must be read
// until the broker closes it.
func (b *Broker) SubscribeLossless() Subscriber {
	return b.subscribe(true)
}

func (b *Broker) subscribe(lossless bool) Subscriber {
	sub := make(Subscriber, subscriberSize)

	b.mu.Lock()
	b.subscribers[sub] = lossless
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes sub; unknown subscribers are ignored
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish stamps the event with an ID and time when missing and queues it.
// Events published after Stop are discarded.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	defer close(b.doneCh)

	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					b.closeAll()
					return
				}
			}
		}
	}
}

// deliver hands event to every lossless subscriber and to every other
// subscriber with room in its buffer
func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, lossless := range b.subscribers {
		if lossless {
			sub <- event
			continue
		}
		select {
		case sub <- event:
		default:
		}
	}
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub)
	}
}
