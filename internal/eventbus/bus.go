package eventbus

import (
	"context"
	"sync"

	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventOutput carries transcript lines for a tab or stream.
	EventOutput EventType = "output"
	// EventTab carries tab lifecycle and status updates.
	EventTab EventType = "tab"
	// EventNotification carries operator notifications.
	EventNotification EventType = "notification"
)

const defaultDepth = 256

// Event is one UI-facing event emitted by the core service.
type Event struct {
	Type         EventType
	Output       schema.OutputEvent
	Tab          schema.TabEvent
	Notification schema.NotificationEvent
}

// UserID reports the operator the event belongs to.
func (e Event) UserID() schema.UserID {
	switch e.Type {
	case EventOutput:
		return e.Output.UserID
	case EventTab:
		return e.Tab.UserID
	case EventNotification:
		return e.Notification.UserID
	}
	return ""
}

// Bus fans events out to per-operator subscribers. Slow subscribers lose
// events instead of blocking the core.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.UserID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.UserID]map[chan Event]struct{}),
		log:   logger,
		depth: defaultDepth,
	}
}

// Subscribe registers a subscriber for the operator and returns its channel
// and a cancel func that closes it.
func (b *Bus) Subscribe(userID schema.UserID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	userSubs := b.subs[userID]
	if userSubs == nil {
		userSubs = make(map[chan Event]struct{})
		b.subs[userID] = userSubs
	}
	userSubs[ch] = struct{}{}
	count := len(userSubs)
	b.mu.Unlock()
	b.log.With("user", userID).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[userID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, userID)
				}
			}
			b.mu.Unlock()
			close(ch)
			b.log.With("user", userID).Debug("eventbus unsubscribe")
		})
	}
}

// Subscribers reports the number of live subscribers for an operator.
func (b *Bus) Subscribers(userID schema.UserID) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// OnOutput publishes an output event.
func (b *Bus) OnOutput(event schema.OutputEvent) {
	b.publish(Event{Type: EventOutput, Output: event})
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(Event{Type: EventTab, Tab: event})
}

// OnNotification publishes a notification.
func (b *Bus) OnNotification(event schema.NotificationEvent) {
	b.publish(Event{Type: EventNotification, Notification: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	userID := event.UserID()
	b.mu.Lock()
	userSubs := b.subs[userID]
	subs := make([]chan Event, 0, len(userSubs))
	for sub := range userSubs {
		subs = append(subs, sub)
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("user", userID).Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
