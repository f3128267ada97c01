package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/schema"
)

const (
	streamSnapshot     = "snapshot"
	streamOutput       = "output"
	streamTab          = "tab"
	streamNotification = "notification"
)

const defaultHubHistory = 1000

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq          uint64               `json:"seq"`
	Type         string               `json:"type"`
	TabEvent     string               `json:"tabEvent,omitempty"`
	TabID        schema.TabID         `json:"tabId,omitempty"`
	StreamID     schema.StreamID      `json:"outputId,omitempty"`
	Lines        []string             `json:"lines,omitempty"`
	Tab          *schema.TabSnapshot  `json:"tab,omitempty"`
	ActiveTab    schema.TabID         `json:"activeTab,omitempty"`
	Notification *NotificationPayload `json:"notification,omitempty"`
	Snapshot     *SnapshotPayload     `json:"snapshot,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// NotificationPayload is the wire form of a notification.
type NotificationPayload struct {
	Level   schema.NotificationLevel `json:"level"`
	Title   string                   `json:"title"`
	Message string                   `json:"message"`
}

// SnapshotPayload seeds client state on connect.
type SnapshotPayload struct {
	Tabs      []schema.TabSnapshot    `json:"tabs"`
	ActiveTab schema.TabID            `json:"activeTab"`
	Buffers   []schema.BufferSnapshot `json:"buffers"`
}

// Hub keeps a replayable event history per operator and broadcasts new
// events to SSE subscribers.
type Hub struct {
	mu          sync.Mutex
	users       map[schema.UserID]*userHub
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = defaultHubHistory
	}
	return &Hub{
		users:       make(map[schema.UserID]*userHub),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnOutput implements core.EventSink.
func (h *Hub) OnOutput(event schema.OutputEvent) {
	logx.WithUserTab(context.Background(), event.UserID, event.TabID).Trace("hub output event", "stream", event.StreamID, "lines", len(event.Lines))
	h.publish(event.UserID, StreamEvent{
		Type:     streamOutput,
		TabID:    event.TabID,
		StreamID: event.StreamID,
		Lines:    event.Lines,
	})
}

// OnTabEvent implements core.EventSink.
func (h *Hub) OnTabEvent(event schema.TabEvent) {
	logx.WithUser(context.Background(), event.UserID).Trace("hub tab event", "type", event.Type, "tab", event.Tab.ID, "active", event.ActiveTab)
	tab := event.Tab
	h.publish(event.UserID, StreamEvent{
		Type:      streamTab,
		TabEvent:  string(event.Type),
		TabID:     tab.ID,
		Tab:       &tab,
		ActiveTab: event.ActiveTab,
	})
}

// OnNotification implements core.EventSink.
func (h *Hub) OnNotification(event schema.NotificationEvent) {
	logx.WithUserTab(context.Background(), event.UserID, event.TabID).Trace("hub notification event", "level", event.Level, "title", event.Title)
	h.publish(event.UserID, StreamEvent{
		Type:  streamNotification,
		TabID: event.TabID,
		Notification: &NotificationPayload{
			Level:   event.Level,
			Title:   event.Title,
			Message: event.Message,
		},
	})
}

// Subscribe registers a subscriber for an operator and returns its channel,
// an unsubscribe func and the current sequence number.
func (h *Hub) Subscribe(userID schema.UserID) (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	uh := h.getOrCreateUserHubLocked(userID)
	ch := make(chan StreamEvent, 256)
	uh.subs[ch] = struct{}{}
	seq := uh.seq
	log := logx.WithUser(context.Background(), userID)
	log.Info("hub subscribe", "subs", len(uh.subs), "history", len(uh.history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(uh.subs, ch)
			close(ch)
			remaining := len(uh.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns events with a sequence number in (after, upTo].
func (h *Hub) Replay(userID schema.UserID, after, upTo uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	uh := h.users[userID]
	if uh == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(uh.history))
	for _, event := range uh.history {
		if event.Seq > after && event.Seq <= upTo {
			events = append(events, event)
		}
	}
	logx.WithUser(context.Background(), userID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(userID schema.UserID, event StreamEvent) {
	event.Timestamp = h.now()
	h.mu.Lock()
	uh := h.getOrCreateUserHubLocked(userID)
	uh.seq++
	event.Seq = uh.seq
	uh.history = append(uh.history, event)
	if len(uh.history) > h.historySize {
		uh.history = uh.history[len(uh.history)-h.historySize:]
	}
	dropped := 0
	for sub := range uh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()
	if dropped > 0 {
		logx.WithUser(context.Background(), userID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateUserHubLocked(userID schema.UserID) *userHub {
	uh := h.users[userID]
	if uh == nil {
		uh = &userHub{subs: make(map[chan StreamEvent]struct{})}
		h.users[userID] = uh
	}
	return uh
}

type userHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
