package eventbus

import (
	"testing"
	"time"

	"pkt.systems/attackdeck/schema"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("alice")
	defer cancel()

	bus.OnOutput(schema.OutputEvent{UserID: "alice", TabID: "tab-1", StreamID: "gnb", Lines: []string{"hi"}})
	got := receive(t, ch)
	if got.Type != EventOutput || got.Output.StreamID != "gnb" || got.UserID() != "alice" {
		t.Fatalf("unexpected output event: %+v", got)
	}

	bus.OnTabEvent(schema.TabEvent{UserID: "alice", Type: schema.TabEventStatus, ActiveTab: "tab-1"})
	if got := receive(t, ch); got.Type != EventTab || got.Tab.Type != schema.TabEventStatus {
		t.Fatalf("unexpected tab event: %+v", got)
	}

	bus.OnNotification(schema.NotificationEvent{UserID: "alice", Level: schema.NotifyError, Title: schema.NotifyTitleFatal})
	if got := receive(t, ch); got.Type != EventNotification || got.Notification.Title != schema.NotifyTitleFatal {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

func TestPublishIsScopedToUser(t *testing.T) {
	bus := New(nil)
	alice, cancelAlice := bus.Subscribe("alice")
	defer cancelAlice()
	bob, cancelBob := bus.Subscribe("bob")
	defer cancelBob()

	bus.OnNotification(schema.NotificationEvent{UserID: "bob", Title: "x"})
	if got := receive(t, bob); got.Notification.Title != "x" {
		t.Fatalf("unexpected event for bob: %+v", got)
	}
	select {
	case got := <-alice:
		t.Fatalf("alice received bob's event: %+v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("alice")
	if bus.Subscribers("alice") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	if bus.Subscribers("alice") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	ch, cancel := bus.Subscribe("alice")
	defer cancel()

	bus.OnOutput(schema.OutputEvent{UserID: "alice", Lines: []string{"first"}})
	done := make(chan struct{})
	go func() {
		bus.OnOutput(schema.OutputEvent{UserID: "alice", Lines: []string{"second"}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
	if got := receive(t, ch); got.Output.Lines[0] != "first" {
		t.Fatalf("expected the first event to survive, got %+v", got)
	}
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus
	ch, cancel := bus.Subscribe("alice")
	cancel()
	if ch != nil {
		t.Fatalf("expected nil channel from nil bus")
	}
	bus.OnOutput(schema.OutputEvent{UserID: "alice"})
}
