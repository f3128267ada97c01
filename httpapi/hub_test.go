package httpapi

import (
	"testing"

	"pkt.systems/attackdeck/schema"
)

func TestHubReplayAndHistoryLimit(t *testing.T) {
	hub := NewHub(2)
	for i := 0; i < 3; i++ {
		hub.OnOutput(schema.OutputEvent{UserID: "alice", TabID: "tab-1", Lines: []string{"line"}})
	}
	_, cancel, seq := hub.Subscribe("alice")
	defer cancel()
	if seq != 3 {
		t.Fatalf("expected seq 3, got %d", seq)
	}
	replay := hub.Replay("alice", 0, seq)
	if len(replay) != 2 || replay[0].Seq != 2 || replay[1].Seq != 3 {
		t.Fatalf("unexpected replay: %+v", replay)
	}
	if got := hub.Replay("alice", 2, 2); len(got) != 0 {
		t.Fatalf("expected empty replay window, got %+v", got)
	}
	if got := hub.Replay("bob", 0, 10); got != nil {
		t.Fatalf("expected nil replay for unknown operator")
	}
}

func TestHubNotificationPayload(t *testing.T) {
	hub := NewHub(10)
	ch, cancel, _ := hub.Subscribe("alice")
	defer cancel()
	hub.OnNotification(schema.NotificationEvent{UserID: "alice", TabID: "tab-1", Level: schema.NotifyError, Title: schema.NotifyTitleFatal, Message: "Permission denied"})
	event := <-ch
	if event.Type != streamNotification || event.Notification == nil || event.Notification.Title != schema.NotifyTitleFatal || event.TabID != "tab-1" {
		t.Fatalf("unexpected notification event: %+v", event)
	}
	cancel()
	cancel()
}
