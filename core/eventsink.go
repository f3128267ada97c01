package core

import "pkt.systems/attackdeck/schema"

// EventSink receives tab, output and notification events from the core service.
type EventSink interface {
	OnOutput(event schema.OutputEvent)
	OnTabEvent(event schema.TabEvent)
	OnNotification(event schema.NotificationEvent)
}
