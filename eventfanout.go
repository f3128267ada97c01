package attackdeck

import (
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnOutput(event schema.OutputEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnOutput(event)
	}
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnNotification(event schema.NotificationEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnNotification(event)
	}
}
