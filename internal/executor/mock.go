package executor

import (
	"context"
	"time"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// Mock is a scripted executor. It echoes the command, plays Lines, prints the
// catalog ready marker for the stream or surface, and then exits with code 0
// unless Hold is set.
type Mock struct {
	Catalog *catalog.Catalog
	Lines   []string
	Delay   time.Duration
	Hold    bool
}

// Execute implements gatewaygrpc.Executor.
func (m *Mock) Execute(ctx context.Context, msg schema.OutboundMessage, emit gatewaygrpc.Emitter) error {
	log := pslog.Ctx(ctx)
	script := make([]string, 0, len(m.Lines)+3)
	script = append(script, "$ "+msg.Command)
	script = append(script, m.Lines...)
	script = append(script, m.readyMarkers(msg)...)
	for _, line := range script {
		if err := m.pause(ctx); err != nil {
			return nil
		}
		if err := emit(schema.InboundMessage{Type: schema.EventOutput, TabID: msg.TabID, OutputID: msg.OutputID, Payload: line}); err != nil {
			return err
		}
	}
	if m.Hold {
		log.Debug("executor mock holding", "tab", msg.TabID, "stream", msg.OutputID)
		<-ctx.Done()
		return nil
	}
	if err := m.pause(ctx); err != nil {
		return nil
	}
	return emit(schema.InboundMessage{Type: schema.EventMessage, TabID: msg.TabID, OutputID: msg.OutputID, Payload: "Process exited with code 0"})
}

func (m *Mock) pause(ctx context.Context) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readyMarkers returns the marker lines a real tool would print. Streams use
// the marker of the matching sub-command; single commands print every
// distinct surface marker in the catalog.
func (m *Mock) readyMarkers(msg schema.OutboundMessage) []string {
	if m.Catalog == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, tool := range m.Catalog.Tools() {
		var marker string
		if msg.OutputID != "" {
			marker = tool.ReadyMarker(msg.OutputID)
		} else if tool.Surface != nil {
			marker = tool.ReadyMarker("")
		}
		if marker == "" || seen[marker] {
			continue
		}
		seen[marker] = true
		out = append(out, marker)
	}
	return out
}
