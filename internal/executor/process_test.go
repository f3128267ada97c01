package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pkt.systems/attackdeck/schema"
)

type collector struct {
	mu   sync.Mutex
	msgs []schema.InboundMessage
}

func (c *collector) emit(msg schema.InboundMessage) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *collector) list() []schema.InboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.InboundMessage(nil), c.msgs...)
}

func (c *collector) payloads(kind schema.EventKind) []string {
	var out []string
	for _, msg := range c.list() {
		if msg.Type == kind {
			out = append(out, msg.Payload)
		}
	}
	return out
}

func TestProcessReportsOutputAndExitCode(t *testing.T) {
	out := &collector{}
	p := &Process{}
	err := p.Execute(context.Background(), schema.OutboundMessage{
		Type:     schema.MessageExecuteMulti,
		TabID:    "tab-1",
		OutputID: "gnb",
		Command:  "echo started; echo 'permission denied' 1>&2; exit 3",
	}, out.emit)
	require.NoError(t, err)
	require.Equal(t, []string{"started"}, out.payloads(schema.EventOutput))
	require.Equal(t, []string{"permission denied"}, out.payloads(schema.EventError))
	require.Equal(t, []string{"Process exited with code 3"}, out.payloads(schema.EventMessage))
	for _, msg := range out.list() {
		require.Equal(t, schema.StreamID("gnb"), msg.OutputID)
		require.Equal(t, schema.TabID("tab-1"), msg.TabID)
	}
}

func TestProcessUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	out := &collector{}
	p := &Process{}
	require.NoError(t, p.Execute(context.Background(), schema.OutboundMessage{
		Type:             schema.MessageExecute,
		TabID:            "tab-1",
		Command:          "pwd",
		WorkingDirectory: dir,
	}, out.emit))
	lines := out.payloads(schema.EventOutput)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], dir)
}

func TestProcessStopsOnCancel(t *testing.T) {
	out := &collector{}
	p := &Process{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Execute(ctx, schema.OutboundMessage{Type: schema.MessageExecute, TabID: "tab-1", Command: "echo up; sleep 60"}, out.emit)
	}()
	require.Eventually(t, func() bool { return len(out.payloads(schema.EventOutput)) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("process was not stopped")
	}
	require.Empty(t, out.payloads(schema.EventMessage))
}
