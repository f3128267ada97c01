package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/schema"
)

func TestMockPlaysScriptWithReadyMarker(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	out := &collector{}
	m := &Mock{Catalog: cat, Lines: []string{"warming up"}}
	require.NoError(t, m.Execute(context.Background(), schema.OutboundMessage{
		Type:     schema.MessageExecuteMulti,
		TabID:    "tab-1",
		OutputID: "ue",
		Command:  "./build/nr-ue",
	}, out.emit))
	require.Equal(t, []string{"$ ./build/nr-ue", "warming up", "PDU Session establishment is successful"}, out.payloads(schema.EventOutput))
	require.Equal(t, []string{"Process exited with code 0"}, out.payloads(schema.EventMessage))
}

func TestMockSurfaceMarkerForSingleCommand(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	out := &collector{}
	m := &Mock{Catalog: cat}
	require.NoError(t, m.Execute(context.Background(), schema.OutboundMessage{Type: schema.MessageExecute, TabID: "t", Command: "viewer"}, out.emit))
	require.Equal(t, []string{"$ viewer", "Listening on"}, out.payloads(schema.EventOutput))
}

func TestMockHoldWaitsForCancel(t *testing.T) {
	out := &collector{}
	m := &Mock{Hold: true, Delay: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Execute(ctx, schema.OutboundMessage{Type: schema.MessageExecute, TabID: "t", Command: "hold"}, out.emit)
	}()
	require.Eventually(t, func() bool { return len(out.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mock did not return after cancel")
	}
	require.Empty(t, out.payloads(schema.EventMessage))
}
