package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/attackdeck/schema"
)

// startPipeline wires a core service to a mock executor over a real gateway
// channel.
func startPipeline(t *testing.T, mock *Mock) core.Service {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "gw.sock")
	server := gatewaygrpc.NewServer(gatewaygrpc.Config{Address: socket}, mock)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(ctx)
	}()
	require.Eventually(t, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	client, err := gatewaygrpc.Dial(context.Background(), gatewaygrpc.Config{Address: socket})
	require.NoError(t, err)
	svc, err := core.NewService(schema.ServiceConfig{StateDir: t.TempDir()}, core.ServiceDeps{Catalog: mock.Catalog, Gateway: client})
	require.NoError(t, err)
	t.Cleanup(func() {
		svc.Close()
		_ = client.Close()
		cancel()
		<-errCh
	})
	return svc
}

func tabSnapshot(t *testing.T, svc core.Service, tabID schema.TabID) schema.TabSnapshot {
	t.Helper()
	resp, err := svc.ListTabs(context.Background(), schema.ListTabsRequest{UserID: "alice"})
	require.NoError(t, err)
	for _, tab := range resp.Tabs {
		if tab.ID == tabID {
			return tab
		}
	}
	t.Fatalf("tab %s missing", tabID)
	return schema.TabSnapshot{}
}

func TestPipelineMultiOutputRunCompletes(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := startPipeline(t, &Mock{Catalog: cat})
	ctx := context.Background()

	opened, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: "alice"})
	require.NoError(t, err)
	tabID := opened.Tab.ID
	_, err = svc.SelectTool(ctx, schema.SelectToolRequest{UserID: "alice", TabID: tabID, ToolID: "ueransim"})
	require.NoError(t, err)
	_, err = svc.Execute(ctx, schema.ExecuteRequest{UserID: "alice", TabID: tabID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tabSnapshot(t, svc, tabID).Status == schema.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	buf, err := svc.GetBuffer(ctx, schema.GetBufferRequest{UserID: "alice", TabID: tabID, StreamID: "gnb"})
	require.NoError(t, err)
	require.Contains(t, buf.Buffer.Lines, "NG Setup procedure is successful")
	require.Equal(t, "Process exited with code 0", buf.Buffer.Lines[len(buf.Buffer.Lines)-1])
}

func TestPipelineStopEndsHeldRun(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := startPipeline(t, &Mock{Catalog: cat, Hold: true})
	ctx := context.Background()

	opened, err := svc.OpenTab(ctx, schema.OpenTabRequest{UserID: "alice"})
	require.NoError(t, err)
	tabID := opened.Tab.ID
	_, err = svc.SelectTool(ctx, schema.SelectToolRequest{UserID: "alice", TabID: tabID, ToolID: "packet-viewer"})
	require.NoError(t, err)
	_, err = svc.Execute(ctx, schema.ExecuteRequest{UserID: "alice", TabID: tabID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tabSnapshot(t, svc, tabID).IframeReady
	}, 5*time.Second, 20*time.Millisecond)
	snap := tabSnapshot(t, svc, tabID)
	require.True(t, snap.IsRunning)
	require.True(t, snap.LockedForInteraction)

	stopped, err := svc.Stop(ctx, schema.StopRequest{UserID: "alice", TabID: tabID})
	require.NoError(t, err)
	require.Equal(t, schema.StatusStopped, stopped.Tab.Status)
	require.False(t, stopped.Tab.LockedForInteraction)
}
