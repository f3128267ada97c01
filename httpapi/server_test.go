package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/internal/command"
	"pkt.systems/attackdeck/internal/vault"
	"pkt.systems/attackdeck/schema"
)

type recordingGateway struct {
	mu   sync.Mutex
	sent []schema.OutboundMessage
}

func (g *recordingGateway) Send(_ context.Context, msg schema.OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	return nil
}

func (g *recordingGateway) Subscribe(schema.EventKind, func(schema.InboundMessage)) func() {
	return func() {}
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
	service core.Service
	hub     *Hub
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	hub := NewHub(100)
	svc, err := core.NewService(schema.ServiceConfig{StateDir: filepath.Join(dir, "state")}, core.ServiceDeps{
		Catalog:   cat,
		Gateway:   &recordingGateway{},
		EventSink: hub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	store, err := vault.NewStore(filepath.Join(dir, "vault.bundle"), filepath.Join(dir, "configs"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	cmds := command.NewHandler(svc, command.HandlerConfig{Catalog: cat, Configs: store})
	server := NewServer(cfg, svc, cat, cmds, store, hub)
	return &testAPI{t: t, handler: server.Handler(), service: svc, hub: hub}
}

func (a *testAPI) do(method, path, operator string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if operator != "" {
		req.Header.Set(OperatorHeader, operator)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) ok(method, path, operator string, body, out any) {
	a.t.Helper()
	rec := a.do(method, path, operator, body)
	if rec.Code != http.StatusOK {
		a.t.Fatalf("%s %s: status %d body %s", method, path, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}

func TestOperatorsAreIsolated(t *testing.T) {
	api := newTestAPI(t, Config{})
	var opened schema.OpenTabResponse
	api.ok(http.MethodPost, "/api/tabs", "alice", nil, &opened)
	if opened.Tab.ID == "" {
		t.Fatalf("expected tab id")
	}
	var list schema.ListTabsResponse
	api.ok(http.MethodGet, "/api/tabs", "bob", nil, &list)
	if len(list.Tabs) != 0 {
		t.Fatalf("expected bob to see no tabs, got %d", len(list.Tabs))
	}
	api.ok(http.MethodGet, "/api/tabs", "", nil, &list)
	if len(list.Tabs) != 0 {
		t.Fatalf("expected default operator to see no tabs, got %d", len(list.Tabs))
	}
	if rec := api.do(http.MethodGet, "/api/tabs", "Not Valid", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid operator, got %d", rec.Code)
	}
}

func TestExecutionFlow(t *testing.T) {
	api := newTestAPI(t, Config{})
	var opened schema.OpenTabResponse
	api.ok(http.MethodPost, "/api/tabs", "alice", nil, &opened)
	tabID := opened.Tab.ID

	api.ok(http.MethodPost, "/api/tabs/tool", "alice", map[string]any{"tabId": tabID, "toolId": "gan-fuzzer"}, nil)
	api.ok(http.MethodPost, "/api/tabs/params", "alice", `{"tabId":"`+string(tabID)+`","parameters":{"target-host":"10.0.0.2","target-port":38412}}`, nil)

	var executed schema.ExecuteResponse
	api.ok(http.MethodPost, "/api/tabs/execute", "alice", map[string]any{"tabId": tabID}, &executed)
	if len(executed.Commands) != 1 || !strings.Contains(executed.Commands[0].Command, "--target-host 10.0.0.2 --target-port 38412") {
		t.Fatalf("unexpected commands: %+v", executed.Commands)
	}
	if !executed.Tab.IsRunning || !executed.Tab.LockedForInteraction {
		t.Fatalf("expected running tab, got %+v", executed.Tab)
	}
	if rec := api.do(http.MethodPost, "/api/tabs/tool", "alice", map[string]any{"tabId": tabID, "toolId": "nmap"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while locked, got %d", rec.Code)
	}
	var stopped schema.StopResponse
	api.ok(http.MethodPost, "/api/tabs/stop", "alice", map[string]any{"tabId": tabID}, &stopped)
	if stopped.Tab.Status != schema.StatusStopped {
		t.Fatalf("expected stopped, got %s", stopped.Tab.Status)
	}
	var buffer schema.GetBufferResponse
	api.ok(http.MethodGet, "/api/buffer?tabId="+string(tabID), "alice", nil, &buffer)
	if buffer.Buffer.TotalLines == 0 {
		t.Fatalf("expected stop banner in transcript")
	}
	if rec := api.do(http.MethodPost, "/api/tabs/close", "alice", map[string]any{"tabId": "missing"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tab, got %d", rec.Code)
	}
	if rec := api.do(http.MethodGet, "/api/tabs/execute", "alice", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := api.do(http.MethodPost, "/api/tabs/view", "alice", map[string]any{"tabId": tabID, "viewMode": "grid"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad view mode, got %d", rec.Code)
	}
}

func TestExportImport(t *testing.T) {
	api := newTestAPI(t, Config{})
	var opened schema.OpenTabResponse
	api.ok(http.MethodPost, "/api/tabs", "alice", nil, &opened)
	api.ok(http.MethodPost, "/api/tabs/tool", "alice", map[string]any{"tabId": opened.Tab.ID, "toolId": "nmap"}, nil)

	rec := api.do(http.MethodGet, "/api/export?name=recon", "alice", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;") {
		t.Fatalf("unexpected export response: %d %v", rec.Code, rec.Header())
	}
	exported, err := schema.DecodeExportConfig(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exported.Name != "recon" || len(exported.Tabs) != 1 || exported.Tabs[0].Category != "recon" {
		t.Fatalf("unexpected export: %+v", exported)
	}

	if rec := api.do(http.MethodPost, "/api/import", "bob", `{"version":"1.0"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for import without tabs, got %d", rec.Code)
	}
	var imported schema.ImportTabsResponse
	api.ok(http.MethodPost, "/api/import", "bob", rec.Body.String(), &imported)
	if len(imported.Tabs) != 1 || imported.Tabs[0].SelectedTool != "nmap" {
		t.Fatalf("unexpected import: %+v", imported)
	}
}

func TestCommandAndCatalog(t *testing.T) {
	api := newTestAPI(t, Config{})
	var res command.Result
	api.ok(http.MethodPost, "/api/command", "alice", map[string]any{"input": "/new"}, &res)
	if res.TabID == "" || len(res.Lines) != 1 {
		t.Fatalf("unexpected command result: %+v", res)
	}
	if rec := api.do(http.MethodPost, "/api/command", "alice", map[string]any{"input": "hello"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for plain input, got %d", rec.Code)
	}
	var view struct {
		Categories []string `json:"categories"`
		Tools      []struct {
			ID      string   `json:"id"`
			Streams []string `json:"streams"`
		} `json:"tools"`
	}
	api.ok(http.MethodGet, "/api/catalog", "", nil, &view)
	found := false
	for _, tool := range view.Tools {
		if tool.ID == "ueransim" {
			found = len(tool.Streams) == 2
		}
	}
	if !found || len(view.Categories) == 0 {
		t.Fatalf("unexpected catalog view: %+v", view)
	}
}

func TestConfigsVault(t *testing.T) {
	api := newTestAPI(t, Config{})
	api.ok(http.MethodPost, "/api/tabs", "alice", nil, nil)
	api.ok(http.MethodPost, "/api/configs", "alice", map[string]any{"name": "lab"}, nil)

	var listed struct {
		Configs []vault.Entry `json:"configs"`
	}
	api.ok(http.MethodGet, "/api/configs", "alice", nil, &listed)
	if len(listed.Configs) != 1 || listed.Configs[0].Name != "lab" {
		t.Fatalf("unexpected configs: %+v", listed)
	}
	var imported schema.ImportTabsResponse
	api.ok(http.MethodPost, "/api/configs/load", "alice", map[string]any{"name": "lab"}, &imported)
	if len(imported.Tabs) != 1 {
		t.Fatalf("unexpected load result: %+v", imported)
	}
	api.ok(http.MethodDelete, "/api/configs?name=lab", "alice", nil, nil)
	if rec := api.do(http.MethodPost, "/api/configs/load", "alice", map[string]any{"name": "lab"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestBasePathPrefix(t *testing.T) {
	api := newTestAPI(t, Config{BasePath: "/deck/"})
	if rec := api.do(http.MethodGet, "/deck/api/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected prefixed route, got %d", rec.Code)
	}
	if rec := api.do(http.MethodGet, "/api/health", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected unprefixed route to 404, got %d", rec.Code)
	}
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	api := newTestAPI(t, Config{})
	api.ok(http.MethodPost, "/api/tabs", "alice", nil, nil)
	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(OperatorHeader, "alice")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	scanner := bufio.NewScanner(resp.Body)
	next := func() StreamEvent {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var event StreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return event
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return StreamEvent{}
	}

	first := next()
	if first.Type != streamSnapshot || first.Snapshot == nil || len(first.Snapshot.Tabs) != 1 {
		t.Fatalf("unexpected snapshot: %+v", first)
	}
	if _, err := api.service.OpenTab(context.Background(), schema.OpenTabRequest{UserID: "alice"}); err != nil {
		t.Fatalf("open tab: %v", err)
	}
	event := next()
	if event.Type != streamTab || event.TabEvent != string(schema.TabEventCreated) || event.Seq == 0 {
		t.Fatalf("unexpected live event: %+v", event)
	}
}
