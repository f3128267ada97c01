package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// journal records gateway sends and sink events in a single order so tests
// can assert sequencing across both.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeGateway struct {
	journal  *journal
	mu       sync.Mutex
	sent     []schema.OutboundMessage
	handlers map[schema.EventKind][]func(schema.InboundMessage)
	sendErr  error
	// onSend runs after a successful send, outside the gateway lock.
	onSend func(schema.OutboundMessage)
}

func newFakeGateway(j *journal) *fakeGateway {
	return &fakeGateway{journal: j, handlers: make(map[schema.EventKind][]func(schema.InboundMessage))}
}

func (g *fakeGateway) Send(_ context.Context, msg schema.OutboundMessage) error {
	g.mu.Lock()
	err := g.sendErr
	if err == nil {
		g.sent = append(g.sent, msg)
	}
	onSend := g.onSend
	g.mu.Unlock()
	if err == nil && g.journal != nil {
		g.journal.add("send %s %s", msg.Type, msg.TabID)
	}
	if err == nil && onSend != nil {
		onSend(msg)
	}
	return err
}

func (g *fakeGateway) Subscribe(kind schema.EventKind, handler func(schema.InboundMessage)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[kind] = append(g.handlers[kind], handler)
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.handlers, kind)
	}
}

// deliver invokes the handlers subscribed to msg.Type, as the transport would.
func (g *fakeGateway) deliver(msg schema.InboundMessage) {
	g.mu.Lock()
	handlers := append(([]func(schema.InboundMessage))(nil), g.handlers[msg.Type]...)
	g.mu.Unlock()
	for _, handler := range handlers {
		handler(msg)
	}
}

func (g *fakeGateway) messages() []schema.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]schema.OutboundMessage(nil), g.sent...)
}

func (g *fakeGateway) count(kind schema.MessageType, tabID schema.TabID) int {
	n := 0
	for _, msg := range g.messages() {
		if msg.Type == kind && msg.TabID == tabID {
			n++
		}
	}
	return n
}

type recordingSink struct {
	journal *journal
	mu      sync.Mutex
	outputs []schema.OutputEvent
	tabs    []schema.TabEvent
	notes   []schema.NotificationEvent
}

func (s *recordingSink) OnOutput(event schema.OutputEvent) {
	s.mu.Lock()
	s.outputs = append(s.outputs, event)
	s.mu.Unlock()
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent) {
	s.mu.Lock()
	s.tabs = append(s.tabs, event)
	s.mu.Unlock()
	if s.journal != nil {
		s.journal.add("tab %s %s", event.Type, event.Tab.ID)
	}
}

func (s *recordingSink) OnNotification(event schema.NotificationEvent) {
	s.mu.Lock()
	s.notes = append(s.notes, event)
	s.mu.Unlock()
}

func (s *recordingSink) notifications() []schema.NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.NotificationEvent(nil), s.notes...)
}

type harness struct {
	svc     Service
	gw      *fakeGateway
	sink    *recordingSink
	journal *journal
	user    schema.UserID
	ctx     context.Context
}

func newHarness(t *testing.T, cfg schema.ServiceConfig) *harness {
	t.Helper()
	if cfg.StateDir == "" {
		cfg.StateDir = t.TempDir()
	}
	j := &journal{}
	gw := newFakeGateway(j)
	sink := &recordingSink{journal: j}
	svc, err := NewService(cfg, ServiceDeps{Gateway: gw, EventSink: sink})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return &harness{svc: svc, gw: gw, sink: sink, journal: j, user: "alice", ctx: context.Background()}
}

func (h *harness) open(t *testing.T) schema.TabSnapshot {
	t.Helper()
	resp, err := h.svc.OpenTab(h.ctx, schema.OpenTabRequest{UserID: h.user})
	if err != nil {
		t.Fatalf("open tab: %v", err)
	}
	return resp.Tab
}

func (h *harness) selectTool(t *testing.T, tabID schema.TabID, toolID schema.ToolID) schema.TabSnapshot {
	t.Helper()
	resp, err := h.svc.SelectTool(h.ctx, schema.SelectToolRequest{UserID: h.user, TabID: tabID, ToolID: toolID})
	if err != nil {
		t.Fatalf("select tool %s: %v", toolID, err)
	}
	return resp.Tab
}

func (h *harness) execute(t *testing.T, tabID schema.TabID) schema.ExecuteResponse {
	t.Helper()
	resp, err := h.svc.Execute(h.ctx, schema.ExecuteRequest{UserID: h.user, TabID: tabID})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	return resp
}

func (h *harness) tab(t *testing.T, tabID schema.TabID) schema.TabSnapshot {
	t.Helper()
	resp, err := h.svc.ListTabs(h.ctx, schema.ListTabsRequest{UserID: h.user})
	if err != nil {
		t.Fatalf("list tabs: %v", err)
	}
	for _, tab := range resp.Tabs {
		if tab.ID == tabID {
			assertDerivedFlags(t, tab)
			return tab
		}
	}
	t.Fatalf("tab %s not found in %+v", tabID, resp.Tabs)
	return schema.TabSnapshot{}
}

func (h *harness) transcript(t *testing.T, tabID schema.TabID, stream schema.StreamID) []string {
	t.Helper()
	resp, err := h.svc.GetBuffer(h.ctx, schema.GetBufferRequest{UserID: h.user, TabID: tabID, StreamID: stream})
	if err != nil {
		t.Fatalf("get buffer: %v", err)
	}
	return resp.Buffer.Lines
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) Entries() []logEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entries []logEntry
	for _, line := range bytes.Split(c.buf.Bytes(), []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		payload := map[string]any{}
		if err := json.Unmarshal(line, &payload); err != nil {
			continue
		}
		entry := logEntry{Fields: payload}
		if value, ok := payload["level"].(string); ok {
			entry.Level = value
		} else if value, ok := payload["lvl"].(string); ok {
			entry.Level = value
		}
		if value, ok := payload["message"].(string); ok {
			entry.Message = value
		} else if value, ok := payload["msg"].(string); ok {
			entry.Message = value
		}
		entries = append(entries, entry)
	}
	return entries
}

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
}
