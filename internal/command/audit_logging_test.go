package command

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

func newAuditHarness(t *testing.T, cfg HandlerConfig) (*Handler, *logCapture, context.Context) {
	t.Helper()
	capture := newLogCapture(t)
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	svc, err := core.NewService(schema.ServiceConfig{StateDir: t.TempDir()}, core.ServiceDeps{Gateway: &recordingGateway{}, Logger: logger})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return NewHandler(svc, cfg), capture, ctx
}

func TestHandleSlashAuditLog(t *testing.T) {
	handler, capture, ctx := newAuditHarness(t, HandlerConfig{})
	if _, _, err := handler.Handle(ctx, "alice", "", "/new"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, handled, err := handler.Handle(ctx, "alice", "", "  /custom nmap -sS 10.0.0.1 "); err != nil || !handled {
		t.Fatalf("Handle: handled=%v err=%v", handled, err)
	}
	if !hasAuditCommand(capture.Entries(), "slash", "/custom nmap -sS 10.0.0.1") {
		t.Fatalf("expected audit log for slash command")
	}
}

func TestHandleAuditLogDisabled(t *testing.T) {
	handler, capture, ctx := newAuditHarness(t, HandlerConfig{DisableAuditLogging: true})
	if _, _, err := handler.Handle(ctx, "alice", "", "/new"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for _, entry := range capture.Entries() {
		if entry.Message == "audit command" {
			t.Fatalf("unexpected audit entry: %s", entry.Raw)
		}
	}
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
	Raw     string
}

type logCapture struct {
	t     *testing.T
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func newLogCapture(t *testing.T) *logCapture {
	t.Helper()
	return &logCapture{t: t}
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.buf.Write(p)
	for {
		data := c.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		line := string(data[:idx])
		c.lines = append(c.lines, line)
		c.buf.Next(idx + 1)
	}
	return len(p), nil
}

func (c *logCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() > 0 {
		c.lines = append(c.lines, c.buf.String())
		c.buf.Reset()
	}
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *logCapture) Entries() []logEntry {
	lines := c.Lines()
	entries := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLogEntry(line))
	}
	return entries
}

func parseLogEntry(line string) logEntry {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return logEntry{Raw: line}
	}
	level := ""
	if value, ok := payload["level"].(string); ok {
		level = value
	} else if value, ok := payload["lvl"].(string); ok {
		level = value
	}
	message := ""
	if value, ok := payload["message"].(string); ok {
		message = value
	} else if value, ok := payload["msg"].(string); ok {
		message = value
	}
	return logEntry{Level: level, Message: message, Fields: payload, Raw: line}
}

func hasAuditCommand(entries []logEntry, commandType, command string) bool {
	for _, entry := range entries {
		if entry.Level != "debug" || entry.Message != "audit command" {
			continue
		}
		if entry.Fields == nil {
			continue
		}
		if entry.Fields["command_type"] == commandType && entry.Fields["command"] == command {
			return true
		}
	}
	return false
}
