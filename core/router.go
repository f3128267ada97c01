package core

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/schema"
)

var exitCodePattern = regexp.MustCompile(`(?i)process exited with code (-?\d+)`)

type tabFlags struct {
	status  schema.SessionStatus
	loading bool
	ready   bool
}

func flagsOf(tb *tab) tabFlags {
	return tabFlags{status: tb.Status, loading: tb.Loading, ready: tb.IframeReady}
}

// Route demultiplexes an inbound gateway message to its tab. Messages for
// unknown tabs are discarded.
func (s *service) Route(ctx context.Context, msg schema.InboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	userID, ok := s.owners[msg.TabID]
	var state *userState
	var tb *tab
	if ok {
		state = s.userTabs[userID]
		if state != nil {
			tb = state.tabs[msg.TabID]
		}
	}
	if tb == nil {
		s.mu.Unlock()
		s.logger.Trace("service route discarded", "tab", msg.TabID, "type", msg.Type)
		return false
	}
	log := logx.WithStream(logx.WithUserTab(ctx, userID, tb.ID), msg.OutputID)
	before := flagsOf(tb)
	fx := &effects{}
	switch msg.Type {
	case schema.EventOutput, schema.EventMessage:
		s.routeOutputLocked(userID, tb, msg, fx)
	case schema.EventError:
		s.routeErrorLocked(userID, tb, msg, fx)
	case schema.EventNotification:
		fx.notes = append(fx.notes, schema.NotificationEvent{
			UserID:  userID,
			TabID:   tb.ID,
			Level:   schema.NotifyInfo,
			Title:   schema.NotifyTitleExecutor,
			Message: msg.Text(),
		})
	default:
		s.mu.Unlock()
		log.Debug("service route ignored", "type", msg.Type)
		return false
	}
	if after := flagsOf(tb); after != before {
		fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventStatus, Tab: tb.Snapshot(state.active == tb.ID), ActiveTab: state.active})
		log.Info("service tab status changed", "from", before.status, "to", after.status, "loading", after.loading, "ready", after.ready)
	}
	fx.persist = len(fx.outputs) > 0 || len(fx.tabs) > 0
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	return true
}

// targetLocked returns the transcript a message belongs to. Stream ids are
// honoured only for multi-output tabs.
func (s *service) targetLocked(tb *tab, streamID schema.StreamID) (*buffer, schema.StreamID) {
	if streamID != "" && tb.multiOutput() {
		return tb.stream(streamID, s.cfg.BufferMaxLines), streamID
	}
	return tb.output, ""
}

func (s *service) routeOutputLocked(userID schema.UserID, tb *tab, msg schema.InboundMessage, fx *effects) {
	text := strings.TrimRight(msg.Text(), " \t\r\n")
	if text == "" {
		return
	}
	buf, streamID := s.targetLocked(tb, msg.OutputID)
	if !buf.AppendUnique(text) {
		return
	}
	fx.outputs = append(fx.outputs, schema.OutputEvent{UserID: userID, TabID: tb.ID, StreamID: streamID, Lines: []string{text}})
	if !tb.running() {
		return
	}
	if tool, ok := s.tool(tb.Tool); ok && tb.Loading {
		if marker := tool.ReadyMarker(streamID); marker != "" && strings.Contains(text, marker) {
			s.applyLocked(userID, tb, stateUpdate{Loading: boolPtr(false), IframeReady: boolPtr(true)}, fx)
		}
	}
	if code, ok := exitCode(text); ok {
		s.streamExitedLocked(userID, tb, streamID, code, fx)
	}
}

// streamExitedLocked finishes the run once every stream has reported its
// exit code.
func (s *service) streamExitedLocked(userID schema.UserID, tb *tab, streamID schema.StreamID, code int, fx *effects) {
	if tb.exited == nil {
		tb.exited = make(map[schema.StreamID]bool)
	}
	tb.exited[streamID] = code == 0
	if tb.multiOutput() {
		for _, id := range tb.streamOrder {
			if _, done := tb.exited[id]; !done {
				return
			}
		}
	}
	status := schema.StatusCompleted
	for _, clean := range tb.exited {
		if !clean {
			status = schema.StatusError
		}
	}
	s.applyLocked(userID, tb, stateUpdate{Status: statusPtr(status)}, fx)
}

func (s *service) routeErrorLocked(userID schema.UserID, tb *tab, msg schema.InboundMessage, fx *effects) {
	text := strings.TrimRight(msg.Text(), " \t\r\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	buf, streamID := s.targetLocked(tb, msg.OutputID)
	buf.Append(text)
	fx.outputs = append(fx.outputs, schema.OutputEvent{UserID: userID, TabID: tb.ID, StreamID: streamID, Lines: []string{text}})

	note := schema.NotificationEvent{UserID: userID, TabID: tb.ID, Level: schema.NotifyWarning, Title: schema.NotifyTitleError, Message: text}
	if tb.running() && s.classifier.IsFatal(text) {
		note.Level = schema.NotifyError
		note.Title = schema.NotifyTitleFatal
		fx.sends = append(fx.sends, stopMessage(tb.ID))
		s.applyLocked(userID, tb, stateUpdate{Status: statusPtr(schema.StatusError)}, fx)
	}
	fx.notes = append(fx.notes, note)
}

func exitCode(line string) (int, bool) {
	match := exitCodePattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	code, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
