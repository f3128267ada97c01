package core

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/schema"
)

// afterFunc schedules the readiness watchdog; tests replace it.
var afterFunc = func(d time.Duration, fn func()) (stop func() bool) {
	return time.AfterFunc(d, fn).Stop
}

func (s *service) Execute(ctx context.Context, req schema.ExecuteRequest) (schema.ExecuteResponse, error) {
	var commands []schema.ResolvedCommand
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "execute", schema.TabEventStatus, func(tb *tab, fx *effects) error {
		if s.gateway == nil {
			return schema.ErrGatewayUnavailable
		}
		if tb.locked() {
			return schema.ErrTabLocked
		}
		tool, hasTool := s.tool(tb.Tool)
		if tb.Tool != "" && !hasTool {
			return fmt.Errorf("%w: %s", schema.ErrUnknownTool, tb.Tool)
		}
		var attack *catalog.Attack
		if hasTool && tb.Attack != "" {
			if found, ok := tool.Attack(tb.Attack); ok {
				attack = &found
			}
		}
		resolution, err := Resolve(tool, attack, tb.Params, tb.CustomCommand)
		if err != nil {
			return err
		}
		commands = resolution.Commands()
		if len(commands) == 0 {
			return schema.ErrNoCommand
		}

		var params schema.Parameters
		if hasTool {
			params = SanitizeParameters(tool.ParamsFor(attack), tb.Params)
			if tool.IsMultiOutput() && len(tb.streamOrder) == 0 {
				tb.resetStreams(tool, s.cfg.BufferMaxLines)
			}
		} else {
			params = tb.Params.Clone()
		}

		tb.clearTranscripts()
		fx.tabs = append(fx.tabs, schema.TabEvent{UserID: s.owners[tb.ID], Type: schema.TabEventCleared, Tab: tb.Snapshot(false)})
		s.applyLocked(s.owners[tb.ID], tb, stateUpdate{
			Status:      statusPtr(schema.StatusRunning),
			Loading:     boolPtr(true),
			IframeReady: boolPtr(false),
		}, fx)
		tb.runSeq++
		s.armWatchdogLocked(s.owners[tb.ID], tb, tool)

		for _, cmd := range commands {
			msg := schema.OutboundMessage{
				Type:       schema.MessageExecute,
				TabID:      tb.ID,
				Command:    cmd.Command,
				Parameters: params.Clone(),
			}
			if cmd.StreamID != "" {
				msg.Type = schema.MessageExecuteMulti
				msg.OutputID = cmd.StreamID
				msg.WorkingDirectory = cmd.WorkingDirectory
			}
			fx.sends = append(fx.sends, msg)
		}
		return nil
	})
	if err != nil {
		return schema.ExecuteResponse{}, err
	}
	if !s.cfg.DisableAuditLogging {
		log := logx.WithTool(logx.WithUserTab(ctx, req.UserID, req.TabID), snap.SelectedTool, snap.SelectedAttack)
		for _, cmd := range commands {
			logx.WithStream(log, cmd.StreamID).Debug("audit command", "command_type", "attack", "command", cmd.Command, "workdir", cmd.WorkingDirectory)
		}
	}
	return schema.ExecuteResponse{Tab: snap, Commands: commands}, nil
}

// Stop is always permitted. The stop message is sent even for idle tabs so
// the executor can reap anything it still holds for the tab.
func (s *service) Stop(ctx context.Context, req schema.StopRequest) (schema.StopResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "stop", schema.TabEventStatus, func(tb *tab, fx *effects) error {
		fx.sends = append(fx.sends, stopMessage(tb.ID))
		s.applyLocked(s.owners[tb.ID], tb, stateUpdate{Status: statusPtr(schema.StatusStopped)}, fx)
		return nil
	})
	return schema.StopResponse{Tab: snap}, err
}

// armWatchdogLocked starts the readiness timer for a run of a tool that
// announces readiness. The timer only clears Loading; it never stops the run.
func (s *service) armWatchdogLocked(userID schema.UserID, tb *tab, tool *catalog.Tool) {
	tb.disarmWatchdog()
	if s.cfg.LoadingTimeout <= 0 || !announcesReadiness(tool) {
		return
	}
	tabID := tb.ID
	seq := tb.runSeq
	timeout := s.cfg.LoadingTimeout
	tb.stopWatchdog = afterFunc(timeout, func() {
		s.loadingTimedOut(userID, tabID, seq, timeout)
	})
}

func (s *service) loadingTimedOut(userID schema.UserID, tabID schema.TabID, seq uint64, timeout time.Duration) {
	log := s.logger.With("user", userID, "tab", tabID)
	s.mu.Lock()
	state := s.userTabs[userID]
	var tb *tab
	if state != nil {
		tb = state.tabs[tabID]
	}
	if tb == nil || tb.runSeq != seq || !tb.running() || !tb.Loading {
		s.mu.Unlock()
		return
	}
	tb.stopWatchdog = nil
	fx := &effects{}
	s.applyLocked(userID, tb, stateUpdate{Loading: boolPtr(false)}, fx)
	fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventStatus, Tab: tb.Snapshot(state.active == tabID), ActiveTab: state.active})
	fx.notes = append(fx.notes, schema.NotificationEvent{
		UserID:  userID,
		TabID:   tabID,
		Level:   schema.NotifyWarning,
		Title:   schema.NotifyTitleTimeout,
		Message: fmt.Sprintf("no readiness signal from the executor after %s", timeout),
	})
	s.mu.Unlock()
	log.Warn("service readiness timeout", "timeout", timeout)
	s.flush(context.Background(), log, userID, fx)
}

func announcesReadiness(tool *catalog.Tool) bool {
	if tool == nil {
		return false
	}
	if tool.ReadyMarker("") != "" {
		return true
	}
	for _, id := range tool.StreamIDs() {
		if tool.ReadyMarker(id) != "" {
			return true
		}
	}
	return false
}
