package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/schema"
)

var exportNow = time.Now

// ExportTabs captures every tab's selections. Parameters are sanitized
// against the selected attack's schema; transcripts and execution flags are
// never exported.
func (s *service) ExportTabs(ctx context.Context, req schema.ExportTabsRequest) (schema.ExportTabsResponse, error) {
	if ctx == nil {
		return schema.ExportTabsResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ExportTabsResponse{}, err
	}
	log := logx.WithUser(ctx, userID)

	s.mu.Lock()
	state := s.getOrCreateUserStateLocked(userID)
	tabs := make([]schema.ExportedTab, 0, len(state.order))
	for _, id := range state.order {
		tb := state.tabs[id]
		if tb == nil {
			continue
		}
		exported := schema.ExportedTab{
			SelectedTool:     tb.Tool,
			SelectedAttack:   tb.Attack,
			Parameters:       SanitizeParameters(nil, tb.Params),
			SelectedCategory: tb.Category,
			CustomCommand:    tb.CustomCommand,
		}
		if tool, ok := s.tool(tb.Tool); ok {
			exported.Category = tool.Category
			exported.Parameters = SanitizeParameters(tool.ParamsFor(s.attackOrFirst(tool, tb.Attack)), tb.Params)
		}
		tabs = append(tabs, exported)
	}
	s.mu.Unlock()

	cfg := schema.NewExportConfig(req.Name, tabs, exportNow())
	log.Info("service tabs exported", "tabs", len(cfg.Tabs), "name", cfg.Name)
	return schema.ExportTabsResponse{Config: cfg}, nil
}

// ImportTabs replaces every tab with the imported selections. Entries naming
// a tool missing from the catalog are dropped whole; if none survive, one
// fresh tab is opened. Running tabs are stopped before they are discarded.
func (s *service) ImportTabs(ctx context.Context, req schema.ImportTabsRequest) (schema.ImportTabsResponse, error) {
	if ctx == nil {
		return schema.ImportTabsResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ImportTabsResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	if req.Config.Tabs == nil {
		err := fmt.Errorf("%w: missing tabs array", schema.ErrInvalidImport)
		log.Warn("service tabs import failed", "err", err)
		return schema.ImportTabsResponse{}, err
	}

	s.mu.Lock()
	state := s.getOrCreateUserStateLocked(userID)
	fx := &effects{persist: true}
	s.closeAllLocked(userID, state, fx)

	dropped := 0
	for _, entry := range req.Config.Tabs {
		if entry.SelectedTool != "" {
			if _, ok := s.tool(entry.SelectedTool); !ok {
				dropped++
				log.Debug("service tab import dropped", "tool", entry.SelectedTool)
				continue
			}
		}
		tb := s.addTabLocked(userID, state)
		tb.Category = entry.SelectedCategory
		tb.CustomCommand = entry.CustomCommand
		if tool, ok := s.tool(entry.SelectedTool); ok {
			attack := s.attackOrFirst(tool, entry.SelectedAttack)
			s.selectToolLocked(tb, tool, attack)
			tb.Params = SanitizeParameters(tool.ParamsFor(attack), entry.Parameters)
		}
	}
	if len(state.order) == 0 {
		s.addTabLocked(userID, state)
	}
	state.active = state.order[0]
	for _, id := range state.order {
		tb := state.tabs[id]
		fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventCreated, Tab: tb.Snapshot(id == state.active), ActiveTab: state.active})
	}
	resp := schema.ImportTabsResponse{Tabs: s.snapshotsLocked(state), ActiveTab: state.active, Dropped: dropped}
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	log.Info("service tabs imported", "tabs", len(resp.Tabs), "dropped", dropped, "name", req.Config.Name)
	return resp, nil
}
