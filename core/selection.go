package core

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/schema"
)

func (s *service) SelectTool(ctx context.Context, req schema.SelectToolRequest) (schema.SelectToolResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "tool select", schema.TabEventUpdated, func(tb *tab, fx *effects) error {
		if tb.locked() {
			return schema.ErrTabLocked
		}
		if req.ToolID == "" {
			tb.Tool = ""
			tb.Attack = ""
			tb.Params = schema.Parameters{}
			tb.resetStreams(nil, s.cfg.BufferMaxLines)
			rearm(tb)
			return nil
		}
		tool, ok := s.tool(req.ToolID)
		if !ok {
			return fmt.Errorf("%w: %s", schema.ErrUnknownTool, req.ToolID)
		}
		s.selectToolLocked(tb, tool, nil)
		return nil
	})
	return schema.SelectToolResponse{Tab: snap}, err
}

func (s *service) SelectAttack(ctx context.Context, req schema.SelectAttackRequest) (schema.SelectAttackResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "attack select", schema.TabEventUpdated, func(tb *tab, fx *effects) error {
		if tb.locked() {
			return schema.ErrTabLocked
		}
		tool, ok := s.tool(tb.Tool)
		if !ok {
			return schema.ErrNoTool
		}
		attack, ok := tool.Attack(req.AttackID)
		if !ok {
			return fmt.Errorf("%w: %s", schema.ErrUnknownAttack, req.AttackID)
		}
		tb.Attack = attack.ID
		tb.Params = catalog.DefaultParams(tool.ParamsFor(&attack))
		rearm(tb)
		return nil
	})
	return schema.SelectAttackResponse{Tab: snap}, err
}

func (s *service) SelectCategory(ctx context.Context, req schema.SelectCategoryRequest) (schema.SelectCategoryResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "category select", schema.TabEventUpdated, func(tb *tab, fx *effects) error {
		if tb.locked() {
			return schema.ErrTabLocked
		}
		tb.Category = schema.Category(strings.TrimSpace(string(req.Category)))
		return nil
	})
	return schema.SelectCategoryResponse{Tab: snap}, err
}

func (s *service) SetParameters(ctx context.Context, req schema.SetParametersRequest) (schema.SetParametersResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "parameters set", schema.TabEventUpdated, func(tb *tab, fx *effects) error {
		if tb.locked() {
			return schema.ErrTabLocked
		}
		next := tb.Params.Clone()
		if req.Replace {
			next = schema.Parameters{}
		}
		for key, value := range req.Parameters {
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("%w: empty parameter name", schema.ErrInvalidRequest)
			}
			next[key] = value
		}
		tb.Params = next
		return nil
	})
	return schema.SetParametersResponse{Tab: snap}, err
}

func (s *service) SetCustomCommand(ctx context.Context, req schema.SetCustomCommandRequest) (schema.SetCustomCommandResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "custom command set", schema.TabEventUpdated, func(tb *tab, fx *effects) error {
		if tb.locked() {
			return schema.ErrTabLocked
		}
		tb.CustomCommand = strings.TrimSpace(req.Command)
		return nil
	})
	return schema.SetCustomCommandResponse{Tab: snap}, err
}

// SetViewMode only changes presentation, so it is allowed while locked.
func (s *service) SetViewMode(ctx context.Context, req schema.SetViewModeRequest) (schema.SetViewModeResponse, error) {
	snap, err := s.updateTab(ctx, req.UserID, req.TabID, "view mode set", schema.TabEventUpdated, func(tb *tab, fx *effects) error {
		if !tb.multiOutput() {
			return fmt.Errorf("%w: tab has a single output", schema.ErrInvalidViewMode)
		}
		if req.ViewMode != "" {
			mode, err := schema.NormalizeViewMode(string(req.ViewMode))
			if err != nil {
				return err
			}
			tb.viewMode = mode
		}
		if req.ActiveOutput != "" {
			if _, ok := tb.streams[req.ActiveOutput]; !ok {
				return fmt.Errorf("%w: %s", schema.ErrUnknownStream, req.ActiveOutput)
			}
			tb.activeOutput = req.ActiveOutput
		}
		return nil
	})
	return schema.SetViewModeResponse{Tab: snap}, err
}

// selectToolLocked selects tool and the given attack (or the tool's first),
// resetting parameters to that attack's defaults.
func (s *service) selectToolLocked(tb *tab, tool *catalog.Tool, attack *catalog.Attack) {
	if attack == nil {
		if first, ok := tool.FirstAttack(); ok {
			attack = &first
		}
	}
	tb.Tool = tool.ID
	tb.Attack = ""
	if attack != nil {
		tb.Attack = attack.ID
	}
	tb.Params = catalog.DefaultParams(tool.ParamsFor(attack))
	tb.resetStreams(tool, s.cfg.BufferMaxLines)
	rearm(tb)
}

// attackOrFirst returns the named attack, falling back to the tool's first.
func (s *service) attackOrFirst(tool *catalog.Tool, id schema.AttackID) *catalog.Attack {
	if id != "" {
		if attack, ok := tool.Attack(id); ok {
			return &attack
		}
	}
	if first, ok := tool.FirstAttack(); ok {
		return &first
	}
	return nil
}

// rearm returns a finished tab to idle after a new selection.
func rearm(tb *tab) {
	if tb.Status.Terminal() {
		reconcile(tb, stateUpdate{Status: statusPtr(schema.StatusIdle)})
	}
}
