package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/internal/fatal"
	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/internal/persist"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior. Every mutation of tab state
// happens under mu; gateway sends and sink events are published after the
// lock is released, in the order the mutation produced them.
type service struct {
	cfg         schema.ServiceConfig
	catalog     *catalog.Catalog
	gateway     Gateway
	classifier  fatal.Classifier
	sink        EventSink
	store       *persist.Store
	logger      pslog.Logger
	mu          sync.Mutex
	userTabs    map[schema.UserID]*userState
	owners      map[schema.TabID]schema.UserID
	unsubscribe []func()
}

type userState struct {
	tabs   map[schema.TabID]*tab
	order  []schema.TabID
	active schema.TabID
}

// effects collects what a locked mutation must publish once the lock is
// released.
type effects struct {
	sends   []schema.OutboundMessage
	outputs []schema.OutputEvent
	tabs    []schema.TabEvent
	notes   []schema.NotificationEvent
	persist bool
}

// NewService constructs the core service implementation and subscribes it to
// every inbound gateway event kind.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Catalog == nil {
		deps.Catalog, err = catalog.Default()
		if err != nil {
			return nil, err
		}
	}
	if deps.Classifier == nil {
		deps.Classifier = fatal.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	store, err := persist.NewStoreWithLogger(cfg.StateDir, deps.Logger)
	if err != nil {
		return nil, err
	}
	s := &service{
		cfg:        cfg,
		catalog:    deps.Catalog,
		gateway:    deps.Gateway,
		classifier: deps.Classifier,
		sink:       deps.EventSink,
		store:      store,
		logger:     logger,
		userTabs:   make(map[schema.UserID]*userState),
		owners:     make(map[schema.TabID]schema.UserID),
	}
	if s.gateway != nil {
		for _, kind := range schema.EventKinds {
			cancel := s.gateway.Subscribe(kind, func(msg schema.InboundMessage) {
				if msg.Type == "" {
					msg.Type = kind
				}
				s.Route(pslog.ContextWithLogger(context.Background(), s.logger), msg)
			})
			if cancel != nil {
				s.unsubscribe = append(s.unsubscribe, cancel)
			}
		}
	}
	return s, nil
}

func (s *service) Close() {
	s.mu.Lock()
	cancels := s.unsubscribe
	s.unsubscribe = nil
	for _, state := range s.userTabs {
		for _, tb := range state.tabs {
			tb.disarmWatchdog()
		}
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *service) OpenTab(ctx context.Context, req schema.OpenTabRequest) (schema.OpenTabResponse, error) {
	if ctx == nil {
		return schema.OpenTabResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.OpenTabResponse{}, err
	}
	log := logx.WithUser(ctx, userID)

	s.mu.Lock()
	state := s.getOrCreateUserStateLocked(userID)
	tb := s.addTabLocked(userID, state)
	state.active = tb.ID
	snap := tb.Snapshot(true)
	fx := &effects{persist: true}
	fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventCreated, Tab: snap, ActiveTab: state.active})
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	log.Info("service tab opened", "tab", tb.ID, "tab_name", tb.Name)
	return schema.OpenTabResponse{Tab: snap}, nil
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	if ctx == nil {
		return schema.CloseTabResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.CloseTabResponse{}, err
	}
	log := logx.WithUserTab(ctx, userID, req.TabID)

	s.mu.Lock()
	state, tb, err := s.lookupLocked(userID, req.TabID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service tab close failed", "err", err)
		return schema.CloseTabResponse{}, err
	}
	fx := &effects{persist: true}
	stopped := tb.running()
	if stopped {
		fx.sends = append(fx.sends, stopMessage(tb.ID))
	}
	wasActive := state.active == tb.ID
	s.removeTabLocked(state, tb)
	if wasActive {
		state.active = lastTab(state)
	}
	snap := tb.Snapshot(false)
	fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventClosed, Tab: snap, ActiveTab: state.active})
	if wasActive && state.active != "" {
		next := state.tabs[state.active]
		fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventActivated, Tab: next.Snapshot(true), ActiveTab: state.active})
	}
	resp := schema.CloseTabResponse{Tab: snap, ActiveTab: state.active, Stopped: stopped}
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	log.Info("service tab closed", "stopped", stopped, "active", resp.ActiveTab)
	return resp, nil
}

func (s *service) CloseAllTabs(ctx context.Context, req schema.CloseAllTabsRequest) (schema.CloseAllTabsResponse, error) {
	if ctx == nil {
		return schema.CloseAllTabsResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.CloseAllTabsResponse{}, err
	}
	log := logx.WithUser(ctx, userID)

	s.mu.Lock()
	state := s.getOrCreateUserStateLocked(userID)
	fx := &effects{persist: true}
	resp := s.closeAllLocked(userID, state, fx)
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	log.Info("service tabs closed", "closed", resp.Closed, "stopped", resp.Stopped)
	return resp, nil
}

// closeAllLocked stops every running tab, then discards all tabs.
func (s *service) closeAllLocked(userID schema.UserID, state *userState, fx *effects) schema.CloseAllTabsResponse {
	var resp schema.CloseAllTabsResponse
	for _, id := range append([]schema.TabID(nil), state.order...) {
		tb := state.tabs[id]
		if tb == nil {
			continue
		}
		if tb.running() {
			fx.sends = append(fx.sends, stopMessage(tb.ID))
			resp.Stopped++
		}
		s.removeTabLocked(state, tb)
		resp.Closed++
		fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventClosed, Tab: tb.Snapshot(false)})
	}
	state.active = ""
	return resp
}

func (s *service) ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	if ctx == nil {
		return schema.ListTabsResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ListTabsResponse{}, err
	}
	log := logx.WithUser(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getOrCreateUserStateLocked(userID)
	resp := schema.ListTabsResponse{Tabs: s.snapshotsLocked(state), ActiveTab: state.active}
	log.Trace("service tabs listed", "count", len(resp.Tabs), "active", resp.ActiveTab)
	return resp, nil
}

func (s *service) ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error) {
	if ctx == nil {
		return schema.ActivateTabResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ActivateTabResponse{}, err
	}
	log := logx.WithUserTab(ctx, userID, req.TabID)

	s.mu.Lock()
	state, tb, err := s.lookupLocked(userID, req.TabID)
	if err != nil {
		s.mu.Unlock()
		log.Warn("service tab activate failed", "err", err)
		return schema.ActivateTabResponse{}, err
	}
	state.active = tb.ID
	snap := tb.Snapshot(true)
	fx := &effects{persist: true}
	fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: schema.TabEventActivated, Tab: snap, ActiveTab: state.active})
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	log.Info("service tab activated")
	return schema.ActivateTabResponse{Tab: snap}, nil
}

func (s *service) GetBuffer(ctx context.Context, req schema.GetBufferRequest) (schema.GetBufferResponse, error) {
	if ctx == nil {
		return schema.GetBufferResponse{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.GetBufferResponse{}, err
	}
	log := logx.WithUserTab(ctx, userID, req.TabID)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, tb, err := s.lookupLocked(userID, req.TabID)
	if err != nil {
		log.Warn("service buffer fetch failed", "err", err)
		return schema.GetBufferResponse{}, err
	}
	buf := tb.output
	if req.StreamID != "" {
		var ok bool
		if buf, ok = tb.streams[req.StreamID]; !ok {
			log.Warn("service buffer fetch failed", "stream", req.StreamID, "err", schema.ErrUnknownStream)
			return schema.GetBufferResponse{}, schema.ErrUnknownStream
		}
	}
	return schema.GetBufferResponse{Buffer: schema.BufferSnapshot{
		TabID:      tb.ID,
		StreamID:   req.StreamID,
		Lines:      buf.Tail(req.Limit),
		TotalLines: buf.Len(),
	}}, nil
}

// updateTab runs fn against a tab under the lock. When fn succeeds an event
// of eventType is queued with the resulting snapshot and all effects are
// published. When it fails nothing is published.
func (s *service) updateTab(ctx context.Context, userID schema.UserID, tabID schema.TabID, action string, eventType schema.TabEventType, fn func(tb *tab, fx *effects) error) (schema.TabSnapshot, error) {
	if ctx == nil {
		return schema.TabSnapshot{}, errors.New("missing context")
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	log := logx.WithUserTab(ctx, userID, tabID)

	s.mu.Lock()
	fx := &effects{persist: true}
	state, tb, err := s.lookupLocked(userID, tabID)
	if err == nil {
		err = fn(tb, fx)
	}
	if err != nil {
		s.mu.Unlock()
		log.Warn("service "+action+" failed", "err", err)
		return schema.TabSnapshot{}, err
	}
	snap := tb.Snapshot(state.active == tb.ID)
	fx.tabs = append(fx.tabs, schema.TabEvent{UserID: userID, Type: eventType, Tab: snap, ActiveTab: state.active})
	s.mu.Unlock()
	s.flush(ctx, log, userID, fx)
	logx.WithTool(log, snap.SelectedTool, snap.SelectedAttack).Info("service "+action+" ok", "status", snap.Status)
	return snap, nil
}

// applyLocked reconciles an update and queues the termination banner, if one
// was written.
func (s *service) applyLocked(userID schema.UserID, tb *tab, update stateUpdate, fx *effects) {
	if banner := reconcile(tb, update); banner != "" {
		fx.outputs = append(fx.outputs, schema.OutputEvent{UserID: userID, TabID: tb.ID, Lines: []string{banner}})
	}
}

// flush publishes effects: gateway sends first, then sink events, then the
// workspace snapshot.
func (s *service) flush(ctx context.Context, log pslog.Logger, userID schema.UserID, fx *effects) {
	for _, msg := range fx.sends {
		if err := s.send(ctx, msg); err != nil {
			log.Warn("service gateway send failed", "type", msg.Type, "tab", msg.TabID, "err", err)
			fx.notes = append(fx.notes, schema.NotificationEvent{
				UserID:  userID,
				TabID:   msg.TabID,
				Level:   schema.NotifyError,
				Title:   schema.NotifyTitleGateway,
				Message: fmt.Sprintf("%s message not delivered: %v", msg.Type, err),
			})
			continue
		}
		log.Debug("service gateway sent", "type", msg.Type, "tab", msg.TabID, "stream", msg.OutputID)
	}
	if s.sink != nil {
		for _, event := range fx.outputs {
			s.sink.OnOutput(event)
		}
		for _, event := range fx.tabs {
			s.sink.OnTabEvent(event)
		}
		for _, event := range fx.notes {
			s.sink.OnNotification(event)
		}
	}
	if fx.persist {
		s.persistUser(log, userID)
	}
}

func (s *service) send(ctx context.Context, msg schema.OutboundMessage) error {
	if s.gateway == nil {
		return schema.ErrGatewayUnavailable
	}
	return s.gateway.Send(ctx, msg)
}

func stopMessage(tabID schema.TabID) schema.OutboundMessage {
	return schema.OutboundMessage{Type: schema.MessageStop, TabID: tabID}
}

func (s *service) lookupLocked(userID schema.UserID, tabID schema.TabID) (*userState, *tab, error) {
	state := s.getOrCreateUserStateLocked(userID)
	tb := state.tabs[tabID]
	if tb == nil {
		return state, nil, schema.ErrTabNotFound
	}
	return state, tb, nil
}

func (s *service) addTabLocked(userID schema.UserID, state *userState) *tab {
	tb := newTab(schema.TabID(newID()), s.nextTabNameLocked(state), s.cfg.BufferMaxLines)
	state.tabs[tb.ID] = tb
	state.order = append(state.order, tb.ID)
	s.owners[tb.ID] = userID
	return tb
}

func (s *service) removeTabLocked(state *userState, tb *tab) {
	tb.disarmWatchdog()
	delete(state.tabs, tb.ID)
	delete(s.owners, tb.ID)
	state.order = removeTabID(state.order, tb.ID)
}

// nextTabNameLocked returns "<prefix> N" for the lowest N not in use.
func (s *service) nextTabNameLocked(state *userState) schema.TabName {
	prefix := s.cfg.TabNamePrefix + " "
	used := make(map[int]bool, len(state.tabs))
	for _, tb := range state.tabs {
		name := string(tb.Name)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, prefix)); err == nil {
			used[n] = true
		}
	}
	n := 1
	for used[n] {
		n++
	}
	return schema.TabName(prefix + strconv.Itoa(n))
}

func (s *service) snapshotsLocked(state *userState) []schema.TabSnapshot {
	tabs := make([]schema.TabSnapshot, 0, len(state.order))
	for _, id := range state.order {
		if tb := state.tabs[id]; tb != nil {
			tabs = append(tabs, tb.Snapshot(id == state.active))
		}
	}
	return tabs
}

func (s *service) tool(id schema.ToolID) (*catalog.Tool, bool) {
	if id == "" {
		return nil, false
	}
	tool, ok := s.catalog.Tool(id)
	if !ok {
		return nil, false
	}
	return &tool, true
}

func (s *service) getOrCreateUserStateLocked(userID schema.UserID) *userState {
	entry := s.userTabs[userID]
	if entry == nil {
		entry = s.loadUserStateLocked(userID)
		s.userTabs[userID] = entry
		for id := range entry.tabs {
			s.owners[id] = userID
		}
	}
	return entry
}

func (s *service) loadUserStateLocked(userID schema.UserID) *userState {
	empty := &userState{tabs: make(map[schema.TabID]*tab)}
	log := s.logger.With("user", userID)
	snapshot, ok, err := s.store.Load(userID)
	if err != nil {
		log.Warn("service state load failed", "err", err)
		return empty
	}
	if !ok {
		log.Debug("service state missing")
		return empty
	}
	loaded := &userState{tabs: make(map[schema.TabID]*tab, len(snapshot.Tabs))}
	for _, snap := range snapshot.Tabs {
		if snap.ID == "" {
			continue
		}
		loaded.tabs[snap.ID] = s.restoreTab(snap)
	}
	for _, id := range snapshot.Order {
		if _, ok := loaded.tabs[id]; ok && !containsTabID(loaded.order, id) {
			loaded.order = append(loaded.order, id)
		}
	}
	for _, snap := range snapshot.Tabs {
		if _, ok := loaded.tabs[snap.ID]; ok && !containsTabID(loaded.order, snap.ID) {
			loaded.order = append(loaded.order, snap.ID)
		}
	}
	if _, ok := loaded.tabs[snapshot.ActiveTab]; ok {
		loaded.active = snapshot.ActiveTab
	} else {
		loaded.active = lastTab(loaded)
	}
	log.Debug("service state loaded", "tabs", len(loaded.order))
	return loaded
}

// restoreTab rebuilds a persisted tab. Restored tabs are idle; a tool that
// left the catalog is deselected.
func (s *service) restoreTab(snap persist.TabSnapshot) *tab {
	tb := newTab(snap.ID, snap.Name, s.cfg.BufferMaxLines)
	tb.Category = snap.SelectedCategory
	tb.CustomCommand = snap.CustomCommand
	tb.output = newBufferFromLines(snap.Output, s.cfg.BufferMaxLines)
	tool, ok := s.tool(snap.SelectedTool)
	if !ok {
		return tb
	}
	tb.Tool = tool.ID
	attack := s.attackOrFirst(tool, snap.SelectedAttack)
	if attack != nil {
		tb.Attack = attack.ID
	}
	tb.Params = SanitizeParameters(tool.ParamsFor(attack), snap.Parameters)
	tb.resetStreams(tool, s.cfg.BufferMaxLines)
	for _, stream := range snap.Streams {
		tb.stream(stream.ID, s.cfg.BufferMaxLines).Append(stream.Lines...)
	}
	if _, ok := tb.streams[snap.ActiveOutput]; ok {
		tb.activeOutput = snap.ActiveOutput
	}
	if snap.ViewMode == schema.ViewSplit && tb.multiOutput() {
		tb.viewMode = schema.ViewSplit
	}
	return tb
}

func (s *service) persistUser(log pslog.Logger, userID schema.UserID) {
	snapshot, ok := s.snapshotUser(userID)
	if !ok {
		log.Debug("service persist skipped", "reason", "missing state")
		return
	}
	if err := s.store.Save(userID, snapshot); err != nil {
		log.Warn("service persist failed", "err", err)
		return
	}
	log.Trace("service state persisted", "tabs", len(snapshot.Tabs))
}

func (s *service) snapshotUser(userID schema.UserID) (persist.UserSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.userTabs[userID]
	if state == nil {
		return persist.UserSnapshot{}, false
	}
	tabs := make([]persist.TabSnapshot, 0, len(state.order))
	for _, id := range state.order {
		tb := state.tabs[id]
		if tb == nil {
			continue
		}
		snap := persist.TabSnapshot{
			ID:               tb.ID,
			Name:             tb.Name,
			SelectedTool:     tb.Tool,
			SelectedAttack:   tb.Attack,
			SelectedCategory: tb.Category,
			Parameters:       tb.Params.Clone(),
			CustomCommand:    tb.CustomCommand,
			Output:           tb.output.Export(),
			ActiveOutput:     tb.activeOutput,
			ViewMode:         tb.viewMode,
		}
		for _, streamID := range tb.streamOrder {
			snap.Streams = append(snap.Streams, persist.StreamSnapshot{ID: streamID, Lines: tb.streams[streamID].Export()})
		}
		tabs = append(tabs, snap)
	}
	return persist.UserSnapshot{
		Version:   persist.WorkspaceVersion,
		Order:     append([]schema.TabID(nil), state.order...),
		ActiveTab: state.active,
		Tabs:      tabs,
	}, true
}

func normalizeUserID(userID schema.UserID) (schema.UserID, error) {
	if err := schema.ValidateUserID(userID); err != nil {
		return "", schema.ErrInvalidUser
	}
	return userID, nil
}

// lastTab returns the most recently opened remaining tab.
func lastTab(state *userState) schema.TabID {
	if len(state.order) == 0 {
		return ""
	}
	return state.order[len(state.order)-1]
}

func containsTabID(order []schema.TabID, id schema.TabID) bool {
	for _, current := range order {
		if current == id {
			return true
		}
	}
	return false
}

func removeTabID(order []schema.TabID, id schema.TabID) []schema.TabID {
	for i, current := range order {
		if current == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
