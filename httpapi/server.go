package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/internal/command"
	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/internal/vault"
	"pkt.systems/attackdeck/schema"
)

const maxImportBytes = 4 << 20

// CommandHandler routes slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, userID schema.UserID, tabID schema.TabID, input string) (command.Result, bool, error)
}

// ConfigStore keeps named configurations per operator.
type ConfigStore interface {
	command.ConfigStore
	Delete(userID schema.UserID, name string) error
}

// Server serves the HTTP API.
type Server struct {
	cfg        Config
	service    core.Service
	catalog    *catalog.Catalog
	cmdHandler CommandHandler
	configs    ConfigStore
	hub        *Hub
	basePath   string
}

// NewServer constructs an HTTP server. configs may be nil, which disables
// the saved configuration endpoints.
func NewServer(cfg Config, service core.Service, cat *catalog.Catalog, handler CommandHandler, configs ConfigStore, hub *Hub) *Server {
	if strings.TrimSpace(cfg.DefaultOperator) == "" {
		cfg.DefaultOperator = DefaultOperator
	}
	if hub == nil {
		hub = NewHub(cfg.HubHistory)
	}
	return &Server{
		cfg:        cfg,
		service:    service,
		catalog:    cat,
		cmdHandler: handler,
		configs:    configs,
		hub:        hub,
		basePath:   normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/tabs", s.requireOperator(s.handleTabs))
	mux.HandleFunc("/api/tabs/close", s.requireOperator(s.handleClose))
	mux.HandleFunc("/api/tabs/closeall", s.requireOperator(s.handleCloseAll))
	mux.HandleFunc("/api/tabs/activate", s.requireOperator(s.handleActivate))
	mux.HandleFunc("/api/tabs/tool", s.requireOperator(s.handleTool))
	mux.HandleFunc("/api/tabs/attack", s.requireOperator(s.handleAttack))
	mux.HandleFunc("/api/tabs/category", s.requireOperator(s.handleCategory))
	mux.HandleFunc("/api/tabs/params", s.requireOperator(s.handleParams))
	mux.HandleFunc("/api/tabs/custom", s.requireOperator(s.handleCustom))
	mux.HandleFunc("/api/tabs/view", s.requireOperator(s.handleView))
	mux.HandleFunc("/api/tabs/execute", s.requireOperator(s.handleExecute))
	mux.HandleFunc("/api/tabs/stop", s.requireOperator(s.handleStop))
	mux.HandleFunc("/api/buffer", s.requireOperator(s.handleBuffer))
	mux.HandleFunc("/api/export", s.requireOperator(s.handleExport))
	mux.HandleFunc("/api/import", s.requireOperator(s.handleImport))
	mux.HandleFunc("/api/catalog", s.handleCatalog)
	mux.HandleFunc("/api/command", s.requireOperator(s.handleCommand))
	mux.HandleFunc("/api/configs", s.requireOperator(s.handleConfigs))
	mux.HandleFunc("/api/configs/load", s.requireOperator(s.handleConfigLoad))
	mux.HandleFunc("/api/stream", s.requireOperator(s.handleStream))

	handler := withRequestLogging(mux, s.lookupOperator)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tools": s.catalog.Len()})
}

type tabPayload struct {
	TabID schema.TabID `json:"tabId"`
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	log := logx.WithUser(r.Context(), userID)
	switch r.Method {
	case http.MethodGet:
		resp, err := s.service.ListTabs(r.Context(), schema.ListTabsRequest{UserID: userID})
		if err != nil {
			log.Warn("http tabs list failed", "err", err)
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Debug("http tabs list ok", "count", len(resp.Tabs))
	case http.MethodPost:
		resp, err := s.service.OpenTab(r.Context(), schema.OpenTabRequest{UserID: userID})
		if err != nil {
			log.Warn("http tabs open failed", "err", err)
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Info("http tabs open ok", "tab", resp.Tab.ID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload tabPayload
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.CloseTab(r.Context(), schema.CloseTabRequest{UserID: userID, TabID: payload.TabID})
	respond(w, r, userID, "close", resp, err)
}

func (s *Server) handleCloseAll(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.CloseAllTabs(r.Context(), schema.CloseAllTabsRequest{UserID: userID})
	respond(w, r, userID, "closeall", resp, err)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload tabPayload
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.ActivateTab(r.Context(), schema.ActivateTabRequest{UserID: userID, TabID: payload.TabID})
	respond(w, r, userID, "activate", resp, err)
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID  schema.TabID  `json:"tabId"`
		ToolID schema.ToolID `json:"toolId"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.SelectTool(r.Context(), schema.SelectToolRequest{UserID: userID, TabID: payload.TabID, ToolID: payload.ToolID})
	respond(w, r, userID, "tool", resp, err)
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID    schema.TabID    `json:"tabId"`
		AttackID schema.AttackID `json:"attackId"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.SelectAttack(r.Context(), schema.SelectAttackRequest{UserID: userID, TabID: payload.TabID, AttackID: payload.AttackID})
	respond(w, r, userID, "attack", resp, err)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID    schema.TabID    `json:"tabId"`
		Category schema.Category `json:"category"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.SelectCategory(r.Context(), schema.SelectCategoryRequest{UserID: userID, TabID: payload.TabID, Category: payload.Category})
	respond(w, r, userID, "category", resp, err)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID      schema.TabID      `json:"tabId"`
		Parameters schema.Parameters `json:"parameters"`
		Replace    bool              `json:"replace"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.SetParameters(r.Context(), schema.SetParametersRequest{
		UserID:     userID,
		TabID:      payload.TabID,
		Parameters: payload.Parameters,
		Replace:    payload.Replace,
	})
	respond(w, r, userID, "params", resp, err)
}

func (s *Server) handleCustom(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID   schema.TabID `json:"tabId"`
		Command string       `json:"command"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.SetCustomCommand(r.Context(), schema.SetCustomCommandRequest{UserID: userID, TabID: payload.TabID, Command: payload.Command})
	respond(w, r, userID, "custom", resp, err)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID        schema.TabID    `json:"tabId"`
		ViewMode     string          `json:"viewMode"`
		ActiveOutput schema.StreamID `json:"activeOutputId"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	mode := schema.ViewMode("")
	if payload.ViewMode != "" {
		normalized, err := schema.NormalizeViewMode(payload.ViewMode)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		mode = normalized
	}
	resp, err := s.service.SetViewMode(r.Context(), schema.SetViewModeRequest{
		UserID:       userID,
		TabID:        payload.TabID,
		ViewMode:     mode,
		ActiveOutput: payload.ActiveOutput,
	})
	respond(w, r, userID, "view", resp, err)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload tabPayload
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.Execute(r.Context(), schema.ExecuteRequest{UserID: userID, TabID: payload.TabID})
	respond(w, r, userID, "execute", resp, err)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload tabPayload
	if !decodePost(w, r, &payload) {
		return
	}
	resp, err := s.service.Stop(r.Context(), schema.StopRequest{UserID: userID, TabID: payload.TabID})
	respond(w, r, userID, "stop", resp, err)
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	query := r.URL.Query()
	tabID := schema.TabID(query.Get("tabId"))
	resp, err := s.service.GetBuffer(r.Context(), schema.GetBufferRequest{
		UserID:   userID,
		TabID:    tabID,
		StreamID: schema.StreamID(query.Get("outputId")),
		Limit:    parseInt(query.Get("limit"), s.cfg.InitialBufferLines),
	})
	if err != nil {
		log.Warn("http buffer failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http buffer ok", "tab", tabID, "lines", resp.Buffer.TotalLines)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	resp, err := s.service.ExportTabs(r.Context(), schema.ExportTabsRequest{UserID: userID, Name: r.URL.Query().Get("name")})
	if err != nil {
		log.Warn("http export failed", "err", err)
		writeServiceError(w, err)
		return
	}
	data, err := schema.EncodeExportConfig(resp.Config)
	if err != nil {
		log.Warn("http export encode failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attackdeck-%s.json"`, time.Now().UTC().Format("20060102-150405")))
	_, _ = w.Write(data)
	log.Info("http export ok", "tabs", len(resp.Config.Tabs))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithUser(r.Context(), userID)
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		log.Warn("http import read failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := schema.DecodeExportConfig(data)
	if err != nil {
		log.Warn("http import decode failed", "err", err)
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.ImportTabs(r.Context(), schema.ImportTabsRequest{UserID: userID, Config: cfg})
	respond(w, r, userID, "import", resp, err)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, newCatalogView(s.catalog))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	var payload struct {
		TabID schema.TabID `json:"tabId"`
		Input string       `json:"input"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	log := logx.WithUserTab(r.Context(), userID, payload.TabID).With("input_len", len(payload.Input))
	if s.cmdHandler == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("commands not configured"))
		return
	}
	res, handled, err := s.cmdHandler.Handle(r.Context(), userID, payload.TabID, payload.Input)
	if !handled {
		log.Warn("http command rejected", "reason", "not a slash command")
		writeError(w, http.StatusBadRequest, errors.New("not a slash command; try /help"))
		return
	}
	if err != nil {
		log.Warn("http command failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
	log.Info("http command ok")
}

func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if s.configs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("configuration vault not configured"))
		return
	}
	log := logx.WithUser(r.Context(), userID)
	switch r.Method {
	case http.MethodGet:
		entries, err := s.configs.List(userID)
		if err != nil {
			log.Warn("http configs list failed", "err", err)
			writeServiceError(w, err)
			return
		}
		if entries == nil {
			entries = []vault.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"configs": entries})
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := s.service.ExportTabs(r.Context(), schema.ExportTabsRequest{UserID: userID, Name: payload.Name})
		if err == nil {
			err = s.configs.Save(userID, resp.Config)
		}
		if err != nil {
			log.Warn("http configs save failed", "err", err)
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": resp.Config.Name, "tabs": len(resp.Config.Tabs)})
		log.Info("http configs save ok", "name", resp.Config.Name)
	case http.MethodDelete:
		name := r.URL.Query().Get("name")
		if err := s.configs.Delete(userID, name); err != nil {
			log.Warn("http configs delete failed", "err", err)
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		log.Info("http configs delete ok", "name", name)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleConfigLoad(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	if s.configs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("configuration vault not configured"))
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if !decodePost(w, r, &payload) {
		return
	}
	cfg, err := s.configs.Load(userID, payload.Name)
	if err != nil {
		logx.WithUser(r.Context(), userID).Warn("http configs load failed", "err", err)
		writeServiceError(w, err)
		return
	}
	resp, err := s.service.ImportTabs(r.Context(), schema.ImportTabsRequest{UserID: userID, Config: cfg})
	respond(w, r, userID, "configs load", resp, err)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, userID schema.UserID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.WithUser(r.Context(), userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe, seq := s.hub.Subscribe(userID)
	defer unsubscribe()

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	snapshot := s.buildSnapshot(r.Context(), userID)
	_ = writeSSEvent(w, StreamEvent{Type: streamSnapshot, Snapshot: &snapshot, Timestamp: time.Now()})
	replayCount := 0
	if lastID > 0 {
		replay := s.hub.Replay(userID, lastID, seq)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
		}
	}
	flusher.Flush()

	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", len(snapshot.Tabs))
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context, userID schema.UserID) SnapshotPayload {
	resp, err := s.service.ListTabs(ctx, schema.ListTabsRequest{UserID: userID})
	if err != nil {
		return SnapshotPayload{Tabs: []schema.TabSnapshot{}, Buffers: []schema.BufferSnapshot{}}
	}
	buffers := make([]schema.BufferSnapshot, 0, len(resp.Tabs))
	for _, tab := range resp.Tabs {
		streams := tab.Streams
		if len(streams) == 0 {
			streams = []schema.StreamID{""}
		}
		for _, stream := range streams {
			bufferResp, err := s.service.GetBuffer(ctx, schema.GetBufferRequest{
				UserID:   userID,
				TabID:    tab.ID,
				StreamID: stream,
				Limit:    s.cfg.InitialBufferLines,
			})
			if err != nil {
				continue
			}
			buffers = append(buffers, bufferResp.Buffer)
		}
	}
	return SnapshotPayload{Tabs: resp.Tabs, ActiveTab: resp.ActiveTab, Buffers: buffers}
}

func (s *Server) requireOperator(next func(http.ResponseWriter, *http.Request, schema.UserID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := s.lookupOperator(r)
		if err := schema.ValidateUserID(userID); err != nil {
			logx.Ctx(r.Context()).With("remote", clientIP(r)).Warn("http operator invalid", "operator", userID)
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", err, userID))
			return
		}
		log := logx.WithUser(r.Context(), userID)
		ctx := logx.ContextWithUserLogger(r.Context(), log, userID)
		next(w, r.WithContext(ctx), userID)
	}
}

func (s *Server) lookupOperator(r *http.Request) schema.UserID {
	if r == nil {
		return ""
	}
	if value := strings.TrimSpace(r.Header.Get(OperatorHeader)); value != "" {
		return schema.UserID(value)
	}
	return schema.UserID(s.cfg.DefaultOperator)
}

func respond(w http.ResponseWriter, r *http.Request, userID schema.UserID, op string, resp any, err error) {
	log := logx.WithUser(r.Context(), userID)
	if err != nil {
		log.Warn("http "+op+" failed", "err", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http " + op + " ok")
}

func decodePost(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := decodeJSON(r.Body, target); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound), errors.Is(err, vault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrTabLocked):
		return http.StatusConflict
	case errors.Is(err, schema.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
