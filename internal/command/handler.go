package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/internal/logx"
	"pkt.systems/attackdeck/internal/vault"
	"pkt.systems/attackdeck/internal/version"
	"pkt.systems/attackdeck/schema"
)

// ConfigStore keeps named tab configurations per operator.
type ConfigStore interface {
	Save(userID schema.UserID, cfg schema.ExportConfig) error
	Load(userID schema.UserID, name string) (schema.ExportConfig, error)
	List(userID schema.UserID) ([]vault.Entry, error)
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	Catalog             *catalog.Catalog
	Configs             ConfigStore
	DisableAuditLogging bool
}

// Result carries the operator-facing lines of a command and the tab the
// operator should be looking at afterwards.
type Result struct {
	Lines []string     `json:"lines,omitempty"`
	TabID schema.TabID `json:"tabId,omitempty"`
}

func (r *Result) add(format string, args ...any) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

// Handler routes slash commands to service operations.
type Handler struct {
	service core.Service
	cfg     HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(service core.Service, cfg HandlerConfig) *Handler {
	if cfg.Catalog == nil {
		cfg.Catalog, _ = catalog.Default()
	}
	return &Handler{service: service, cfg: cfg}
}

// Handle executes a slash command against the given tab, or the operator's
// active tab when tabID is empty. It reports false for input that is not a
// slash command.
func (h *Handler) Handle(ctx context.Context, userID schema.UserID, tabID schema.TabID, input string) (Result, bool, error) {
	if ctx == nil {
		return Result{}, false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return Result{}, false, nil
	}
	tabID = h.resolveTabID(ctx, userID, tabID)
	baseLog := logx.WithUserTab(ctx, userID, tabID)
	ctx = logx.ContextWithUserTabLogger(ctx, baseLog, userID, tabID)
	if !h.cfg.DisableAuditLogging {
		baseLog.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log := baseLog.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")

	res := Result{TabID: tabID}
	var err error
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return res, true, errors.New("invalid command")
	case "new":
		err = h.handleNew(ctx, userID, &res)
	case "close":
		err = h.handleClose(ctx, userID, cmd, &res)
	case "closeall":
		err = h.handleCloseAll(ctx, userID, &res)
	case "tab":
		err = h.handleTab(ctx, userID, cmd, &res)
	case "tabs":
		err = h.handleTabs(ctx, userID, &res)
	case "tools":
		err = h.handleTools(cmd, &res)
	case "tool":
		err = h.handleTool(ctx, userID, cmd, &res)
	case "attack":
		err = h.handleAttack(ctx, userID, cmd, &res)
	case "category":
		err = h.handleCategory(ctx, userID, cmd, &res)
	case "set":
		err = h.handleSet(ctx, userID, cmd, &res)
	case "custom":
		err = h.handleCustom(ctx, userID, cmd, &res)
	case "exec", "run":
		err = h.handleExec(ctx, userID, &res)
	case "stop":
		err = h.handleStop(ctx, userID, &res)
	case "view":
		err = h.handleView(ctx, userID, cmd, &res)
	case "stream":
		err = h.handleStream(ctx, userID, cmd, &res)
	case "save":
		err = h.handleSave(ctx, userID, cmd, &res)
	case "load":
		err = h.handleLoad(ctx, userID, cmd, &res)
	case "configs":
		err = h.handleConfigs(userID, &res)
	case "help":
		res.Lines = helpLines()
	case "version":
		res.add("attackdeck %s", version.Current())
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return res, true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
	if err != nil {
		log.Warn("command slash failed", "err", err)
		return res, true, err
	}
	log.Info("command slash completed", "tab", res.TabID)
	return res, true, nil
}

func (h *Handler) handleNew(ctx context.Context, userID schema.UserID, res *Result) error {
	resp, err := h.service.OpenTab(ctx, schema.OpenTabRequest{UserID: userID})
	if err != nil {
		return err
	}
	res.TabID = resp.Tab.ID
	res.add("opened %s", resp.Tab.Name)
	return nil
}

func (h *Handler) handleClose(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	target := res.TabID
	if ref := cmd.Arg(0); ref != "" {
		list, err := h.service.ListTabs(ctx, schema.ListTabsRequest{UserID: userID})
		if err != nil {
			return err
		}
		if target, _, err = resolveTabRef(ref, list.Tabs); err != nil {
			return err
		}
	}
	if target == "" {
		return errors.New("no active tab; use /new")
	}
	resp, err := h.service.CloseTab(ctx, schema.CloseTabRequest{UserID: userID, TabID: target})
	if err != nil {
		return err
	}
	res.TabID = resp.ActiveTab
	if resp.Stopped {
		res.add("stopped and closed %s", resp.Tab.Name)
	} else {
		res.add("closed %s", resp.Tab.Name)
	}
	return nil
}

func (h *Handler) handleCloseAll(ctx context.Context, userID schema.UserID, res *Result) error {
	resp, err := h.service.CloseAllTabs(ctx, schema.CloseAllTabsRequest{UserID: userID})
	if err != nil {
		return err
	}
	res.TabID = ""
	res.add("closed %d tabs (%d stopped)", resp.Closed, resp.Stopped)
	return nil
}

func (h *Handler) handleTab(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if len(cmd.Args) != 1 {
		return errors.New("usage: /tab <number|name>")
	}
	list, err := h.service.ListTabs(ctx, schema.ListTabsRequest{UserID: userID})
	if err != nil {
		return err
	}
	target, _, err := resolveTabRef(cmd.Args[0], list.Tabs)
	if err != nil {
		return err
	}
	resp, err := h.service.ActivateTab(ctx, schema.ActivateTabRequest{UserID: userID, TabID: target})
	if err != nil {
		return err
	}
	res.TabID = resp.Tab.ID
	res.add("switched to %s", resp.Tab.Name)
	return nil
}

func (h *Handler) handleTabs(ctx context.Context, userID schema.UserID, res *Result) error {
	list, err := h.service.ListTabs(ctx, schema.ListTabsRequest{UserID: userID})
	if err != nil {
		return err
	}
	if len(list.Tabs) == 0 {
		res.add("no tabs; use /new")
		return nil
	}
	for i, tab := range list.Tabs {
		marker := " "
		if tab.ID == list.ActiveTab {
			marker = "*"
		}
		tool := string(tab.SelectedTool)
		if tool == "" {
			tool = "-"
		}
		res.add("%s%d %s  %s  %s", marker, i+1, tab.Name, tool, tab.Status)
	}
	return nil
}

func (h *Handler) handleTools(cmd Command, res *Result) error {
	filter := schema.Category(strings.ToLower(cmd.Arg(0)))
	for _, tool := range h.cfg.Catalog.Tools() {
		if filter != "" && tool.Category != filter {
			continue
		}
		line := fmt.Sprintf("%s - %s", tool.ID, tool.Name)
		if tool.Category != "" {
			line += fmt.Sprintf(" [%s]", tool.Category)
		}
		res.Lines = append(res.Lines, line)
		for _, attack := range tool.Attacks {
			res.add("    %s - %s", attack.ID, attack.Name)
		}
	}
	if len(res.Lines) == 0 {
		res.add("no tools match %q", filter)
	}
	return nil
}

func (h *Handler) handleTool(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if len(cmd.Args) != 1 {
		return errors.New("usage: /tool <id>")
	}
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.SelectTool(ctx, schema.SelectToolRequest{UserID: userID, TabID: tabID, ToolID: schema.ToolID(cmd.Args[0])})
	if err != nil {
		return err
	}
	res.add("tool %s selected", resp.Tab.SelectedTool)
	appendParams(res, resp.Tab)
	return nil
}

func (h *Handler) handleAttack(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if len(cmd.Args) != 1 {
		return errors.New("usage: /attack <id>")
	}
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.SelectAttack(ctx, schema.SelectAttackRequest{UserID: userID, TabID: tabID, AttackID: schema.AttackID(cmd.Args[0])})
	if err != nil {
		return err
	}
	res.add("attack %s selected", resp.Tab.SelectedAttack)
	appendParams(res, resp.Tab)
	return nil
}

func (h *Handler) handleCategory(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.SelectCategory(ctx, schema.SelectCategoryRequest{UserID: userID, TabID: tabID, Category: schema.Category(cmd.Arg(0))})
	if err != nil {
		return err
	}
	if resp.Tab.SelectedCategory == "" {
		res.add("category filter cleared")
	} else {
		res.add("category %s selected", resp.Tab.SelectedCategory)
	}
	return nil
}

func (h *Handler) handleSet(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if len(cmd.Args) == 0 {
		return errors.New("usage: /set <name=value>...")
	}
	params, err := schema.ParseParameterAssignments(cmd.Args)
	if err != nil {
		return fmt.Errorf("usage: /set <name=value>...: %w", err)
	}
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.SetParameters(ctx, schema.SetParametersRequest{UserID: userID, TabID: tabID, Parameters: params})
	if err != nil {
		return err
	}
	appendParams(res, resp.Tab)
	return nil
}

func (h *Handler) handleCustom(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.SetCustomCommand(ctx, schema.SetCustomCommandRequest{UserID: userID, TabID: tabID, Command: cmd.Remainder})
	if err != nil {
		return err
	}
	if resp.Tab.CustomCommand == "" {
		res.add("custom command cleared")
	} else {
		res.add("custom command set")
	}
	return nil
}

func (h *Handler) handleExec(ctx context.Context, userID schema.UserID, res *Result) error {
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.Execute(ctx, schema.ExecuteRequest{UserID: userID, TabID: tabID})
	if err != nil {
		return err
	}
	for _, command := range resp.Commands {
		if command.StreamID != "" {
			res.add("[%s] $ %s", command.StreamID, command.Command)
			continue
		}
		res.add("$ %s", command.Command)
	}
	return nil
}

func (h *Handler) handleStop(ctx context.Context, userID schema.UserID, res *Result) error {
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.Stop(ctx, schema.StopRequest{UserID: userID, TabID: tabID})
	if err != nil {
		return err
	}
	res.add("%s %s", resp.Tab.Name, resp.Tab.Status)
	return nil
}

func (h *Handler) handleView(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	mode, err := schema.NormalizeViewMode(cmd.Arg(0))
	if err != nil {
		return fmt.Errorf("usage: /view single|split")
	}
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	resp, err := h.service.SetViewMode(ctx, schema.SetViewModeRequest{UserID: userID, TabID: tabID, ViewMode: mode})
	if err != nil {
		return err
	}
	res.add("view %s", resp.Tab.ViewMode)
	return nil
}

func (h *Handler) handleStream(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if len(cmd.Args) != 1 {
		return errors.New("usage: /stream <id>")
	}
	tabID, err := requireTab(res)
	if err != nil {
		return err
	}
	tab, err := h.lookupTab(ctx, userID, tabID)
	if err != nil {
		return err
	}
	resp, err := h.service.SetViewMode(ctx, schema.SetViewModeRequest{
		UserID:       userID,
		TabID:        tabID,
		ViewMode:     tab.ViewMode,
		ActiveOutput: schema.StreamID(cmd.Args[0]),
	})
	if err != nil {
		return err
	}
	res.add("showing stream %s", resp.Tab.ActiveOutput)
	return nil
}

func (h *Handler) handleSave(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if h.cfg.Configs == nil {
		return errors.New("configuration vault not configured")
	}
	if len(cmd.Args) != 1 {
		return errors.New("usage: /save <name>")
	}
	resp, err := h.service.ExportTabs(ctx, schema.ExportTabsRequest{UserID: userID, Name: cmd.Args[0]})
	if err != nil {
		return err
	}
	if err := h.cfg.Configs.Save(userID, resp.Config); err != nil {
		return err
	}
	res.add("saved %d tabs as %s", len(resp.Config.Tabs), resp.Config.Name)
	return nil
}

func (h *Handler) handleLoad(ctx context.Context, userID schema.UserID, cmd Command, res *Result) error {
	if h.cfg.Configs == nil {
		return errors.New("configuration vault not configured")
	}
	if len(cmd.Args) != 1 {
		return errors.New("usage: /load <name>")
	}
	cfg, err := h.cfg.Configs.Load(userID, cmd.Args[0])
	if err != nil {
		return err
	}
	resp, err := h.service.ImportTabs(ctx, schema.ImportTabsRequest{UserID: userID, Config: cfg})
	if err != nil {
		return err
	}
	res.TabID = resp.ActiveTab
	res.add("loaded %d tabs from %s", len(resp.Tabs), cmd.Args[0])
	if resp.Dropped > 0 {
		res.add("%d entries skipped", resp.Dropped)
	}
	return nil
}

func (h *Handler) handleConfigs(userID schema.UserID, res *Result) error {
	if h.cfg.Configs == nil {
		return errors.New("configuration vault not configured")
	}
	entries, err := h.cfg.Configs.List(userID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		res.add("no saved configurations")
		return nil
	}
	for _, entry := range entries {
		res.add("%s  %s", entry.Name, entry.ModTime.UTC().Format("2006-01-02 15:04"))
	}
	return nil
}

func (h *Handler) lookupTab(ctx context.Context, userID schema.UserID, tabID schema.TabID) (schema.TabSnapshot, error) {
	resp, err := h.service.ListTabs(ctx, schema.ListTabsRequest{UserID: userID})
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	for _, tab := range resp.Tabs {
		if tab.ID == tabID {
			return tab, nil
		}
	}
	return schema.TabSnapshot{}, schema.ErrTabNotFound
}

// resolveTabID keeps a requested tab that still exists and otherwise falls
// back to the active tab.
func (h *Handler) resolveTabID(ctx context.Context, userID schema.UserID, requested schema.TabID) schema.TabID {
	resp, err := h.service.ListTabs(ctx, schema.ListTabsRequest{UserID: userID})
	if err != nil {
		return requested
	}
	for _, tab := range resp.Tabs {
		if tab.ID == requested {
			return requested
		}
	}
	return resp.ActiveTab
}

func requireTab(res *Result) (schema.TabID, error) {
	if res.TabID == "" {
		return "", errors.New("no active tab; use /new")
	}
	return res.TabID, nil
}

func appendParams(res *Result, tab schema.TabSnapshot) {
	for _, key := range tab.Parameters.Keys() {
		res.add("  %s=%s", key, tab.Parameters[key])
	}
}

func helpLines() []string {
	return []string{
		"Commands",
		"  /new - open a tab",
		"  /close [number|name] - close a tab (stops it first)",
		"  /closeall - close every tab",
		"  /tab <number|name> - switch tab",
		"  /tabs - list tabs",
		"  /tools [category] - list tools and attacks",
		"  /tool <id> - select a tool",
		"  /attack <id> - select an attack",
		"  /category [name] - set or clear the category filter",
		"  /set <name=value>... - set parameters",
		"  /custom [command] - set or clear a custom command",
		"  /exec - run the current tab",
		"  /stop - stop the current tab",
		"  /view single|split - multi-output layout",
		"  /stream <id> - show one output stream",
		"  /save <name> - save tabs to the vault",
		"  /load <name> - replace tabs from the vault",
		"  /configs - list saved configurations",
		"  /version - show version information",
	}
}

func resolveTabRef(ref string, tabs []schema.TabSnapshot) (schema.TabID, string, error) {
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx <= 0 || idx > len(tabs) {
			return "", "", fmt.Errorf("tab index out of range")
		}
		tab := tabs[idx-1]
		return tab.ID, string(tab.Name), nil
	}
	for _, tab := range tabs {
		if tab.ID == schema.TabID(ref) || strings.EqualFold(string(tab.Name), ref) {
			return tab.ID, string(tab.Name), nil
		}
	}
	return "", "", fmt.Errorf("tab not found: %s", ref)
}
