package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid operator identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoTabs indicates no tabs exist for the operator.
	ErrNoTabs = errors.New("no tabs")
	// ErrTabLocked indicates configuration changes are rejected while a tab runs or loads.
	ErrTabLocked = errors.New("tab is locked while running")
	// ErrNoTool indicates no tool is selected on the tab.
	ErrNoTool = errors.New("no tool selected")
	// ErrUnknownTool indicates a tool id is not in the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnknownAttack indicates an attack id is not defined for the tool.
	ErrUnknownAttack = errors.New("unknown attack")
	// ErrUnknownStream indicates a stream id is not defined for the tool.
	ErrUnknownStream = errors.New("unknown output stream")
	// ErrNoCommand indicates no runnable command could be resolved.
	ErrNoCommand = errors.New("no command to execute")
	// ErrCommandBuild indicates a command builder failed.
	ErrCommandBuild = errors.New("command build failed")
	// ErrInvalidImport indicates an export file could not be imported.
	ErrInvalidImport = errors.New("invalid import")
	// ErrInvalidViewMode indicates an unsupported view mode.
	ErrInvalidViewMode = errors.New("invalid view mode")
	// ErrGatewayUnavailable indicates no transport gateway is configured.
	ErrGatewayUnavailable = errors.New("gateway not configured")
)
