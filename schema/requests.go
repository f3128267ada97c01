package schema

// Tab lifecycle.

// OpenTabRequest describes a request to open a tab.
type OpenTabRequest struct {
	UserID UserID
}

// OpenTabResponse reports the opened tab.
type OpenTabResponse struct {
	Tab TabSnapshot
}

// CloseTabRequest describes a request to close a tab.
type CloseTabRequest struct {
	UserID UserID
	TabID  TabID
}

// CloseTabResponse reports the closed tab and the new active tab.
type CloseTabResponse struct {
	Tab       TabSnapshot
	ActiveTab TabID
	Stopped   bool
}

// CloseAllTabsRequest describes a request to close every tab.
type CloseAllTabsRequest struct {
	UserID UserID
}

// CloseAllTabsResponse reports how many tabs were closed and stopped.
type CloseAllTabsResponse struct {
	Closed  int
	Stopped int
}

// ListTabsRequest describes a request to list tabs.
type ListTabsRequest struct {
	UserID UserID
}

// ListTabsResponse reports tabs and the active tab.
type ListTabsResponse struct {
	Tabs      []TabSnapshot
	ActiveTab TabID
}

// ActivateTabRequest describes a request to activate a tab.
type ActivateTabRequest struct {
	UserID UserID
	TabID  TabID
}

// ActivateTabResponse reports the activated tab.
type ActivateTabResponse struct {
	Tab TabSnapshot
}

// Configuration.

// SelectToolRequest selects a catalog tool for a tab.
type SelectToolRequest struct {
	UserID UserID
	TabID  TabID
	ToolID ToolID
}

// SelectToolResponse reports the updated tab.
type SelectToolResponse struct {
	Tab TabSnapshot
}

// SelectAttackRequest selects an attack variant of the tab's tool.
type SelectAttackRequest struct {
	UserID   UserID
	TabID    TabID
	AttackID AttackID
}

// SelectAttackResponse reports the updated tab.
type SelectAttackResponse struct {
	Tab TabSnapshot
}

// SelectCategoryRequest sets the category filter of a tab.
type SelectCategoryRequest struct {
	UserID   UserID
	TabID    TabID
	Category Category
}

// SelectCategoryResponse reports the updated tab.
type SelectCategoryResponse struct {
	Tab TabSnapshot
}

// SetParametersRequest merges (or replaces) parameter values.
type SetParametersRequest struct {
	UserID     UserID
	TabID      TabID
	Parameters Parameters
	Replace    bool
}

// SetParametersResponse reports the updated tab.
type SetParametersResponse struct {
	Tab TabSnapshot
}

// SetCustomCommandRequest sets or clears the manual command override.
type SetCustomCommandRequest struct {
	UserID  UserID
	TabID   TabID
	Command string
}

// SetCustomCommandResponse reports the updated tab.
type SetCustomCommandResponse struct {
	Tab TabSnapshot
}

// SetViewModeRequest changes how multi-output streams are shown.
type SetViewModeRequest struct {
	UserID       UserID
	TabID        TabID
	ViewMode     ViewMode
	ActiveOutput StreamID
}

// SetViewModeResponse reports the updated tab.
type SetViewModeResponse struct {
	Tab TabSnapshot
}

// Execution.

// ResolvedCommand is one literal command produced by the resolver.
type ResolvedCommand struct {
	StreamID         StreamID `json:"outputId,omitempty"`
	Command          string   `json:"command"`
	WorkingDirectory string   `json:"workingDirectory,omitempty"`
}

// ExecuteRequest starts execution of the tab's resolved command.
type ExecuteRequest struct {
	UserID UserID
	TabID  TabID
}

// ExecuteResponse reports the running tab and the dispatched commands.
type ExecuteResponse struct {
	Tab      TabSnapshot
	Commands []ResolvedCommand
}

// StopRequest stops a tab.
type StopRequest struct {
	UserID UserID
	TabID  TabID
}

// StopResponse reports the stopped tab.
type StopResponse struct {
	Tab TabSnapshot
}

// Output.

// GetBufferRequest fetches the transcript of a tab or stream.
type GetBufferRequest struct {
	UserID   UserID
	TabID    TabID
	StreamID StreamID
	Limit    int
}

// GetBufferResponse reports the transcript.
type GetBufferResponse struct {
	Buffer BufferSnapshot
}

// Export and import.

// ExportTabsRequest exports the operator's tab selections.
type ExportTabsRequest struct {
	UserID UserID
	Name   string
}

// ExportTabsResponse carries the export.
type ExportTabsResponse struct {
	Config ExportConfig
}

// ImportTabsRequest replaces the operator's tabs with an export.
type ImportTabsRequest struct {
	UserID UserID
	Config ExportConfig
}

// ImportTabsResponse reports the imported tabs.
type ImportTabsResponse struct {
	Tabs      []TabSnapshot
	ActiveTab TabID
	Dropped   int
}
