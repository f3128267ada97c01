package schema

// TabSnapshot is a read-only view of tab state for transports.
// IsRunning and LockedForInteraction are derived when the snapshot is taken.
type TabSnapshot struct {
	ID                   TabID         `json:"id"`
	Name                 TabName       `json:"name"`
	SelectedTool         ToolID        `json:"selectedTool,omitempty"`
	SelectedAttack       AttackID      `json:"selectedAttack,omitempty"`
	SelectedCategory     Category      `json:"selectedCategory,omitempty"`
	Parameters           Parameters    `json:"parameters"`
	CustomCommand        string        `json:"customCommand,omitempty"`
	Status               SessionStatus `json:"status"`
	IsRunning            bool          `json:"isRunning"`
	Loading              bool          `json:"loading"`
	IframeReady          bool          `json:"iframeReady"`
	LockedForInteraction bool          `json:"lockedForInteraction"`
	MultiOutput          bool          `json:"multiOutput"`
	Streams              []StreamID    `json:"streams,omitempty"`
	ActiveOutput         StreamID      `json:"activeOutputId,omitempty"`
	ViewMode             ViewMode      `json:"viewMode,omitempty"`
	Active               bool          `json:"active"`
}

// BufferSnapshot represents the transcript of a tab or one of its streams.
type BufferSnapshot struct {
	TabID      TabID    `json:"tabId"`
	StreamID   StreamID `json:"outputId,omitempty"`
	Lines      []string `json:"lines"`
	TotalLines int      `json:"totalLines"`
}
