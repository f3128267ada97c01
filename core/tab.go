package core

import (
	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/schema"
)

// tab tracks the state of a single attack session. IsRunning and the
// interaction lock are never stored; see running and locked.
type tab struct {
	ID            schema.TabID
	Name          schema.TabName
	Tool          schema.ToolID
	Attack        schema.AttackID
	Category      schema.Category
	Params        schema.Parameters
	CustomCommand string
	Status        schema.SessionStatus
	Loading       bool
	IframeReady   bool
	output        *buffer
	streams       map[schema.StreamID]*buffer
	streamOrder   []schema.StreamID
	exited        map[schema.StreamID]bool
	activeOutput  schema.StreamID
	viewMode      schema.ViewMode
	runSeq        uint64
	stopWatchdog  func() bool
}

func newTab(id schema.TabID, name schema.TabName, maxLines int) *tab {
	return &tab{
		ID:     id,
		Name:   name,
		Params: schema.Parameters{},
		Status: schema.StatusIdle,
		output: newBuffer(maxLines),
	}
}

func (t *tab) running() bool {
	return t.Status == schema.StatusRunning
}

func (t *tab) locked() bool {
	return t.running() || t.Loading
}

func (t *tab) multiOutput() bool {
	return len(t.streamOrder) > 0
}

// resetStreams rebuilds the per-stream transcripts for tool. Single-output
// tools have none.
func (t *tab) resetStreams(tool *catalog.Tool, maxLines int) {
	t.streams = nil
	t.streamOrder = nil
	t.exited = nil
	t.activeOutput = ""
	t.viewMode = ""
	if tool == nil || !tool.IsMultiOutput() {
		return
	}
	t.streams = make(map[schema.StreamID]*buffer)
	for _, id := range tool.StreamIDs() {
		t.streams[id] = newBuffer(maxLines)
		t.streamOrder = append(t.streamOrder, id)
	}
	t.activeOutput = t.streamOrder[0]
	t.viewMode = schema.ViewSingle
}

// stream returns the transcript of a stream, creating it for stream ids the
// executor introduces on its own.
func (t *tab) stream(id schema.StreamID, maxLines int) *buffer {
	if buf, ok := t.streams[id]; ok {
		return buf
	}
	if t.streams == nil {
		t.streams = make(map[schema.StreamID]*buffer)
	}
	buf := newBuffer(maxLines)
	t.streams[id] = buf
	t.streamOrder = append(t.streamOrder, id)
	if t.activeOutput == "" {
		t.activeOutput = id
	}
	if t.viewMode == "" {
		t.viewMode = schema.ViewSingle
	}
	return buf
}

func (t *tab) clearTranscripts() {
	t.output.Clear()
	for _, buf := range t.streams {
		buf.Clear()
	}
	t.exited = nil
}

func (t *tab) disarmWatchdog() {
	if t.stopWatchdog != nil {
		t.stopWatchdog()
		t.stopWatchdog = nil
	}
}

// Snapshot returns a transport-friendly view of the tab.
func (t *tab) Snapshot(active bool) schema.TabSnapshot {
	snap := schema.TabSnapshot{
		ID:                   t.ID,
		Name:                 t.Name,
		SelectedTool:         t.Tool,
		SelectedAttack:       t.Attack,
		SelectedCategory:     t.Category,
		Parameters:           t.Params.Clone(),
		CustomCommand:        t.CustomCommand,
		Status:               t.Status,
		IsRunning:            t.running(),
		Loading:              t.Loading,
		IframeReady:          t.IframeReady,
		LockedForInteraction: t.locked(),
		MultiOutput:          t.multiOutput(),
		Active:               active,
	}
	if snap.MultiOutput {
		snap.Streams = append([]schema.StreamID(nil), t.streamOrder...)
		snap.ActiveOutput = t.activeOutput
		snap.ViewMode = t.viewMode
	}
	return snap
}
