package schema

import "sort"

// UserID identifies the operator owning a set of tabs.
type UserID string

// TabID identifies a tab session.
type TabID string

// TabName is the user-facing name of a tab.
type TabName string

// ToolID identifies a catalog tool.
type ToolID string

// AttackID identifies an attack variant of a tool.
type AttackID string

// StreamID identifies a named sub-stream of a multi-output tool.
type StreamID string

// Category is a catalog grouping used to filter tools.
type Category string

// SessionStatus is the execution state of a tab.
type SessionStatus string

const (
	// StatusIdle indicates nothing is executing.
	StatusIdle SessionStatus = "idle"
	// StatusRunning indicates a command was dispatched and has not finished.
	StatusRunning SessionStatus = "running"
	// StatusCompleted indicates the executor reported a clean finish.
	StatusCompleted SessionStatus = "completed"
	// StatusError indicates the session failed.
	StatusError SessionStatus = "error"
	// StatusStopped indicates the operator stopped the session.
	StatusStopped SessionStatus = "stopped"
)

// Valid reports whether the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusError, StatusStopped:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends an execution.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// ViewMode selects how multi-output transcripts are shown.
type ViewMode string

const (
	// ViewSingle shows one stream at a time.
	ViewSingle ViewMode = "single"
	// ViewSplit shows all streams side by side.
	ViewSplit ViewMode = "split"
)

// Parameters holds the current parameter values of a tab.
type Parameters map[string]string

// Clone returns a copy of the parameters.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return Parameters{}
	}
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
