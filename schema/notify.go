package schema

// OutputEvent represents appended transcript lines for a tab or stream.
type OutputEvent struct {
	UserID   UserID
	TabID    TabID
	StreamID StreamID
	Lines    []string
}

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventClosed indicates a tab was closed.
	TabEventClosed TabEventType = "closed"
	// TabEventActivated indicates a tab became active.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates tab configuration changed.
	TabEventUpdated TabEventType = "updated"
	// TabEventStatus indicates an execution state change.
	TabEventStatus TabEventType = "status"
	// TabEventCleared indicates a transcript was cleared for a new run.
	TabEventCleared TabEventType = "cleared"
)

// TabEvent represents a change to a tab or the tab list.
type TabEvent struct {
	UserID    UserID
	Type      TabEventType
	Tab       TabSnapshot
	ActiveTab TabID
}

// NotificationLevel grades a notification.
type NotificationLevel string

const (
	// NotifyInfo is informational.
	NotifyInfo NotificationLevel = "info"
	// NotifyWarning is a recoverable problem.
	NotifyWarning NotificationLevel = "warning"
	// NotifyError is a failure the operator must act on.
	NotifyError NotificationLevel = "error"
)

// Notification titles used by the core.
const (
	NotifyTitleExecutor = "Executor"
	NotifyTitleError    = "Error"
	NotifyTitleFatal    = "Fatal error"
	NotifyTitleGateway  = "Gateway"
	NotifyTitleTimeout  = "Readiness timeout"
)

// NotificationEvent is raised for the notification collaborator.
type NotificationEvent struct {
	UserID  UserID
	TabID   TabID
	Level   NotificationLevel
	Title   string
	Message string
}
