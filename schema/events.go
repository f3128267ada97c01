package schema

// MessageType is the type tag of a gateway message.
type MessageType string

const (
	// MessageExecute dispatches a single command for a tab.
	MessageExecute MessageType = "execute"
	// MessageExecuteMulti dispatches one sub-command of a multi-output tool.
	MessageExecuteMulti MessageType = "execute-multi"
	// MessageStop asks the executor to stop everything running for a tab.
	MessageStop MessageType = "stop"
)

// EventKind is the type tag of an inbound gateway message.
type EventKind string

const (
	// EventOutput carries a transcript line.
	EventOutput EventKind = "output"
	// EventError carries an error line from the executor.
	EventError EventKind = "error"
	// EventMessage carries an informational transcript line.
	EventMessage EventKind = "message"
	// EventNotification carries a toast-style notice.
	EventNotification EventKind = "notification"
)

// EventKinds lists every inbound kind the router subscribes to.
var EventKinds = []EventKind{EventOutput, EventError, EventMessage, EventNotification}

// Valid reports whether the kind is known.
func (k EventKind) Valid() bool {
	switch k {
	case EventOutput, EventError, EventMessage, EventNotification:
		return true
	default:
		return false
	}
}

// OutboundMessage is sent to the executor through the gateway.
type OutboundMessage struct {
	Type             MessageType `json:"type"`
	TabID            TabID       `json:"tabId"`
	Command          string      `json:"command,omitempty"`
	OutputID         StreamID    `json:"outputId,omitempty"`
	WorkingDirectory string      `json:"workingDirectory,omitempty"`
	Parameters       Parameters  `json:"parameters,omitempty"`
}

// InboundMessage is delivered by the gateway from the executor.
type InboundMessage struct {
	Type     EventKind `json:"type"`
	TabID    TabID     `json:"tabId"`
	OutputID StreamID  `json:"outputId,omitempty"`
	Payload  string    `json:"payload,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Text returns the payload, falling back to the message field.
func (m InboundMessage) Text() string {
	if m.Payload != "" {
		return m.Payload
	}
	return m.Message
}
