package audit

import (
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// EventType represents the type of audit/trajectory event.
type EventType string

const (
	EventToolCallIssued      EventType = "tool_call.issued"
	EventToolCallResult      EventType = "tool_call.result"
	EventErrorRaised         EventType = "error.raised"
	EventCorrectionProposed  EventType = "correction.proposed"
	EventCorrectionApplied   EventType = "correction.applied"
	EventStrategyDisabled    EventType = "strategy.disabled"
	EventStrategyReenabled   EventType = "strategy.reenabled"
	EventToolMarkedOffline   EventType = "tool.marked_offline"
	EventToolRecovered       EventType = "tool.recovered"
	EventRegistryRefreshed   EventType = "registry.refreshed"
	EventAliasReloaded       EventType = "alias.reloaded"
	EventSelfHealActionTaken EventType = "self_heal.action_taken"

	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"
	EventConfigReload  EventType = "config.reload"

	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
	EventHealthCheck    EventType = "system.health_check"
)

// Result represents the outcome of an audited event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
	ResultDenied  Result = "denied"
)

// Event represents a single audit/trajectory log entry.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	EventType     EventType `json:"event_type"`
	Result        Result    `json:"result"`

	TaskID string `json:"task_id,omitempty"`
	ToolID string `json:"tool_id,omitempty"`
	Action string `json:"action,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultPending,
		Metadata:  make(map[string]interface{}),
	}
}

// WithCorrelationID sets the correlation ID (task_id) for event tracking.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	e.TaskID = id
	return e
}

// WithTool sets the tool_id/action this event concerns.
func (e *Event) WithTool(toolID, action string) *Event {
	e.ToolID = toolID
	e.Action = action
	return e
}

// WithDescription sets a human-readable description.
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event.
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithError sets error information.
func (e *Event) WithError(err error, code string) *Event {
	if err != nil {
		e.Error = err.Error()
		e.ErrorCode = code
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds.
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}

// FromToolCall seeds an event's correlation/tool fields from a ToolCall.
func (e *Event) FromToolCall(call types.ToolCall) *Event {
	e.WithCorrelationID(call.TaskID)
	e.WithTool(call.ToolID, call.Action)
	return e
}
