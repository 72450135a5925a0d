package coretypes

import "time"

// EventType enumerates the persisted event taxonomy.
type EventType string

const (
	EventUserInput          EventType = "user_input"
	EventPlanCreated        EventType = "plan_created"
	EventLlmRequest         EventType = "llm_request"
	EventLlmResponse        EventType = "llm_response"
	EventToolCall           EventType = "tool_call"
	EventToolResult         EventType = "tool_result"
	EventApprovalRequested  EventType = "approval_requested"
	EventApprovalGranted    EventType = "approval_granted"
	EventApprovalDenied     EventType = "approval_denied"
	EventFinalResponse      EventType = "final_response"
	EventError              EventType = "error"
	EventCancelled          EventType = "cancelled"
	EventContextUpdated     EventType = "context_updated"
)

// Event is one entry in an execution's append-only, sequence_num-ordered log.
type Event struct {
	ID            string
	ExecutionID   string
	SequenceNum   int64
	Type          EventType
	Payload       map[string]any
	Timestamp     time.Time
	DurationMs    int64
	ParentEventID string
	Metadata      map[string]any
}
