package coretypes

// BusEventType discriminates OrchestratorEvent payloads broadcast over the
// Event Bus, grounded on original_source's event_bus/types.rs
// OrchestratorEvent enum.
type BusEventType string

const (
	BusExecutionStarted   BusEventType = "execution.started"
	BusPlanningStarted    BusEventType = "execution.planning"
	BusChatDelta          BusEventType = "chat.delta"
	BusToolStarted        BusEventType = "tool.started"
	BusToolCompleted      BusEventType = "tool.completed"
	BusApprovalRequired   BusEventType = "approval.required"
	BusApprovalGranted    BusEventType = "approval.granted"
	BusApprovalDenied     BusEventType = "approval.denied"
	BusExecutionCompleted BusEventType = "execution.completed"
	BusExecutionFailed    BusEventType = "execution.failed"
	BusExecutionCancelled BusEventType = "execution.cancelled"
	BusA2aMessageSent     BusEventType = "a2a.message_sent"
	BusQuotaWarning       BusEventType = "quota.warning"
)

// OrchestratorEvent is one message published on the Event Bus. Every
// variant carries ExecutionID except QuotaWarning, whose ExecutionID is
// left empty (no execution context).
type OrchestratorEvent struct {
	Type        BusEventType
	ExecutionID string

	// ExecutionStarted
	SessionKey string

	// PlanningStarted
	Iteration int

	// ChatDelta
	Delta   string
	IsFinal bool

	// ToolStarted / ToolCompleted
	ToolName   string
	ToolCallID string
	Success    bool
	DurationMs int64

	// ApprovalRequired
	RequestID string

	// ExecutionFailed
	Error string

	// A2aMessageSent
	SessionID string
	FromAgent string
	ToAgent   string
	MessageID string

	// QuotaWarning
	Provider     string
	RemainingPct float64
	ResetInSecs  *int64
}
