package coretypes

import "time"

// ExecutionStatus is the terminal (or in-flight) state of one Process call.
type ExecutionStatus string

const (
	ExecStatusPending        ExecutionStatus = "pending"
	ExecStatusRunning        ExecutionStatus = "running"
	ExecStatusCompleted      ExecutionStatus = "completed"
	ExecStatusPartialSuccess ExecutionStatus = "partial_success"
	ExecStatusFailed         ExecutionStatus = "failed"
	ExecStatusCancelled      ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status ends the execution.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecStatusCompleted, ExecStatusPartialSuccess, ExecStatusFailed, ExecStatusCancelled:
		return true
	default:
		return false
	}
}

// ChannelTuple identifies the caller of one Process invocation.
type ChannelTuple struct {
	ChannelType string
	ChannelID   string
	UserID      string
	ThreadID    string
}

// ToolCallRecord captures one executed tool call for the execution record
// and for the post-execution summary line.
type ToolCallRecord struct {
	ToolName    string `json:"tool_name"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	Success     bool   `json:"success"`
	DurationMs  int64  `json:"duration_ms"`
	PersonaName string `json:"persona_name,omitempty"`
}

// Artifact is a typed side-channel output extracted from a tool result
// (screenshot, image, or named artifact blob).
type Artifact struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"` // screenshot, image, artifact
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"` // base64
}

// ProcessInput is the Orchestrator's single public input shape.
type ProcessInput struct {
	ChannelType           string
	ChannelID             string
	UserID                string
	ThreadID              string
	Text                  string
	Images                []Image
	SystemPromptOverride  string
}

// ExecutionResult is the Orchestrator's single public output shape.
type ExecutionResult struct {
	ExecutionID string
	Status      ExecutionStatus
	Response    string
	ToolCalls   []ToolCallRecord
	Artifacts   []Artifact
	Iterations  int
	DurationMs  int64
	Model       string
}

// Execution is the in-flight/persisted record of one Process call.
type Execution struct {
	ID         string
	Input      ProcessInput
	Channel    ChannelTuple
	Status     ExecutionStatus
	StartedAt  time.Time
	EndedAt    time.Time
	Response   string
	ToolCalls  []ToolCallRecord
	Artifacts  []Artifact
	Iterations int
	Model      string
	Error      string
}

// Duration returns EndedAt-StartedAt, or zero if not yet ended.
func (e *Execution) Duration() time.Duration {
	if e.EndedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}
