package coretypes

import (
	"encoding/json"
	"time"
)

// Risk governs approval and sandbox policy for a tool.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// ToolDefinition is the catalog entry for a registered tool.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
	Risk        Risk            `json:"risk"`
	Category    string          `json:"category,omitempty"`
}

// ToolExecResult is the outcome of running a tool.
type ToolExecResult struct {
	Success    bool            `json:"success"`
	Output     json.RawMessage `json:"output"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// ApprovalStatus is the lifecycle state of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is a pending human decision keyed by ID.
type ApprovalRequest struct {
	ID          string
	ExecutionID string
	UserID      string
	Action      string
	ToolName    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Status      ApprovalStatus
}
