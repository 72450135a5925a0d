// Package llmrouter implements the uniform multi-provider LLM facade
//: provider selection, a 120s hard timeout per dispatch,
// per-execution sticky fallback, auto-downgrade on context-window
// errors, quota/cost tracking, and error sanitization.
package llmrouter

import (
	"context"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// DispatchTimeout is the hard wall-clock timeout applied to every
// provider dispatch, regardless of caller-supplied context deadline.
const DispatchTimeout = 120 * time.Second

// Image is an inline multimodal attachment on a user message, mirroring
// coretypes.Image at the provider-request boundary.
type Image struct {
	MimeType string
	Data     string // base64, no data: prefix
	URL      string
}

// Message is one entry of a completion request, mirroring the provider
// wire shape rather than coretypes.Message (no trim/session concerns here).
type Message struct {
	Role        string
	Content     string
	Images      []Image
	ToolCalls   []ToolCall
	ToolCallID  string
	ToolIsError bool
}

// ToolCall is an LLM's request to invoke a tool.
type ToolCall struct {
	ID               string
	Name             string
	Arguments        string
	ThoughtSignature string
}

// ToolSpec describes one callable tool to a provider.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []byte // JSON schema
}

// Request is the uniform completion request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Tools       []ToolSpec
	ToolChoice  string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Usage reports token consumption for cost tracking.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the uniform completion response.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string
	Model        string
	Provider     string

	// Quota is the provider's live quota snapshot parsed from response
	// headers, if the provider adapter populates it. Nil means unknown.
	Quota *coretypes.QuotaState
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	SupportsTools  bool
	SupportsVision bool
	DefaultModel   string
	SmallerVariant string // model id to auto-downgrade to on context-window errors
}

// Provider is the capability set every LLM backend implements.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Complete(ctx context.Context, req Request) (*Response, error)
}
