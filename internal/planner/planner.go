// Package planner wraps the LLM Router behind the three call shapes the
// Orchestrator Core and the Persona & Skill Router need: a plan step, a
// plan step with a system prompt override, and a one-shot classification
// call.
package planner

import (
	"context"

	"github.com/cratos-ai/orchestrator/internal/llmrouter"
)

// Planner dispatches completion requests through a Router, applying the
// Router's own 120s hard timeout and fallback behavior.
type Planner struct {
	Router          *llmrouter.Router
	DefaultProvider string
	DefaultModel    string
}

// New constructs a Planner bound to router.
func New(router *llmrouter.Router, defaultProvider, defaultModel string) *Planner {
	return &Planner{Router: router, DefaultProvider: defaultProvider, DefaultModel: defaultModel}
}

// PlanStep dispatches messages and tools with no system prompt override,
// using whatever system message (if any) is already present in messages.
func (p *Planner) PlanStep(ctx context.Context, messages []llmrouter.Message, tools []llmrouter.ToolSpec, fallback *llmrouter.ExecutionFallback) (*llmrouter.Response, error) {
	req := llmrouter.Request{Model: p.DefaultModel, Messages: messages, Tools: tools}
	return p.Router.Dispatch(ctx, req, p.DefaultProvider, fallback)
}

// PlanStepWithSystemPrompt dispatches messages and tools with systemPrompt
// prepended as (or replacing) the system message.
func (p *Planner) PlanStepWithSystemPrompt(ctx context.Context, messages []llmrouter.Message, tools []llmrouter.ToolSpec, systemPrompt string, fallback *llmrouter.ExecutionFallback) (*llmrouter.Response, error) {
	req := llmrouter.Request{Model: p.DefaultModel, Messages: messages, Tools: tools, System: systemPrompt}
	return p.Router.Dispatch(ctx, req, p.DefaultProvider, fallback)
}

// Classify runs a short single-turn completion (no tools, no fallback
// stickiness engaged) and returns the raw response content. Callers that
// need a classification label trim/unquote/lowercase it themselves, since
// the acceptable-label set is caller-specific (persona names, skill
// categories, etc).
func (p *Planner) Classify(ctx context.Context, systemPrompt, input string) (string, error) {
	req := llmrouter.Request{
		Model:    p.DefaultModel,
		System:   systemPrompt,
		Messages: []llmrouter.Message{{Role: "user", Content: input}},
	}
	resp, err := p.Router.Dispatch(ctx, req, p.DefaultProvider, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
