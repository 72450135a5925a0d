package planner

import (
	"context"
	"testing"

	"github.com/cratos-ai/orchestrator/internal/llmrouter"
)

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }
func (echoProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{SupportsTools: true, DefaultModel: "echo-model"}
}
func (echoProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	return &llmrouter.Response{Content: req.System + "|" + req.Messages[len(req.Messages)-1].Content, Model: req.Model, Provider: "echo"}, nil
}

func newTestPlanner() *Planner {
	r := llmrouter.NewRouter("echo", llmrouter.DefaultCircuitConfig())
	r.Register(echoProvider{})
	return New(r, "echo", "echo-model")
}

func TestClassifyReturnsRawContent(t *testing.T) {
	p := newTestPlanner()
	out, err := p.Classify(context.Background(), "classify-prompt", "hello there")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if out != "classify-prompt|hello there" {
		t.Fatalf("unexpected classification output: %q", out)
	}
}

func TestPlanStepWithSystemPromptOverridesSystem(t *testing.T) {
	p := newTestPlanner()
	resp, err := p.PlanStepWithSystemPrompt(context.Background(), []llmrouter.Message{{Role: "user", Content: "do the thing"}}, nil, "custom-system", nil)
	if err != nil {
		t.Fatalf("PlanStepWithSystemPrompt: %v", err)
	}
	if resp.Content != "custom-system|do the thing" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
}
