package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cratos-ai/orchestrator/internal/approvalmgr"
	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/eventstore"
	"github.com/cratos-ai/orchestrator/internal/llmrouter"
	"github.com/cratos-ai/orchestrator/internal/planner"
	"github.com/cratos-ai/orchestrator/internal/sessionstore"
	"github.com/cratos-ai/orchestrator/internal/toolrunner"
)

// fakeEventStore is a minimal in-memory eventstore.Store for testing the
// Orchestrator Core without a database.
type fakeEventStore struct {
	executions map[string]*coretypes.Execution
	events     map[string][]coretypes.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{executions: map[string]*coretypes.Execution{}, events: map[string][]coretypes.Event{}}
}

func (f *fakeEventStore) CreateExecution(ctx context.Context, e *coretypes.Execution) error {
	f.executions[e.ID] = e
	return nil
}
func (f *fakeEventStore) UpdateExecutionStatus(ctx context.Context, id string, status coretypes.ExecutionStatus, errMsg string) error {
	if e, ok := f.executions[id]; ok {
		e.Status = status
		e.Error = errMsg
	}
	return nil
}
func (f *fakeEventStore) GetExecution(ctx context.Context, id string) (*coretypes.Execution, error) {
	return f.executions[id], nil
}
func (f *fakeEventStore) Append(ctx context.Context, e *coretypes.Event) error {
	f.events[e.ExecutionID] = append(f.events[e.ExecutionID], *e)
	return nil
}
func (f *fakeEventStore) GetExecutionEvents(ctx context.Context, executionID string) ([]coretypes.Event, error) {
	return f.events[executionID], nil
}
func (f *fakeEventStore) NextSequenceNum(ctx context.Context, executionID string) (int64, error) {
	return int64(len(f.events[executionID])) + 1, nil
}
func (f *fakeEventStore) Query(ctx context.Context, q eventstore.Query) ([]coretypes.Event, error) {
	return f.events[q.ExecutionID], nil
}
func (f *fakeEventStore) Count(ctx context.Context, q eventstore.Query) (int, error) {
	return len(f.events[q.ExecutionID]), nil
}
func (f *fakeEventStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// scriptedPlanner steps through a fixed sequence of responses, one per
// PlanStepWithSystemPrompt call, repeating the last entry once exhausted.
type scriptedProvider struct {
	responses []llmrouter.Response
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Capabilities() llmrouter.Capabilities {
	return llmrouter.Capabilities{SupportsTools: true, DefaultModel: "m"}
}
func (p *scriptedProvider) Complete(ctx context.Context, req llmrouter.Request) (*llmrouter.Response, error) {
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	resp := p.responses[idx]
	resp.Model = "m"
	resp.Provider = "scripted"
	return &resp, nil
}

func newTestOrchestrator(t *testing.T, responses []llmrouter.Response, approvals toolrunner.ApprovalGate) (*Orchestrator, *scriptedProvider) {
	t.Helper()
	router := llmrouter.NewRouter("scripted", llmrouter.DefaultCircuitConfig())
	sp := &scriptedProvider{responses: responses}
	router.Register(sp)
	plan := planner.New(router, "scripted", "m")

	reg := toolrunner.NewRegistry()
	reg.Register(toolrunner.Definition{Name: "exec", Risk: toolrunner.RiskLow}, func(ctx context.Context, params json.RawMessage) (*toolrunner.ExecResult, error) {
		return &toolrunner.ExecResult{Success: true, Output: `{"stdout":"hi\n"}`}, nil
	})
	reg.Register(toolrunner.Definition{Name: "git_push", Risk: toolrunner.RiskHigh}, func(ctx context.Context, params json.RawMessage) (*toolrunner.ExecResult, error) {
		return &toolrunner.ExecResult{Success: true, Output: "pushed"}, nil
	})
	runner := toolrunner.NewRunner(reg, approvals, nil, toolrunner.PolicyModerate, 0)

	sessions := sessionstore.NewMemoryStore(time.Hour)
	events := newFakeEventStore()
	cfg := DefaultConfig()

	o := New(sessions, nil, events, nil, nil, plan, runner, cfg, nil)
	return o, sp
}

type denyGate struct{}

func (denyGate) RequestAndAwait(ctx context.Context, executionID, userID, action, toolName string, ttl time.Duration) (bool, error) {
	return false, nil
}

func TestProcessHappyPathNoTools(t *testing.T) {
	o, _ := newTestOrchestrator(t, []llmrouter.Response{{Content: "hello!"}}, nil)
	result, err := o.Process(context.Background(), coretypes.ProcessInput{ChannelType: "cli", ChannelID: "c1", UserID: "u1", Text: "hi"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != coretypes.ExecStatusCompleted {
		t.Fatalf("expected Completed, got %s", result.Status)
	}
	if result.Response != "hello!" {
		t.Fatalf("unexpected response: %q", result.Response)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestProcessOneToolThenAnswer(t *testing.T) {
	o, _ := newTestOrchestrator(t, []llmrouter.Response{
		{ToolCalls: []llmrouter.ToolCall{{ID: "t1", Name: "exec", Arguments: `{"command":"echo hi"}`}}},
		{Content: "done"},
	}, nil)
	result, err := o.Process(context.Background(), coretypes.ProcessInput{ChannelType: "cli", ChannelID: "c1", UserID: "u1", Text: "run echo hi please"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != coretypes.ExecStatusCompleted {
		t.Fatalf("expected Completed, got %s", result.Status)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", result.Iterations)
	}
	if len(result.ToolCalls) != 1 || !result.ToolCalls[0].Success {
		t.Fatalf("expected one successful tool call, got %+v", result.ToolCalls)
	}
	if result.Response != "done" {
		t.Fatalf("unexpected response: %q", result.Response)
	}
}

func TestProcessHighRiskDeniedYieldsPartialSuccess(t *testing.T) {
	o, _ := newTestOrchestrator(t, []llmrouter.Response{
		{ToolCalls: []llmrouter.ToolCall{{ID: "t1", Name: "git_push", Arguments: `{}`}}},
		{Content: "pushed nothing, approval was denied"},
	}, denyGate{})
	result, err := o.Process(context.Background(), coretypes.ProcessInput{ChannelType: "cli", ChannelID: "c1", UserID: "u1", Text: "please push the repo now"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != coretypes.ExecStatusPartialSuccess {
		t.Fatalf("expected PartialSuccess, got %s", result.Status)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Success {
		t.Fatalf("expected one failed tool call, got %+v", result.ToolCalls)
	}
	if result.ToolCalls[0].Output != "not approved" {
		t.Fatalf("expected 'not approved' output, got %q", result.ToolCalls[0].Output)
	}
}

func TestProcessBudgetExhaustionTriesFinalSummary(t *testing.T) {
	o, _ := newTestOrchestrator(t, []llmrouter.Response{
		{ToolCalls: []llmrouter.ToolCall{{ID: "t1", Name: "exec", Arguments: `{}`}}},
	}, nil)
	o.Config.MaxIterations = 2
	result, err := o.Process(context.Background(), coretypes.ProcessInput{ChannelType: "cli", ChannelID: "c1", UserID: "u1", Text: "keep running echo repeatedly"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Status != coretypes.ExecStatusCompleted && result.Status != coretypes.ExecStatusPartialSuccess {
		t.Fatalf("expected terminal status after exhaustion, got %s", result.Status)
	}
	if result.Iterations != 3 {
		t.Fatalf("expected exhaustion on iteration 3 (2 tool iterations + final summary), got %d", result.Iterations)
	}
}

func TestApprovalManagerSatisfiesGateAndDeniesOnExpiry(t *testing.T) {
	mgr := approvalmgr.NewManager(nil)
	o, _ := newTestOrchestrator(t, []llmrouter.Response{
		{ToolCalls: []llmrouter.ToolCall{{ID: "t1", Name: "git_push", Arguments: `{}`}}},
		{Content: "done"},
	}, mgr)

	go func() {
		time.Sleep(5 * time.Millisecond)
		pending := mgr.PendingForUser("u1")
		if len(pending) == 1 {
			mgr.ApproveBy(pending[0].ID, "u1")
		}
	}()

	result, err := o.Process(context.Background(), coretypes.ProcessInput{ChannelType: "cli", ChannelID: "c1", UserID: "u1", Text: "please push the repo now"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(result.ToolCalls) != 1 || !result.ToolCalls[0].Success {
		t.Fatalf("expected approved tool call to succeed, got %+v", result.ToolCalls)
	}
}
