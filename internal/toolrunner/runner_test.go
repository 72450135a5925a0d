package toolrunner

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type alwaysDenyGate struct{}

func (alwaysDenyGate) RequestAndAwait(ctx context.Context, executionID, userID, action, toolName string, ttl time.Duration) (bool, error) {
	return false, nil
}

type alwaysApproveGate struct{}

func (alwaysApproveGate) RequestAndAwait(ctx context.Context, executionID, userID, action, toolName string, ttl time.Duration) (bool, error) {
	return true, nil
}

func echoHandler(ctx context.Context, params json.RawMessage) (*ExecResult, error) {
	return &ExecResult{Success: true, Output: "echo: " + string(params)}, nil
}

func TestExecuteLowRiskNeverNeedsApproval(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Definition{Name: "echo", Risk: RiskLow}, echoHandler)
	r := NewRunner(reg, alwaysDenyGate{}, nil, PolicyStrict, 0)

	res, err := r.Execute(context.Background(), "exec-1", "user-1", "echo", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error=%s", res.Error)
	}
}

func TestExecuteHighRiskDeniedReturnsNotApproved(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Definition{Name: "git_push", Risk: RiskHigh}, echoHandler)
	r := NewRunner(reg, alwaysDenyGate{}, nil, PolicyModerate, 0)

	res, err := r.Execute(context.Background(), "exec-1", "user-1", "git_push", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Error != "not approved" {
		t.Fatalf("expected 'not approved', got %q", res.Error)
	}
}

func TestExecuteMediumRiskUnderStrictRequiresApproval(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Definition{Name: "send_email", Risk: RiskMedium}, echoHandler)
	r := NewRunner(reg, alwaysApproveGate{}, nil, PolicyStrict, 0)

	res, err := r.Execute(context.Background(), "exec-1", "user-1", "send_email", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected approved execution to succeed, got error=%s", res.Error)
	}
}

func TestExecuteMasksSecretsInOutput(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Definition{Name: "leaky", Risk: RiskLow}, func(ctx context.Context, params json.RawMessage) (*ExecResult, error) {
		return &ExecResult{Success: true, Output: "api_key=sk-abcdefghijklmnopqrstuvwx1234567890"}, nil
	})
	r := NewRunner(reg, nil, nil, PolicyDisabled, 0)

	res, err := r.Execute(context.Background(), "exec-1", "user-1", "leaky", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output == "api_key=sk-abcdefghijklmnopqrstuvwx1234567890" {
		t.Fatalf("expected secret to be masked, got raw output: %s", res.Output)
	}
}

func TestExecuteUnknownToolReturnsError(t *testing.T) {
	reg := NewRegistry()
	r := NewRunner(reg, nil, nil, PolicyDisabled, 0)

	res, err := r.Execute(context.Background(), "exec-1", "user-1", "nonexistent", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure for unknown tool")
	}
}
