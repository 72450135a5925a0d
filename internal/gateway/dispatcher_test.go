package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cratos-ai/orchestrator/internal/approvalmgr"
	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

type fakeProcessor struct {
	input coretypes.ProcessInput
	delay time.Duration
	err   error
}

func (f *fakeProcessor) Process(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error) {
	f.input = input
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &coretypes.ExecutionResult{Status: coretypes.ExecStatusCompleted}, nil
}

func rawParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return raw
}

func TestDispatchUnknownMethodReturnsErrorCode(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	resp := d.Dispatch(context.Background(), Request{ID: "1", Method: "no.such.method"}, Caller{UserID: "u1"})
	if resp.Error == nil || resp.Error.Code != coretypes.ErrUnknownMethod {
		t.Fatalf("expected UnknownMethod, got %+v", resp.Error)
	}
}

func TestDispatchMissingScopeReturnsForbidden(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	req := Request{ID: "2", Method: "chat.send", Params: rawParams(t, map[string]any{"text": "hi"})}
	resp := d.Dispatch(context.Background(), req, Caller{UserID: "u1", Scopes: map[coretypes.Scope]bool{}})
	if resp.Error == nil || resp.Error.Code != coretypes.ErrForbidden {
		t.Fatalf("expected Forbidden, got %+v", resp.Error)
	}
}

func TestDispatchInvalidParamsReturnsErrorCode(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	caller := Caller{UserID: "u1", Scopes: map[coretypes.Scope]bool{coretypes.ScopeExecutionWrite: true}}
	req := Request{ID: "3", Method: "chat.send", Params: rawParams(t, map[string]any{})} // missing required "text"
	resp := d.Dispatch(context.Background(), req, caller)
	if resp.Error == nil || resp.Error.Code != coretypes.ErrInvalidParams {
		t.Fatalf("expected InvalidParams, got %+v", resp.Error)
	}
}

func TestDispatchPingRequiresNoScope(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	resp := d.Dispatch(context.Background(), Request{ID: "4", Method: "ping"}, Caller{UserID: "anon"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var out map[string]bool
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !out["pong"] {
		t.Fatalf("expected pong true, got %+v", out)
	}
}

func TestChatSendAcceptsAndRunsAsync(t *testing.T) {
	proc := &fakeProcessor{delay: 20 * time.Millisecond}
	d := NewDispatcher(proc, nil, nil, nil)
	caller := Caller{UserID: "u1", Scopes: map[coretypes.Scope]bool{coretypes.ScopeExecutionWrite: true}}
	req := Request{ID: "5", Method: "chat.send", Params: rawParams(t, map[string]any{
		"channel_type": "gateway", "channel_id": "c1", "text": "hello",
	})}

	resp := d.Dispatch(context.Background(), req, caller)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out["status"] != "accepted" || out["execution_id"] == "" {
		t.Fatalf("unexpected accept payload: %+v", out)
	}

	deadline := time.After(200 * time.Millisecond)
	for proc.input.Text == "" {
		select {
		case <-deadline:
			t.Fatal("orchestrator never observed the async call")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if proc.input.Text != "hello" {
		t.Fatalf("expected text 'hello', got %q", proc.input.Text)
	}
}

func TestChatCancelCancelsInFlightExecution(t *testing.T) {
	proc := &fakeProcessor{delay: time.Second}
	d := NewDispatcher(proc, nil, nil, nil)
	caller := Caller{UserID: "u1", Scopes: map[coretypes.Scope]bool{coretypes.ScopeExecutionWrite: true}}

	sendReq := Request{ID: "6", Method: "chat.send", Params: rawParams(t, map[string]any{
		"channel_type": "gateway", "channel_id": "c1", "text": "hello",
	})}
	if resp := d.Dispatch(context.Background(), sendReq, caller); resp.Error != nil {
		t.Fatalf("send failed: %+v", resp.Error)
	}

	time.Sleep(5 * time.Millisecond)

	cancelReq := Request{ID: "7", Method: "chat.cancel", Params: rawParams(t, map[string]any{
		"channel_type": "gateway", "channel_id": "c1",
	})}
	resp := d.Dispatch(context.Background(), cancelReq, caller)
	if resp.Error != nil {
		t.Fatalf("unexpected cancel error: %+v", resp.Error)
	}

	resp2 := d.Dispatch(context.Background(), cancelReq, caller)
	if resp2.Error == nil || resp2.Error.Code != coretypes.ErrNotFound {
		t.Fatalf("expected NotFound on second cancel, got %+v", resp2.Error)
	}
}

func TestApprovalRespondRoundTripsThroughRealManager(t *testing.T) {
	mgr := approvalmgr.NewManager(nil)
	id := mgr.Create("exec-1", "u1", "run shell command", "exec", time.Minute)

	d := NewDispatcher(&fakeProcessor{}, nil, mgr, nil)
	caller := Caller{UserID: "u1", Scopes: map[coretypes.Scope]bool{coretypes.ScopeApprovalRespond: true}}

	listResp := d.Dispatch(context.Background(), Request{ID: "8", Method: "approval.list"}, caller)
	if listResp.Error != nil {
		t.Fatalf("unexpected list error: %+v", listResp.Error)
	}
	var pending []coretypes.ApprovalRequest
	if err := json.Unmarshal(listResp.Result, &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("expected one pending approval %q, got %+v", id, pending)
	}

	respondReq := Request{ID: "9", Method: "approval.respond", Params: rawParams(t, map[string]any{
		"id": id, "decision": "approve",
	})}
	resp := d.Dispatch(context.Background(), respondReq, caller)
	if resp.Error != nil {
		t.Fatalf("unexpected respond error: %+v", resp.Error)
	}
	var result coretypes.ApprovalRequest
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Status != coretypes.ApprovalApproved {
		t.Fatalf("expected approved status, got %q", result.Status)
	}
}

func TestCallerHasRespectsAdminScope(t *testing.T) {
	c := Caller{UserID: "root", Scopes: map[coretypes.Scope]bool{scopeAdmin: true}}
	if !c.Has(coretypes.ScopeNodeManage) {
		t.Fatal("expected admin scope to imply node:manage")
	}
}
