package approvalmgr

import (
	"context"
	"testing"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

type recordingBus struct {
	events []coretypes.OrchestratorEvent
}

func (b *recordingBus) Publish(ev coretypes.OrchestratorEvent) {
	b.events = append(b.events, ev)
}

func TestApproveByOriginatingUserSucceeds(t *testing.T) {
	bus := &recordingBus{}
	m := NewManager(bus)

	id := m.Create("exec-1", "user-1", "execute tool git_push", "git_push", time.Minute)
	req, ok := m.ApproveBy(id, "user-1")
	if !ok {
		t.Fatalf("expected approval to succeed")
	}
	if req.Status != coretypes.ApprovalApproved {
		t.Fatalf("expected approved status, got %s", req.Status)
	}
}

func TestApproveByOtherUserDenied(t *testing.T) {
	m := NewManager(nil)
	id := m.Create("exec-1", "user-1", "execute tool git_push", "git_push", time.Minute)

	if _, ok := m.ApproveBy(id, "user-2"); ok {
		t.Fatalf("expected approval by non-originating user to be rejected")
	}

	pending := m.PendingForUser("user-1")
	if len(pending) != 1 || pending[0].Status != coretypes.ApprovalPending {
		t.Fatalf("expected request to remain pending, got %+v", pending)
	}
}

func TestAdminCanResolveAnyRequest(t *testing.T) {
	m := NewManager(nil)
	id := m.Create("exec-1", "user-1", "execute tool git_push", "git_push", time.Minute)

	req, ok := m.RejectBy(id, "admin")
	if !ok {
		t.Fatalf("expected admin reject to succeed")
	}
	if req.Status != coretypes.ApprovalDenied {
		t.Fatalf("expected denied status, got %s", req.Status)
	}
}

func TestExpireDueTransitionsPastTTL(t *testing.T) {
	m := NewManager(nil)
	id := m.Create("exec-1", "user-1", "execute tool git_push", "git_push", 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	expired := m.ExpireDue()
	if len(expired) != 1 || expired[0].ID != id {
		t.Fatalf("expected request %s to expire, got %+v", id, expired)
	}

	if _, ok := m.ApproveBy(id, "user-1"); ok {
		t.Fatalf("expected expired request to reject further approval")
	}
}

func TestRequestAndAwaitBlocksUntilResolved(t *testing.T) {
	m := NewManager(nil)

	resultCh := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		approved, err := m.RequestAndAwait(context.Background(), "exec-1", "user-1", "execute tool send_email", "send_email", time.Minute)
		resultCh <- approved
		errCh <- err
	}()

	// Give the goroutine time to create the request before resolving it.
	time.Sleep(10 * time.Millisecond)
	pending := m.PendingForUser("user-1")
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending))
	}
	if _, ok := m.ApproveBy(pending[0].ID, "user-1"); !ok {
		t.Fatalf("expected approval to succeed")
	}

	select {
	case approved := <-resultCh:
		if !approved {
			t.Fatalf("expected RequestAndAwait to return approved=true")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for RequestAndAwait to return")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestAndAwaitRespectsContextCancellation(t *testing.T) {
	m := NewManager(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	approved, err := m.RequestAndAwait(ctx, "exec-1", "user-1", "execute tool send_email", "send_email", time.Minute)
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
	if approved {
		t.Fatalf("expected approved=false on cancellation")
	}
}
