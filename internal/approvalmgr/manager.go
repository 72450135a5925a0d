// Package approvalmgr implements the Approval Manager: an
// in-memory map of pending human decisions keyed by request id, with
// TTL-based expiry and originating-user-only resolution.
package approvalmgr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// Publisher is the narrow slice of the Event Bus the manager needs to
// announce request lifecycle transitions.
type Publisher interface {
	Publish(coretypes.OrchestratorEvent)
}

// Manager tracks pending approval requests in memory.
type Manager struct {
	mu       sync.Mutex
	requests map[string]*coretypes.ApprovalRequest
	waiters  map[string]chan struct{}
	bus      Publisher
}

// NewManager constructs an empty Manager. bus may be nil, in which case
// lifecycle events are not published.
func NewManager(bus Publisher) *Manager {
	return &Manager{
		requests: make(map[string]*coretypes.ApprovalRequest),
		waiters:  make(map[string]chan struct{}),
		bus:      bus,
	}
}

// Create records a new pending request and returns its id.
func (m *Manager) Create(executionID, userID, action, toolName string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	req := &coretypes.ApprovalRequest{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		UserID:      userID,
		Action:      action,
		ToolName:    toolName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Status:      coretypes.ApprovalPending,
	}

	m.mu.Lock()
	m.requests[req.ID] = req
	m.waiters[req.ID] = make(chan struct{})
	m.mu.Unlock()

	m.publish(coretypes.OrchestratorEvent{
		Type:        coretypes.BusApprovalRequired,
		ExecutionID: executionID,
		RequestID:   req.ID,
	})

	return req.ID
}

// ApproveBy resolves id as approved, if userID is the originating user
// (or "admin") and the request is still pending and unexpired.
func (m *Manager) ApproveBy(id, userID string) (*coretypes.ApprovalRequest, bool) {
	return m.resolve(id, userID, coretypes.ApprovalApproved)
}

// RejectBy resolves id as denied, under the same authorization rule as
// ApproveBy.
func (m *Manager) RejectBy(id, userID string) (*coretypes.ApprovalRequest, bool) {
	return m.resolve(id, userID, coretypes.ApprovalDenied)
}

func (m *Manager) resolve(id, userID string, status coretypes.ApprovalStatus) (*coretypes.ApprovalRequest, bool) {
	m.mu.Lock()
	req, ok := m.requests[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if req.Status != coretypes.ApprovalPending {
		m.mu.Unlock()
		return req, false
	}
	if time.Now().After(req.ExpiresAt) {
		req.Status = coretypes.ApprovalExpired
		waiter := m.waiters[id]
		m.mu.Unlock()
		closeOnce(waiter)
		return req, false
	}
	if userID != req.UserID && userID != "admin" {
		m.mu.Unlock()
		return nil, false
	}

	req.Status = status
	waiter := m.waiters[id]
	m.mu.Unlock()
	closeOnce(waiter)

	eventType := coretypes.BusApprovalRequired
	switch status {
	case coretypes.ApprovalApproved:
		eventType = coretypes.BusApprovalGranted
	case coretypes.ApprovalDenied:
		eventType = coretypes.BusApprovalDenied
	}
	m.publish(coretypes.OrchestratorEvent{
		Type:        eventType,
		ExecutionID: req.ExecutionID,
		RequestID:   req.ID,
	})

	return req, true
}

// PendingForUser returns every still-pending, unexpired request
// belonging to userID.
func (m *Manager) PendingForUser(userID string) []coretypes.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []coretypes.ApprovalRequest
	for _, req := range m.requests {
		if req.UserID != userID || req.Status != coretypes.ApprovalPending {
			continue
		}
		if now.After(req.ExpiresAt) {
			continue
		}
		out = append(out, *req)
	}
	return out
}

// ExpireDue transitions every pending request past its ExpiresAt to
// expired and returns the ones it just expired.
func (m *Manager) ExpireDue() []coretypes.ApprovalRequest {
	m.mu.Lock()
	now := time.Now()
	var expired []coretypes.ApprovalRequest
	var waiters []chan struct{}
	for id, req := range m.requests {
		if req.Status == coretypes.ApprovalPending && now.After(req.ExpiresAt) {
			req.Status = coretypes.ApprovalExpired
			expired = append(expired, *req)
			waiters = append(waiters, m.waiters[id])
		}
	}
	m.mu.Unlock()

	for _, w := range waiters {
		closeOnce(w)
	}
	return expired
}

// RequestAndAwait satisfies toolrunner.ApprovalGate: it creates a
// request and blocks until it resolves, the TTL elapses, or ctx is
// cancelled, returning whether the tool call was approved.
func (m *Manager) RequestAndAwait(ctx context.Context, executionID, userID, action, toolName string, ttl time.Duration) (bool, error) {
	id := m.Create(executionID, userID, action, toolName, ttl)

	m.mu.Lock()
	waiter := m.waiters[id]
	m.mu.Unlock()

	select {
	case <-waiter:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(ttl + time.Second):
		m.ExpireDue()
	}

	m.mu.Lock()
	req := m.requests[id]
	m.mu.Unlock()
	if req == nil {
		return false, nil
	}
	return req.Status == coretypes.ApprovalApproved, nil
}

func (m *Manager) publish(ev coretypes.OrchestratorEvent) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

func closeOnce(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}
