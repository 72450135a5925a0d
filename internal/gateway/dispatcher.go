package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// Processor is the subset of the Orchestrator the gateway drives.
type Processor interface {
	Process(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error)
}

// SessionReader is the subset of the Session Store the gateway exposes
// read access to.
type SessionReader interface {
	Get(ctx context.Context, key string) (*coretypes.SessionContext, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
}

// ApprovalResponder is the subset of the Approval Manager the gateway
// drives for the approval.* method family.
type ApprovalResponder interface {
	PendingForUser(userID string) []coretypes.ApprovalRequest
	ApproveBy(id, userID string) (*coretypes.ApprovalRequest, bool)
	RejectBy(id, userID string) (*coretypes.ApprovalRequest, bool)
}

// Caller identifies the authenticated principal driving a Request, and the
// scopes its credential carries. ScopeAdmin, if present, implies every
// other scope.
type Caller struct {
	UserID string
	Scopes map[coretypes.Scope]bool
}

const scopeAdmin coretypes.Scope = "admin"

// Has reports whether the caller holds scope, directly or via admin.
func (c Caller) Has(scope coretypes.Scope) bool {
	if scope == "" {
		return true
	}
	return c.Scopes[scopeAdmin] || c.Scopes[scope]
}

// methodScope returns the scope a method name requires, matching by exact
// name first and then by "prefix." wildcard family.
func methodScope(method string) coretypes.Scope {
	switch {
	case method == "ping":
		return ""
	case method == "chat.send", method == "chat.cancel":
		return coretypes.ScopeExecutionWrite
	case strings.HasPrefix(method, "session."):
		if method == "session.get" || method == "session.list" {
			return coretypes.ScopeSessionRead
		}
		return coretypes.ScopeSessionWrite
	case method == "approval.list", method == "approval.respond":
		return coretypes.ScopeApprovalRespond
	case strings.HasPrefix(method, "node."):
		return coretypes.ScopeNodeManage
	case strings.HasPrefix(method, "a2a."):
		return coretypes.ScopeExecutionWrite
	default:
		return ""
	}
}

// Dispatcher routes transport-neutral Request frames to the components
// that back each method family, enforcing the scope table and per-method
// JSON-schema validation before a handler ever runs.
type Dispatcher struct {
	Orchestrator Processor
	Sessions     SessionReader
	Approvals    ApprovalResponder
	Log          *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc // session key -> cancel of latest execution
}

// NewDispatcher wires a Dispatcher to its backing components. Sessions and
// Approvals may be nil, in which case their method families always answer
// NotFound.
func NewDispatcher(orch Processor, sessions SessionReader, approvals ApprovalResponder, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		Orchestrator: orch,
		Sessions:     sessions,
		Approvals:    approvals,
		Log:          log.With("component", "gateway"),
		inflight:     map[string]context.CancelFunc{},
	}
}

// Dispatch authorizes, validates, and executes one Request on behalf of
// caller, returning the Response to send back on the same connection.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, caller Caller) Response {
	required := methodScope(req.Method)
	if !d.known(req.Method) {
		return errResponse(req.ID, newError(coretypes.ErrUnknownMethod, "unknown method: "+req.Method))
	}
	if !caller.Has(required) {
		return errResponse(req.ID, newError(coretypes.ErrForbidden, "missing scope "+string(required)))
	}
	if err := d.validateParams(req); err != nil {
		return errResponse(req.ID, newError(coretypes.ErrInvalidParams, err.Error()))
	}

	result, err := d.handle(ctx, req, caller)
	if err != nil {
		if methodErr, ok := err.(*Error); ok {
			return errResponse(req.ID, methodErr)
		}
		return errResponse(req.ID, newError(coretypes.ErrInternal, err.Error()))
	}
	return okResponse(req.ID, result)
}

func (d *Dispatcher) known(method string) bool {
	switch method {
	case "ping", "chat.send", "chat.cancel",
		"session.get", "session.list", "session.delete",
		"approval.list", "approval.respond":
		return true
	default:
		return false
	}
}

func (d *Dispatcher) validateParams(req Request) error {
	schema, err := schemaFor(req.Method)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	var params any
	if len(req.Params) == 0 {
		params = map[string]any{}
	} else if err := json.Unmarshal(req.Params, &params); err != nil {
		return err
	}
	return schema.Validate(params)
}

func (d *Dispatcher) handle(ctx context.Context, req Request, caller Caller) (any, error) {
	switch req.Method {
	case "ping":
		return map[string]any{"pong": true}, nil
	case "chat.send":
		return d.chatSend(ctx, req, caller)
	case "chat.cancel":
		return d.chatCancel(req, caller)
	case "session.get":
		return d.sessionGet(ctx, req)
	case "session.list":
		return d.sessionList(ctx)
	case "session.delete":
		return d.sessionDelete(ctx, req)
	case "approval.list":
		return d.approvalList(caller)
	case "approval.respond":
		return d.approvalRespond(req, caller)
	default:
		return nil, newError(coretypes.ErrUnknownMethod, "unknown method: "+req.Method)
	}
}

type chatSendParams struct {
	ChannelType string            `json:"channel_type"`
	ChannelID   string            `json:"channel_id"`
	ThreadID    string            `json:"thread_id"`
	Text        string            `json:"text"`
	Images      []coretypes.Image `json:"images"`
}

// chatSend runs the Orchestrator asynchronously and returns immediately
// with an accepted execution_id; progress and completion arrive to the
// caller as Events forwarded from the Event Bus, per the accepted/async
// contract. A new call against the same channel cancels and replaces any
// execution still running for it.
func (d *Dispatcher) chatSend(ctx context.Context, req Request, caller Caller) (any, error) {
	if d.Orchestrator == nil {
		return nil, newError(coretypes.ErrInternal, "orchestrator not wired")
	}
	var p chatSendParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, newError(coretypes.ErrInvalidParams, err.Error())
	}
	if p.ChannelType == "" {
		p.ChannelType = "gateway"
	}
	if p.ChannelID == "" {
		p.ChannelID = caller.UserID
	}
	sessionKey := coretypes.SessionKey(p.ChannelType, p.ChannelID, caller.UserID)
	execID := uuid.NewString()

	runCtx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	if prevCancel, ok := d.inflight[sessionKey]; ok {
		prevCancel()
	}
	d.inflight[sessionKey] = cancel
	d.mu.Unlock()

	go func() {
		defer cancel()
		input := coretypes.ProcessInput{
			ChannelType: p.ChannelType,
			ChannelID:   p.ChannelID,
			UserID:      caller.UserID,
			ThreadID:    p.ThreadID,
			Text:        p.Text,
			Images:      p.Images,
		}
		if _, err := d.Orchestrator.Process(runCtx, input); err != nil {
			d.Log.Warn("chat.send execution failed", "execution_id", execID, "error", err)
		}
		d.mu.Lock()
		if d.inflight[sessionKey] == cancel {
			delete(d.inflight, sessionKey)
		}
		d.mu.Unlock()
	}()

	return map[string]any{"execution_id": execID, "status": "accepted"}, nil
}

type chatCancelParams struct {
	ChannelType string `json:"channel_type"`
	ChannelID   string `json:"channel_id"`
}

// chatCancel cancels the caller's latest in-flight execution for the given
// channel, identified by the same session key chatSend tracked it under.
func (d *Dispatcher) chatCancel(req Request, caller Caller) (any, error) {
	var p chatCancelParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, newError(coretypes.ErrInvalidParams, err.Error())
	}
	sessionKey := coretypes.SessionKey(p.ChannelType, p.ChannelID, caller.UserID)

	d.mu.Lock()
	cancel, ok := d.inflight[sessionKey]
	if ok {
		delete(d.inflight, sessionKey)
	}
	d.mu.Unlock()

	if !ok {
		return nil, newError(coretypes.ErrNotFound, "no in-flight execution for channel")
	}
	cancel()
	return map[string]any{"cancelled": true}, nil
}

type sessionKeyParams struct {
	SessionKey string `json:"session_key"`
}

func (d *Dispatcher) sessionGet(ctx context.Context, req Request) (any, error) {
	if d.Sessions == nil {
		return nil, newError(coretypes.ErrNotFound, "session store not wired")
	}
	var p sessionKeyParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, newError(coretypes.ErrInvalidParams, err.Error())
	}
	session, err := d.Sessions.Get(ctx, p.SessionKey)
	if err != nil {
		return nil, newError(coretypes.ErrNotFound, err.Error())
	}
	return session, nil
}

func (d *Dispatcher) sessionList(ctx context.Context) (any, error) {
	if d.Sessions == nil {
		return []string{}, nil
	}
	keys, err := d.Sessions.ListKeys(ctx)
	if err != nil {
		return nil, newError(coretypes.ErrInternal, err.Error())
	}
	return map[string]any{"keys": keys}, nil
}

func (d *Dispatcher) sessionDelete(ctx context.Context, req Request) (any, error) {
	if d.Sessions == nil {
		return nil, newError(coretypes.ErrNotFound, "session store not wired")
	}
	var p sessionKeyParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, newError(coretypes.ErrInvalidParams, err.Error())
	}
	if err := d.Sessions.Delete(ctx, p.SessionKey); err != nil {
		return nil, newError(coretypes.ErrInternal, err.Error())
	}
	return map[string]any{"deleted": true}, nil
}

func (d *Dispatcher) approvalList(caller Caller) (any, error) {
	if d.Approvals == nil {
		return []coretypes.ApprovalRequest{}, nil
	}
	return d.Approvals.PendingForUser(caller.UserID), nil
}

type approvalRespondParams struct {
	ID       string `json:"id"`
	Decision string `json:"decision"`
}

func (d *Dispatcher) approvalRespond(req Request, caller Caller) (any, error) {
	if d.Approvals == nil {
		return nil, newError(coretypes.ErrNotFound, "approval manager not wired")
	}
	var p approvalRespondParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, newError(coretypes.ErrInvalidParams, err.Error())
	}
	var (
		resolved *coretypes.ApprovalRequest
		ok       bool
	)
	switch p.Decision {
	case "approve":
		resolved, ok = d.Approvals.ApproveBy(p.ID, caller.UserID)
	case "reject":
		resolved, ok = d.Approvals.RejectBy(p.ID, caller.UserID)
	}
	if !ok {
		return nil, newError(coretypes.ErrNotFound, "no pending approval "+p.ID+" for user")
	}
	return resolved, nil
}

// eventToFrame converts a bus event into the gateway's unsolicited Event
// frame shape for forwarding to a connected client.
func eventToFrame(ev coretypes.OrchestratorEvent) Event {
	data, _ := json.Marshal(ev)
	return Event{Event: string(ev.Type), Data: data}
}
