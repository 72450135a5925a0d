package toolrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cratos-ai/orchestrator/internal/secrets"
)

// ApprovalPolicy selects how aggressively medium-risk tools are gated,
// using a strict|moderate|disabled vocabulary reused for the sandbox
// policy too.
type ApprovalPolicy string

const (
	PolicyStrict   ApprovalPolicy = "strict"
	PolicyModerate ApprovalPolicy = "moderate"
	PolicyDisabled ApprovalPolicy = "disabled"
)

// NetworkPolicy is the sandbox's network access tier.
type NetworkPolicy string

const (
	NetworkNone   NetworkPolicy = "none"
	NetworkBridge NetworkPolicy = "bridge"
	NetworkHost   NetworkPolicy = "host"
)

// SandboxPolicy configures isolated execution for a single tool call.
type SandboxPolicy struct {
	Mode      ApprovalPolicy // strict|moderate|disabled
	MemoryMB  int
	CPUPct    int
	MaxPIDs   int
	Timeout   time.Duration
	Network   NetworkPolicy
}

// Sandbox runs a tool handler in an isolated execution environment.
// Implementations wrap container runtimes (e.g. Firecracker microVMs);
// PolicyDisabled callers should pass a Sandbox that just invokes h
// in-process.
type Sandbox interface {
	Run(ctx context.Context, policy SandboxPolicy, h Handler, params json.RawMessage) (*ExecResult, error)
}

// directSandbox runs the handler in-process, used when SandboxPolicy.Mode
// is disabled or no Sandbox has been wired.
type directSandbox struct{}

func (directSandbox) Run(ctx context.Context, policy SandboxPolicy, h Handler, params json.RawMessage) (*ExecResult, error) {
	return h(ctx, params)
}

// Runner executes named tools under timeout, risk-gated approval, and
// optional sandboxing.
type Runner struct {
	Registry       *Registry
	Approvals      ApprovalGate
	Sandbox        Sandbox
	ApprovalPolicy ApprovalPolicy // strict|moderate|disabled for medium-risk gating
	CallTimeout    time.Duration
	schemas        map[string]*jsonschema.Schema
}

// ApprovalGate is the subset of the Approval Manager the Runner needs:
// create a pending request and block until it resolves (or expires).
type ApprovalGate interface {
	RequestAndAwait(ctx context.Context, executionID, userID, action, toolName string, ttl time.Duration) (approved bool, err error)
}

// NewRunner constructs a Runner. callTimeout of 0 uses 30s.
func NewRunner(reg *Registry, approvals ApprovalGate, sandbox Sandbox, policy ApprovalPolicy, callTimeout time.Duration) *Runner {
	if sandbox == nil {
		sandbox = directSandbox{}
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Runner{
		Registry:       reg,
		Approvals:      approvals,
		Sandbox:        sandbox,
		ApprovalPolicy: policy,
		CallTimeout:    callTimeout,
		schemas:        map[string]*jsonschema.Schema{},
	}
}

// Result is the sanitized outcome of a tool execution.
type Result struct {
	Success    bool
	Output     string
	Error      string
	DurationMs int64
}

// Execute runs name against params, applying validation, the risk gate,
// the per-call timeout, and secret masking of the output.
func (r *Runner) Execute(ctx context.Context, executionID, userID, name string, params json.RawMessage) (*Result, error) {
	start := time.Now()
	if len(name) > MaxToolNameLength {
		return &Result{Success: false, Error: "tool name too long"}, nil
	}
	if len(params) > MaxParamsSize {
		return &Result{Success: false, Error: "tool parameters too large"}, nil
	}

	def, ok := r.Registry.Get(name)
	if !ok {
		return &Result{Success: false, Error: "tool not found: " + name}, nil
	}
	handler, ok := r.Registry.handler(name)
	if !ok {
		return &Result{Success: false, Error: "tool not found: " + name}, nil
	}

	if err := r.validateParams(def, params); err != nil {
		return &Result{Success: false, Error: "invalid parameters: " + err.Error()}, nil
	}

	if NeedsApproval(def.Risk, r.ApprovalPolicy) {
		if r.Approvals == nil {
			return &Result{Success: false, Error: "approval required but no approval gate configured"}, nil
		}
		approved, err := r.Approvals.RequestAndAwait(ctx, executionID, userID, "execute tool "+name, name, 10*time.Minute)
		if err != nil {
			return &Result{Success: false, Error: "approval error: " + err.Error()}, nil
		}
		if !approved {
			return &Result{Success: false, Error: "not approved"}, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.CallTimeout)
	defer cancel()

	sandboxPolicy := def.Sandbox
	if sandboxPolicy.Mode == "" {
		sandboxPolicy.Mode = PolicyDisabled
	}

	execRes, err := r.Sandbox.Run(callCtx, sandboxPolicy, handler, params)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		return &Result{Success: false, Error: secrets.Mask(err.Error()), DurationMs: duration}, nil
	}
	if execRes == nil {
		return &Result{Success: false, Error: "tool returned no result", DurationMs: duration}, nil
	}
	return &Result{
		Success:    execRes.Success,
		Output:     secrets.Mask(execRes.Output),
		Error:      secrets.Mask(execRes.Error),
		DurationMs: duration,
	}, nil
}

// NeedsApproval reports whether risk requires human approval under policy,
// exposed so callers recording events (the Orchestrator Core) can predict
// the gate's decision without duplicating Execute's full logic.
func NeedsApproval(risk Risk, policy ApprovalPolicy) bool {
	switch risk {
	case RiskHigh:
		return policy != PolicyDisabled
	case RiskMedium:
		return policy == PolicyStrict
	default:
		return false
	}
}

func (r *Runner) validateParams(def Definition, params json.RawMessage) error {
	if len(def.Parameters) == 0 {
		return nil
	}
	schema, ok := r.schemas[def.Name]
	if !ok {
		compiled, err := compileSchema(def.Name, def.Parameters)
		if err != nil {
			return fmt.Errorf("schema compile: %w", err)
		}
		schema = compiled
		r.schemas[def.Name] = schema
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("params not valid JSON: %w", err)
	}
	return schema.Validate(v)
}

func compileSchema(name string, schemaJSON json.RawMessage) (*jsonschema.Schema, error) {
	return jsonschema.CompileString(name+".json", string(schemaJSON))
}
