// Package orchestrator implements the Orchestrator Core: the
// bounded plan-act loop that composes the Session Store, Graph Memory,
// LLM Router (via the Planner), Tool Registry & Runner, Approval
// Manager, Persona & Skill Router, and Event Store/Bus into one
// Process(ctx, input) call.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/eventstore"
	"github.com/cratos-ai/orchestrator/internal/graphmemory"
	"github.com/cratos-ai/orchestrator/internal/llmrouter"
	"github.com/cratos-ai/orchestrator/internal/persona"
	"github.com/cratos-ai/orchestrator/internal/planner"
	"github.com/cratos-ai/orchestrator/internal/secrets"
	"github.com/cratos-ai/orchestrator/internal/sessionstore"
	"github.com/cratos-ai/orchestrator/internal/toolrunner"
)

// Orchestrator composes every other component behind one public
// Process call. All fields except Config and Log are required;
// Memory and Bus may be left nil, in which case enrichment and
// broadcast are skipped.
type Orchestrator struct {
	Sessions sessionstore.Store
	Memory   graphmemory.Store
	Events   eventstore.Store
	Bus      Publisher
	Persona  *persona.Router
	Planner  *planner.Planner
	Tools    *toolrunner.Runner
	Config   Config
	Log      *slog.Logger
}

// New constructs an Orchestrator with defaulted Config and Log.
func New(sessions sessionstore.Store, memory graphmemory.Store, events eventstore.Store, bus Publisher, personaRouter *persona.Router, plan *planner.Planner, tools *toolrunner.Runner, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		Sessions: sessions,
		Memory:   memory,
		Events:   events,
		Bus:      bus,
		Persona:  personaRouter,
		Planner:  plan,
		Tools:    tools,
		Config:   cfg.normalized(),
		Log:      log.With("component", "orchestrator"),
	}
}

// Process turns one user utterance into a final answer, recording every
// step to the Event Store and broadcasting progress on the Event Bus.
func (o *Orchestrator) Process(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error) {
	sessionKey := coretypes.SessionKey(input.ChannelType, input.ChannelID, input.UserID)
	session, err := o.loadOrCreateSession(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	session.AddUserMessage(input.Text)
	session.AttachImagesToLastUser(input.Images)

	o.enrichFromMemory(ctx, session, input.Text)

	effectivePrompt := o.routePersonaAndSkill(ctx, session, input)

	exec := &coretypes.Execution{
		ID:        uuid.NewString(),
		Input:     input,
		Channel:   coretypes.ChannelTuple{ChannelType: input.ChannelType, ChannelID: input.ChannelID, UserID: input.UserID, ThreadID: input.ThreadID},
		Status:    coretypes.ExecStatusRunning,
		StartedAt: time.Now(),
	}
	if err := o.Events.CreateExecution(ctx, exec); err != nil {
		o.Log.Warn("create execution record failed", "error", err)
	}

	rec := newEventRecorder(ctx, o.Events, o.Bus, o.Log, exec.ID)
	rec.record(ctx, coretypes.EventUserInput, map[string]any{"text": input.Text}, 0, "")
	rec.publish(coretypes.OrchestratorEvent{Type: coretypes.BusExecutionStarted, SessionKey: sessionKey})

	result := o.runLoop(ctx, exec, session, effectivePrompt, rec)

	o.postExecution(context.Background(), sessionKey, session, exec)

	return result, nil
}

func (o *Orchestrator) loadOrCreateSession(ctx context.Context, sessionKey string) (*coretypes.SessionContext, error) {
	session, err := o.Sessions.Get(ctx, sessionKey)
	if err == sessionstore.ErrNotFound {
		return coretypes.NewSessionContext(sessionKey), nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// enrichFromMemory implements the exact budget math: a tight token
// budget triggers a wider retrieval that replaces the middle of the
// context, otherwise a narrower retrieval supplements it. Up to 3 named
// memories are always injected as one system message. Any Memory error
// is swallowed: enrichment is best-effort.
func (o *Orchestrator) enrichFromMemory(ctx context.Context, session *coretypes.SessionContext, query string) {
	if o.Memory == nil {
		return
	}

	total := session.TokenCount()
	remaining := session.RemainingTokens()

	if total > 0 && remaining < session.MaxTokens/5 {
		retrieved, err := o.Memory.Retrieve(ctx, query, 20, session.MaxTokens/2)
		if err != nil {
			o.Log.Warn("graph memory retrieve (replace) failed", "error", err)
		} else if len(retrieved) > 0 {
			session.ReplaceWithRetrieved(retrieved)
		}
	} else {
		maxTok := session.MaxTokens / 10
		if maxTok > 8000 {
			maxTok = 8000
		}
		retrieved, err := o.Memory.Retrieve(ctx, query, 5, maxTok)
		if err != nil {
			o.Log.Warn("graph memory retrieve (supplement) failed", "error", err)
		} else if len(retrieved) > 0 {
			session.InsertSupplementaryContext(retrieved)
		}
	}

	named, err := o.Memory.TopNamed(ctx, query, 3)
	if err != nil {
		o.Log.Warn("graph memory TopNamed failed", "error", err)
		return
	}
	if len(named) == 0 {
		return
	}
	content := "## Remembered\n"
	for _, m := range named {
		content += "- " + m.Name + ": " + m.Content + "\n"
	}
	session.InsertSupplementaryContext([]coretypes.Message{{Role: coretypes.RoleSystem, Content: content, CreatedAt: time.Now()}})
}

func (o *Orchestrator) routePersonaAndSkill(ctx context.Context, session *coretypes.SessionContext, input coretypes.ProcessInput) string {
	if o.Persona == nil {
		return input.SystemPromptOverride
	}
	personaName := o.Persona.RoutePersona(ctx, input.Text)
	preset := o.Persona.Preset(personaName)
	match, found := o.Persona.RouteSkill(input.Text, nil, nil)
	skillHint := ""
	if found {
		skillHint = "\n## Matched Skill: " + match.Name + "\n" + match.Description
	}
	return o.Persona.CombineSystemPrompts(input.SystemPromptOverride, preset.BasePrompt, skillHint)
}

// runLoop executes the bounded plan-act loop and returns the final
// ExecutionResult. It never returns an error: every failure path
// finalizes the execution with a terminal status instead.
func (o *Orchestrator) runLoop(ctx context.Context, exec *coretypes.Execution, session *coretypes.SessionContext, systemPrompt string, rec *eventRecorder) *coretypes.ExecutionResult {
	fallback := &llmrouter.ExecutionFallback{}
	startedAt := time.Now()
	iteration := 0
	consecutiveFail := 0
	totalFail := 0

	wallExceeded := func() bool {
		return o.Config.MaxExecutionSecs > 0 && time.Since(startedAt) > time.Duration(o.Config.MaxExecutionSecs)*time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return o.finalizeCancelled(ctx, exec, session, rec)
		default:
		}

		iteration++

		if iteration > o.Config.MaxIterations || wallExceeded() {
			response := o.tryFinalSummary(ctx, session, systemPrompt, fallback, rec)
			status := coretypes.ExecStatusCompleted
			if response == "" {
				status = coretypes.ExecStatusPartialSuccess
			}
			return o.finalize(ctx, exec, session, status, response, iteration, rec)
		}

		toolDefs := o.Tools.Registry.Definitions()
		toolSpecs := toLLMToolSpecs(toolDefs)
		messages := toLLMMessages(session.Messages)

		planStart := time.Now()
		resp, err := o.Planner.PlanStepWithSystemPrompt(ctx, messages, toolSpecs, systemPrompt, fallback)
		if err != nil {
			rec.record(ctx, coretypes.EventError, map[string]any{"error": llmrouter.SanitizeErrorMessage(err.Error()), "phase": "plan"}, time.Since(planStart).Milliseconds(), "")
			consecutiveFail++
			totalFail++
			if consecutiveFail >= o.Config.MaxConsecutiveFailures || totalFail >= o.Config.MaxTotalFailures {
				response := o.tryFinalSummary(ctx, session, systemPrompt, fallback, rec)
				return o.finalize(ctx, exec, session, coretypes.ExecStatusPartialSuccess, response, iteration, rec)
			}
			continue
		}

		planEvent := rec.record(ctx, coretypes.EventPlanCreated, map[string]any{"model": resp.Model, "provider": resp.Provider}, time.Since(planStart).Milliseconds(), "")
		rec.record(ctx, coretypes.EventLlmResponse, map[string]any{"content": resp.Content, "tool_calls": len(resp.ToolCalls)}, 0, planEvent.ID)
		exec.Model = resp.Model

		if len(resp.ToolCalls) == 0 {
			return o.finalize(ctx, exec, session, completionStatus(totalFail), resp.Content, iteration, rec)
		}

		session.Messages = append(session.Messages, coretypes.Message{
			Role:      coretypes.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: toCoreToolCalls(resp.ToolCalls),
			CreatedAt: time.Now(),
		})

		iterationHadSuccess := o.runToolCalls(ctx, exec, session, resp.ToolCalls, rec, &totalFail)

		if iterationHadSuccess {
			consecutiveFail = 0
		} else {
			consecutiveFail++
		}
		if consecutiveFail >= o.Config.MaxConsecutiveFailures || totalFail >= o.Config.MaxTotalFailures {
			response := o.tryFinalSummary(ctx, session, systemPrompt, fallback, rec)
			return o.finalize(ctx, exec, session, coretypes.ExecStatusPartialSuccess, response, iteration, rec)
		}
	}
}

// runToolCalls executes every tool call from one plan step, recording
// approval and tool events, appending tool-result messages to the
// session, and accumulating toolCallRecords/artifacts on exec. Returns
// whether at least one call succeeded.
func (o *Orchestrator) runToolCalls(ctx context.Context, exec *coretypes.Execution, session *coretypes.SessionContext, calls []llmrouter.ToolCall, rec *eventRecorder, totalFail *int) bool {
	hadSuccess := false

	for _, tc := range calls {
		callStart := time.Now()
		def, known := o.Tools.Registry.Get(tc.Name)
		if known && toolrunner.NeedsApproval(def.Risk, o.Tools.ApprovalPolicy) {
			rec.record(ctx, coretypes.EventApprovalRequested, map[string]any{"tool_name": tc.Name}, 0, "")
			rec.publish(coretypes.OrchestratorEvent{Type: coretypes.BusApprovalRequired, ToolName: tc.Name, ToolCallID: tc.ID})
		}

		rec.record(ctx, coretypes.EventToolCall, map[string]any{"tool_name": tc.Name, "arguments": secrets.Mask(tc.Arguments)}, 0, "")
		rec.publish(coretypes.OrchestratorEvent{Type: coretypes.BusToolStarted, ToolName: tc.Name, ToolCallID: tc.ID})

		result, err := o.Tools.Execute(ctx, exec.ID, exec.Channel.UserID, tc.Name, json.RawMessage(tc.Arguments))
		if err != nil {
			result = &toolrunner.Result{Success: false, Error: err.Error()}
		}

		if known && toolrunner.NeedsApproval(def.Risk, o.Tools.ApprovalPolicy) {
			if result.Error == "not approved" {
				rec.record(ctx, coretypes.EventApprovalDenied, map[string]any{"tool_name": tc.Name}, 0, "")
			} else if result.Success {
				rec.record(ctx, coretypes.EventApprovalGranted, map[string]any{"tool_name": tc.Name}, 0, "")
			}
		}

		duration := time.Since(callStart).Milliseconds()
		rec.record(ctx, coretypes.EventToolResult, map[string]any{"tool_name": tc.Name, "success": result.Success, "error": result.Error}, duration, "")
		rec.publish(coretypes.OrchestratorEvent{Type: coretypes.BusToolCompleted, ToolName: tc.Name, ToolCallID: tc.ID, Success: result.Success, DurationMs: duration})

		output := result.Output
		if !result.Success {
			output = result.Error
			*totalFail++
		} else {
			hadSuccess = true
			exec.Artifacts = append(exec.Artifacts, extractArtifacts(result.Output)...)
		}

		session.Messages = append(session.Messages, coretypes.Message{
			Role:       coretypes.RoleTool,
			ToolCallID: tc.ID,
			ToolResult: &coretypes.ToolResultMsg{ToolCallID: tc.ID, Output: output, IsError: !result.Success},
			CreatedAt:  time.Now(),
		})

		exec.ToolCalls = append(exec.ToolCalls, coretypes.ToolCallRecord{
			ToolName:   tc.Name,
			Input:      secrets.Mask(tc.Arguments),
			Output:     output,
			Success:    result.Success,
			DurationMs: result.DurationMs,
		})
	}

	session.Trim()
	return hadSuccess
}

// tryFinalSummary re-issues the conversation to the current (possibly
// sticky) provider with no tools, asking for a best-effort answer from
// existing context. Used on iteration/time exhaustion and
// failure-threshold bail-out.
func (o *Orchestrator) tryFinalSummary(ctx context.Context, session *coretypes.SessionContext, systemPrompt string, fallback *llmrouter.ExecutionFallback, rec *eventRecorder) string {
	const finalSummaryInstruction = "Produce a best-effort final answer using only the existing conversation context. Do not request further tool calls."
	messages := toLLMMessages(session.Messages)
	resp, err := o.Planner.PlanStepWithSystemPrompt(ctx, messages, nil, systemPrompt+"\n"+finalSummaryInstruction, fallback)
	if err != nil {
		rec.record(ctx, coretypes.EventError, map[string]any{"error": llmrouter.SanitizeErrorMessage(err.Error()), "phase": "final_summary"}, 0, "")
		return ""
	}
	return resp.Content
}

func (o *Orchestrator) finalize(ctx context.Context, exec *coretypes.Execution, session *coretypes.SessionContext, status coretypes.ExecutionStatus, response string, iteration int, rec *eventRecorder) *coretypes.ExecutionResult {
	exec.Status = status
	exec.Response = response
	exec.EndedAt = time.Now()
	exec.Iterations = iteration

	rec.record(ctx, coretypes.EventFinalResponse, map[string]any{"response": response, "status": string(status)}, 0, "")

	busType := coretypes.BusExecutionCompleted
	if status == coretypes.ExecStatusFailed {
		busType = coretypes.BusExecutionFailed
	}
	rec.publish(coretypes.OrchestratorEvent{Type: busType, Success: status == coretypes.ExecStatusCompleted})

	if err := o.Events.UpdateExecutionStatus(ctx, exec.ID, status, exec.Error); err != nil {
		o.Log.Warn("update execution status failed", "execution_id", exec.ID, "error", err)
	}

	return &coretypes.ExecutionResult{
		ExecutionID: exec.ID,
		Status:      status,
		Response:    response,
		ToolCalls:   exec.ToolCalls,
		Artifacts:   exec.Artifacts,
		Iterations:  iteration,
		DurationMs:  exec.Duration().Milliseconds(),
		Model:       exec.Model,
	}
}

func (o *Orchestrator) finalizeCancelled(ctx context.Context, exec *coretypes.Execution, session *coretypes.SessionContext, rec *eventRecorder) *coretypes.ExecutionResult {
	exec.Status = coretypes.ExecStatusCancelled
	exec.EndedAt = time.Now()
	rec.record(ctx, coretypes.EventCancelled, nil, 0, "")
	rec.publish(coretypes.OrchestratorEvent{Type: coretypes.BusExecutionCancelled})
	if err := o.Events.UpdateExecutionStatus(ctx, exec.ID, coretypes.ExecStatusCancelled, ""); err != nil {
		o.Log.Warn("update execution status failed", "execution_id", exec.ID, "error", err)
	}
	return &coretypes.ExecutionResult{
		ExecutionID: exec.ID,
		Status:      coretypes.ExecStatusCancelled,
		ToolCalls:   exec.ToolCalls,
		Artifacts:   exec.Artifacts,
		DurationMs:  exec.Duration().Milliseconds(),
	}
}

// postExecution saves the session (with a tool-outcome summary line) and
// indexes it into Graph Memory. It runs with a background context after
// Process has already returned its result, matching the orchestrator's
// "fire-and-forget" post-execution step; callers that need these tasks
// ordered with the next request on the same session key do so at the
// gateway's session-lane layer, not here.
func (o *Orchestrator) postExecution(ctx context.Context, sessionKey string, session *coretypes.SessionContext, exec *coretypes.Execution) {
	if summary := coretypes.SummaryLine(exec.ToolCalls); summary != "" {
		session.Messages = append(session.Messages, coretypes.Message{
			Role:      coretypes.RoleSystem,
			Content:   "Tool outcomes: " + summary,
			CreatedAt: time.Now(),
		})
	}
	session.Trim()

	if err := o.Sessions.Save(ctx, session); err != nil {
		o.Log.Warn("session save failed", "session_key", sessionKey, "error", err)
	}

	if o.Memory != nil {
		if err := o.Memory.IndexSession(ctx, sessionKey, session.Messages); err != nil {
			o.Log.Warn("graph memory index failed", "session_key", sessionKey, "error", err)
		}
	}

	if o.Config.AutoSkillDetection {
		o.detectSkill(sessionKey, exec)
	}
}

// detectSkill re-scores the completed exchange against the Persona &
// Skill Router's registered skills, using both the user's input and the
// final response as signal. It only logs what it finds: no skill
// proposal or proficiency-tracking store exists to record the result
// against, so this is a visibility aid for operators tuning skill
// definitions, not a routing decision.
func (o *Orchestrator) detectSkill(sessionKey string, exec *coretypes.Execution) {
	if o.Persona == nil {
		return
	}
	text := exec.Input.Text + " " + exec.Response
	match, found := o.Persona.RouteSkill(text, nil, nil)
	if !found {
		return
	}
	o.Log.Info("auto-skill detection matched a skill post-execution",
		"session_key", sessionKey, "skill", match.Name, "score", match.Score)
}

// completionStatus reports Completed only if nothing failed during the
// execution; any tool-call or approval failure along the way downgrades
// an otherwise-clean finish to PartialSuccess.
func completionStatus(totalFail int) coretypes.ExecutionStatus {
	if totalFail > 0 {
		return coretypes.ExecStatusPartialSuccess
	}
	return coretypes.ExecStatusCompleted
}

func toCoreToolCalls(calls []llmrouter.ToolCall) []coretypes.ToolCall {
	out := make([]coretypes.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, coretypes.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments, ThoughtSignature: c.ThoughtSignature})
	}
	return out
}
