package scheduler

import (
	"context"
	"fmt"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// Executor runs one task's action. Its only production implementation,
// OrchestratorExecutor, turns every action kind into an orchestrator
// input on the synthetic "scheduler" channel, making scheduled work a
// first-class, replayable execution like any user-originated one.
type Executor interface {
	Execute(ctx context.Context, task *ScheduledTask) error
}

// Processor is the slice of the Orchestrator the scheduler needs.
type Processor interface {
	Process(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error)
}

// OrchestratorExecutor adapts ScheduledTask actions into Processor calls.
type OrchestratorExecutor struct {
	Orchestrator Processor
	Notifier     Notifier
	Shell        ShellRunner
	Webhook      WebhookCaller
}

// Notifier delivers a Notification action to its target channel.
type Notifier interface {
	Notify(ctx context.Context, channel, text string) error
}

// ShellRunner executes a Shell action's command. Implementations should
// run it the same sandboxed way the Tool Registry runs a shell-exec
// tool, never bypassing that isolation just because the caller was the
// scheduler instead of the model.
type ShellRunner interface {
	Run(ctx context.Context, command string) (output string, err error)
}

// WebhookCaller executes a Webhook action's HTTP call.
type WebhookCaller interface {
	Call(ctx context.Context, url, method string, body []byte) error
}

func (e *OrchestratorExecutor) Execute(ctx context.Context, task *ScheduledTask) error {
	switch task.Action.Kind {
	case ActionNaturalLanguage:
		return e.runOrchestrator(ctx, task, task.Action.Text)

	case ActionToolCall:
		instruction := fmt.Sprintf("Call the %s tool with arguments: %s", task.Action.ToolName, string(task.Action.ToolArgs))
		return e.runOrchestrator(ctx, task, instruction)

	case ActionSkillAnalysis:
		return e.runOrchestrator(ctx, task, "Analyze recent sessions and propose new skills or refinements to existing ones.")

	case ActionNotification:
		if e.Notifier == nil {
			return fmt.Errorf("scheduler: no notifier configured for task %s", task.ID)
		}
		return e.Notifier.Notify(ctx, task.Action.NotifyChannel, task.Action.NotifyText)

	case ActionShell:
		if e.Shell == nil {
			return fmt.Errorf("scheduler: no shell runner configured for task %s", task.ID)
		}
		_, err := e.Shell.Run(ctx, task.Action.ShellCommand)
		return err

	case ActionWebhook:
		if e.Webhook == nil {
			return fmt.Errorf("scheduler: no webhook caller configured for task %s", task.ID)
		}
		return e.Webhook.Call(ctx, task.Action.WebhookURL, task.Action.WebhookMethod, task.Action.WebhookBody)

	default:
		return fmt.Errorf("scheduler: unknown action kind %q for task %s", task.Action.Kind, task.ID)
	}
}

func (e *OrchestratorExecutor) runOrchestrator(ctx context.Context, task *ScheduledTask, text string) error {
	if e.Orchestrator == nil {
		return fmt.Errorf("scheduler: no orchestrator configured for task %s", task.ID)
	}
	_, err := e.Orchestrator.Process(ctx, coretypes.ProcessInput{
		ChannelType: "scheduler",
		ChannelID:   task.ID,
		UserID:      "scheduler",
		Text:        text,
	})
	return err
}
