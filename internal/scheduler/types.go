// Package scheduler implements the Scheduler Engine: a background loop
// that evaluates each task's trigger on every tick and enqueues due
// actions into a bounded worker pool for execution.
package scheduler

import (
	"encoding/json"
	"time"
)

// TriggerKind discriminates a ScheduledTask's firing condition.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerOneTime  TriggerKind = "one_time"
	TriggerFile     TriggerKind = "file"
	TriggerSystem   TriggerKind = "system"
)

// Trigger is one task's firing condition. Exactly the fields for Kind
// are meaningful; the rest are zero.
type Trigger struct {
	Kind TriggerKind

	// Cron
	CronExpr string
	Timezone string // IANA name; empty means UTC

	// Interval
	IntervalSecs int
	Immediate    bool

	// OneTime
	At time.Time

	// File
	Path            string
	Events          []string // "create", "write", "remove", "rename", "chmod"
	DebounceSeconds int

	// System
	Metric         string
	Threshold      float64
	Comparison     string // "gt", "lt", "gte", "lte", "eq"
	DurationSecs   int
}

// ActionKind discriminates what firing a task does.
type ActionKind string

const (
	ActionNaturalLanguage ActionKind = "natural_language"
	ActionToolCall        ActionKind = "tool_call"
	ActionNotification    ActionKind = "notification"
	ActionShell           ActionKind = "shell"
	ActionWebhook         ActionKind = "webhook"
	ActionSkillAnalysis   ActionKind = "skill_analysis"
)

// Action is what a task does when its trigger fires.
type Action struct {
	Kind ActionKind

	// NaturalLanguage: free text routed through the orchestrator as if a
	// user had typed it.
	Text string

	// ToolCall: expressed to the orchestrator as an instruction naming
	// the tool and its arguments, since the orchestrator itself decides
	// whether a tool call needs approval.
	ToolName string
	ToolArgs json.RawMessage

	// Notification
	NotifyChannel string
	NotifyText    string

	// Shell
	ShellCommand string

	// Webhook
	WebhookURL    string
	WebhookMethod string
	WebhookBody   json.RawMessage

	// SkillAnalysis: no fields; the action itself is the trigger for
	// auto-skill analysis over recent sessions.
}

// ScheduledTask is one entry in the scheduler's task table.
type ScheduledTask struct {
	ID        string
	Name      string
	Trigger   Trigger
	Action    Action
	Enabled   bool
	LastRun   *time.Time
	NextRun   time.Time
	FailCount int
	CreatedAt time.Time
	UpdatedAt time.Time

	// fileState tracks File-trigger debounce bookkeeping; zero value for
	// every other trigger kind.
	fileState fileDebounceState
	sysState  systemWindowState
}

type fileDebounceState struct {
	lastEventAt time.Time
	pending     bool
}

type systemWindowState struct {
	conditionSince time.Time
	conditionHeld  bool
}
