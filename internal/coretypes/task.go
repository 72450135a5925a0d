package coretypes

import "time"

// TriggerKind discriminates ScheduledTask.Trigger's concrete shape.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerOneTime  TriggerKind = "one_time"
	TriggerFile     TriggerKind = "file"
	TriggerSystem   TriggerKind = "system"
)

// FileEvent is a filesystem change kind watched by a File trigger.
type FileEvent string

const (
	FileEventCreated  FileEvent = "created"
	FileEventModified FileEvent = "modified"
	FileEventDeleted  FileEvent = "deleted"
	FileEventRenamed  FileEvent = "renamed"
)

// SystemMetric is a resource metric watched by a System trigger.
type SystemMetric string

const (
	MetricCPUUsage    SystemMetric = "cpu_usage"
	MetricMemoryUsage SystemMetric = "memory_usage"
	MetricDiskUsage   SystemMetric = "disk_usage"
	MetricNetworkRx   SystemMetric = "network_rx"
	MetricNetworkTx   SystemMetric = "network_tx"
)

// Comparison is the operator a System trigger applies to its metric reading.
type Comparison string

const (
	ComparisonGreaterThan Comparison = "greater_than"
	ComparisonLessThan    Comparison = "less_than"
	ComparisonEqual       Comparison = "equal"
)

// Trigger is the closed set of ways a ScheduledTask can fire, grounded on
// original_source's scheduler/triggers.rs TriggerType enum.
type Trigger struct {
	Kind TriggerKind

	// Cron
	CronExpr string
	Timezone string // empty = UTC

	// Interval
	IntervalSecs   uint64
	IntervalImmediate bool

	// OneTime
	At time.Time

	// File
	FilePath       string
	FileEvents     []FileEvent
	DebounceMs     uint64

	// System
	Metric         SystemMetric
	Threshold      float32
	Comparison     Comparison
	DurationSecs   uint64
}

// ActionKind is the closed set of things a ScheduledTask can do when it fires.
type ActionKind string

const (
	ActionNaturalLanguage ActionKind = "natural_language"
	ActionToolCall        ActionKind = "tool_call"
	ActionNotification    ActionKind = "notification"
	ActionShell           ActionKind = "shell"
	ActionWebhook         ActionKind = "webhook"
	ActionSkillAnalysis   ActionKind = "skill_analysis"
)

// TaskAction is one concrete action variant. Only one of the typed fields
// is populated, selected by Kind; adding a new action variant means adding
// a new case here plus a new Executor branch, without touching per-task
// failure isolation in the Scheduler Engine.
type TaskAction struct {
	Kind ActionKind

	Prompt          string // NaturalLanguage, SkillAnalysis
	ToolName        string // ToolCall
	ToolArguments   string // ToolCall, JSON
	NotifyChannel   string // Notification
	NotifyMessage   string // Notification
	ShellCommand    string // Shell
	WebhookURL      string // Webhook
	WebhookPayload  string // Webhook, JSON
}

// ScheduledTask is one entry in the Scheduler Engine's task table.
type ScheduledTask struct {
	ID       string
	Trigger  Trigger
	Action   TaskAction
	Enabled  bool
	LastRun  time.Time
	NextRun  time.Time
}

// QuotaState is the per-provider live view of remaining request/token
// capacity, populated from response headers.
type QuotaState struct {
	Provider         string
	RequestsLimit    *int64
	RequestsRemaining *int64
	TokensLimit      *int64
	TokensRemaining  *int64
	ResetAt          *time.Time
}

// RemainingPct returns the fraction (0-100) of token quota remaining, or -1
// if unknown.
func (q *QuotaState) RemainingPct() float64 {
	if q.TokensLimit == nil || q.TokensRemaining == nil || *q.TokensLimit <= 0 {
		return -1
	}
	return float64(*q.TokensRemaining) / float64(*q.TokensLimit) * 100
}
