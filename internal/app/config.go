// Package app loads the top-level YAML configuration and wires every
// component (Session Store, Graph Memory, Event Store, Event Bus,
// Persona & Skill Router, Planner, Tool Registry & Runner, Approval
// Manager, Orchestrator Core, Scheduler Engine, Gateway) into one running
// process, mirroring the donor CLI's config.Load-then-gateway.
// NewManagedServer shape.
package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root on-disk configuration shape.
type Config struct {
	Environment   string              `yaml:"environment"` // "development", "staging", "production"
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	LLM           LLMConfig           `yaml:"llm"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Observability ObservabilityConfig `yaml:"observability"`
	PersonaFile   string              `yaml:"persona_file"`
}

// ServerConfig configures the gateway's listening behavior. Transport
// binding (WebSocket, stdio) is left to the caller; these fields are
// metadata a binding can use.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and configures the Event Store, Session Store,
// and Graph Memory backends.
type StorageConfig struct {
	EventStoreDriver   string `yaml:"event_store_driver"`   // "sqlite" or "postgres"
	EventStoreDSN      string `yaml:"event_store_dsn"`
	SessionStoreDriver string `yaml:"session_store_driver"` // "memory", "sqlite", "redis", "postgres"
	SessionStoreDSN    string `yaml:"session_store_dsn"`
	SessionStoreAddr   string `yaml:"session_store_addr"` // redis only
	SessionTTL         time.Duration `yaml:"session_ttl"`
	GraphMemoryDSN     string `yaml:"graph_memory_dsn"`
}

// LLMConfig selects the default provider and carries each concrete
// provider's credentials. A provider with an empty APIKey is skipped.
type LLMConfig struct {
	DefaultProvider    string               `yaml:"default_provider"`
	Anthropic          AnthropicCredentials `yaml:"anthropic"`
	OpenAI             OpenAICredentials    `yaml:"openai"`
	Gemini             GeminiCredentials    `yaml:"gemini"`
	RateLimitPerSecond float64              `yaml:"rate_limit_per_second"` // per-provider outbound cap, 0 disables
	RateLimitBurst     int                  `yaml:"rate_limit_burst"`
}

type AnthropicCredentials struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	SmallModel   string `yaml:"small_model"`
}

type OpenAICredentials struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	SmallModel   string `yaml:"small_model"`
}

type GeminiCredentials struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	SmallModel   string `yaml:"small_model"`
}

// OrchestratorConfig carries the Orchestrator's execution budgets.
type OrchestratorConfig struct {
	MaxIterations          int           `yaml:"max_iterations"`
	MaxExecutionSecs       int           `yaml:"max_execution_secs"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	MaxTotalFailures       int           `yaml:"max_total_failures"`
	DefaultSystemPrompt    string        `yaml:"default_system_prompt"`
	ToolCallTimeout        time.Duration `yaml:"tool_call_timeout"`
	ApprovalPolicy         string        `yaml:"approval_policy"` // "strict", "moderate", "disabled"
	ApprovalTTL            time.Duration `yaml:"approval_ttl"`
	AutoSkillDetection     bool          `yaml:"auto_skill_detection"`
}

// SchedulerConfig carries the Scheduler Engine's tick/worker tuning.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TickInterval time.Duration `yaml:"tick_interval"`
	MaxWorkers   int           `yaml:"max_workers"`
	WatchPaths   []string      `yaml:"watch_paths"`
}

// ObservabilityConfig carries tracing/metrics/auth tuning for the
// ambient stack and the Gateway's WebSocket transport.
type ObservabilityConfig struct {
	TraceEndpoint  string  `yaml:"trace_endpoint"`  // empty disables exporting
	TraceSampling  float64 `yaml:"trace_sampling"`
	MetricsPort    int     `yaml:"metrics_port"`
	AuthSecret     string  `yaml:"auth_secret"` // empty disables Gateway bearer-token auth
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8089
	}
	if c.Storage.EventStoreDriver == "" {
		c.Storage.EventStoreDriver = "sqlite"
	}
	if c.Storage.EventStoreDSN == "" {
		c.Storage.EventStoreDSN = "orchestrator-events.db"
	}
	if c.Storage.SessionStoreDriver == "" {
		c.Storage.SessionStoreDriver = "memory"
	}
	if c.Storage.SessionTTL == 0 {
		c.Storage.SessionTTL = 24 * time.Hour
	}
	if c.Storage.GraphMemoryDSN == "" {
		c.Storage.GraphMemoryDSN = "orchestrator-memory.db"
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "anthropic"
	}
	if c.Orchestrator.ToolCallTimeout == 0 {
		c.Orchestrator.ToolCallTimeout = 60 * time.Second
	}
	if c.Orchestrator.ApprovalPolicy == "" {
		c.Orchestrator.ApprovalPolicy = "strict"
	}
	if c.Orchestrator.ApprovalTTL == 0 {
		c.Orchestrator.ApprovalTTL = 5 * time.Minute
	}
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = 5 * time.Second
	}
	if c.Scheduler.MaxWorkers == 0 {
		c.Scheduler.MaxWorkers = 4
	}
	if c.Observability.TraceSampling == 0 {
		c.Observability.TraceSampling = 1.0
	}
	if c.Observability.MetricsPort == 0 {
		c.Observability.MetricsPort = 9090
	}
}
