package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cratos-ai/orchestrator/internal/approvalmgr"
	"github.com/cratos-ai/orchestrator/internal/auth"
	"github.com/cratos-ai/orchestrator/internal/eventbus"
	"github.com/cratos-ai/orchestrator/internal/eventstore"
	"github.com/cratos-ai/orchestrator/internal/gateway"
	"github.com/cratos-ai/orchestrator/internal/graphmemory"
	"github.com/cratos-ai/orchestrator/internal/llmrouter"
	"github.com/cratos-ai/orchestrator/internal/llmrouter/providers"
	"github.com/cratos-ai/orchestrator/internal/observability"
	"github.com/cratos-ai/orchestrator/internal/orchestrator"
	"github.com/cratos-ai/orchestrator/internal/persona"
	"github.com/cratos-ai/orchestrator/internal/planner"
	"github.com/cratos-ai/orchestrator/internal/scheduler"
	"github.com/cratos-ai/orchestrator/internal/sessionstore"
	"github.com/cratos-ai/orchestrator/internal/toolrunner"
	"github.com/redis/go-redis/v9"
)

// App holds every wired component for one running orchestrator process.
type App struct {
	Config        Config
	Log           *slog.Logger
	Sessions      sessionstore.Store
	Memory        graphmemory.Store
	Events        eventstore.Store
	Bus           *eventbus.Bus
	Router        *llmrouter.Router
	Planner       *planner.Planner
	PersonaRouter *persona.Router
	Tools         *toolrunner.Runner
	Approvals     *approvalmgr.Manager
	Orchestrator  *orchestrator.Orchestrator
	Scheduler     *scheduler.Scheduler
	Dispatcher    *gateway.Dispatcher
	WSServer      *gateway.WSServer
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer

	closers []func() error
}

// Build constructs an App from cfg, opening every storage backend and
// wiring every component into the Orchestrator and Gateway. Callers own
// calling Close when done.
func Build(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Config: cfg, Log: log}

	events, closeEvents, err := openEventStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("event store: %w", err)
	}
	a.Events = events
	a.addCloser(closeEvents)

	sessions, closeSessions, err := openSessionStore(ctx, cfg.Environment, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.Sessions = sessions
	a.addCloser(closeSessions)

	memory, closeMemory, err := openGraphMemory(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("graph memory: %w", err)
	}
	a.Memory = memory
	a.addCloser(closeMemory)

	a.Bus = eventbus.New()

	router, err := buildRouter(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm router: %w", err)
	}
	router.SetEventBus(a.Bus)
	a.Router = router

	a.Planner = planner.New(router, cfg.LLM.DefaultProvider, defaultModelFor(cfg.LLM))

	personaRouter, err := buildPersonaRouter(cfg.PersonaFile, a.Planner, log)
	if err != nil {
		return nil, fmt.Errorf("persona router: %w", err)
	}
	a.PersonaRouter = personaRouter

	registry := toolrunner.NewRegistry()
	a.Approvals = approvalmgr.NewManager(a.Bus)
	a.Tools = toolrunner.NewRunner(
		registry,
		a.Approvals,
		nil, // no Sandbox wired: every policy tier runs through directSandbox
		toolrunner.ApprovalPolicy(cfg.Orchestrator.ApprovalPolicy),
		cfg.Orchestrator.ToolCallTimeout,
	)

	a.Orchestrator = orchestrator.New(
		a.Sessions, a.Memory, a.Events, a.Bus, a.PersonaRouter, a.Planner, a.Tools,
		orchestratorConfig(cfg.Orchestrator), log,
	)

	if cfg.Scheduler.Enabled {
		store := scheduler.NewMemoryStore()
		executor := &scheduler.OrchestratorExecutor{Orchestrator: a.Orchestrator}
		a.Scheduler = scheduler.New(store, executor, scheduler.Config{
			TickInterval: cfg.Scheduler.TickInterval,
			MaxWorkers:   cfg.Scheduler.MaxWorkers,
		}, log)
	}

	a.Dispatcher = gateway.NewDispatcher(a.Orchestrator, a.Sessions, a.Approvals, log)

	a.Metrics = observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "orchestrator",
		Environment:    cfg.Environment,
		Endpoint:       cfg.Observability.TraceEndpoint,
		SamplingRate:   cfg.Observability.TraceSampling,
		EnableInsecure: true,
	})
	a.Tracer = tracer
	a.addCloser(func() error { return shutdownTracer(context.Background()) })

	var authSvc *auth.Service
	if cfg.Observability.AuthSecret != "" {
		authSvc = auth.NewService(cfg.Observability.AuthSecret, 0)
	}
	a.WSServer = gateway.NewWSServer(a.Dispatcher, a.Bus, authSvc, log)

	return a, nil
}

func (a *App) addCloser(c func() error) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Start launches the Scheduler (if enabled) and its file watchers. It
// returns once startup completes; shutdown is driven by cancelling ctx.
func (a *App) Start(ctx context.Context) error {
	if a.Scheduler == nil {
		return nil
	}
	a.Scheduler.Start(ctx)
	if len(a.Config.Scheduler.WatchPaths) > 0 {
		if err := a.Scheduler.WatchFiles(ctx, a.Config.Scheduler.WatchPaths); err != nil {
			return fmt.Errorf("scheduler file watch: %w", err)
		}
	}
	return nil
}

// Close stops the Scheduler and releases every storage backend, in
// reverse wiring order.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func orchestratorConfig(cfg OrchestratorConfig) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	if cfg.MaxIterations > 0 {
		oc.MaxIterations = cfg.MaxIterations
	}
	if cfg.MaxExecutionSecs > 0 {
		oc.MaxExecutionSecs = cfg.MaxExecutionSecs
	}
	if cfg.MaxConsecutiveFailures > 0 {
		oc.MaxConsecutiveFailures = cfg.MaxConsecutiveFailures
	}
	if cfg.MaxTotalFailures > 0 {
		oc.MaxTotalFailures = cfg.MaxTotalFailures
	}
	if cfg.DefaultSystemPrompt != "" {
		oc.DefaultSystemPrompt = cfg.DefaultSystemPrompt
	}
	oc.AutoSkillDetection = cfg.AutoSkillDetection
	return oc
}

func openEventStore(cfg StorageConfig) (eventstore.Store, func() error, error) {
	switch cfg.EventStoreDriver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := eventstore.NewPostgresStore(ctx, eventstore.DefaultPostgresConfig(cfg.EventStoreDSN))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := eventstore.NewSQLiteStore(cfg.EventStoreDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}

func openSessionStore(ctx context.Context, environment string, cfg StorageConfig) (sessionstore.Store, func() error, error) {
	switch cfg.SessionStoreDriver {
	case "sqlite":
		store, err := sessionstore.NewSQLiteStore(cfg.SessionStoreDSN, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "postgres":
		store, err := sessionstore.NewPostgresStore(ctx, cfg.SessionStoreDSN, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.SessionStoreAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return sessionstore.NewRedisStore(client, "orchestrator:session:", cfg.SessionTTL), client.Close, nil
	default:
		if environment == "production" && !sessionstore.AllowInProcessInProduction {
			return nil, nil, fmt.Errorf("session_store_driver %q (in-process) is not permitted in production; set sessionstore.AllowInProcessInProduction or configure sqlite/postgres/redis", cfg.SessionStoreDriver)
		}
		return sessionstore.NewMemoryStore(cfg.SessionTTL), nil, nil
	}
}

func openGraphMemory(cfg StorageConfig) (graphmemory.Store, func() error, error) {
	if cfg.GraphMemoryDSN == "" {
		return nil, nil, nil
	}
	store, err := graphmemory.NewSQLiteStore(cfg.GraphMemoryDSN)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildRouter(ctx context.Context, cfg LLMConfig) (*llmrouter.Router, error) {
	router := llmrouter.NewRouter(cfg.DefaultProvider, llmrouter.DefaultCircuitConfig())

	if cfg.Anthropic.APIKey != "" {
		router.Register(providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Anthropic.APIKey,
			DefaultModel: cfg.Anthropic.DefaultModel,
			SmallModel:   cfg.Anthropic.SmallModel,
		}))
		applyRateLimit(router, "anthropic", cfg)
	}
	if cfg.OpenAI.APIKey != "" {
		router.Register(providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			DefaultModel: cfg.OpenAI.DefaultModel,
			SmallModel:   cfg.OpenAI.SmallModel,
		}))
		applyRateLimit(router, "openai", cfg)
	}
	if cfg.Gemini.APIKey != "" {
		gem, err := providers.NewGeminiProvider(ctx, providers.GeminiConfig{
			APIKey:       cfg.Gemini.APIKey,
			DefaultModel: cfg.Gemini.DefaultModel,
			SmallModel:   cfg.Gemini.SmallModel,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		router.Register(gem)
		applyRateLimit(router, "gemini", cfg)
	}
	return router, nil
}

// applyRateLimit configures provider's outbound cap when the operator has
// set one; a zero RateLimitPerSecond leaves the provider unthrottled.
func applyRateLimit(router *llmrouter.Router, provider string, cfg LLMConfig) {
	if cfg.RateLimitPerSecond <= 0 {
		return
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	router.SetRateLimit(provider, cfg.RateLimitPerSecond, burst)
}

func defaultModelFor(cfg LLMConfig) string {
	switch cfg.DefaultProvider {
	case "openai":
		return cfg.OpenAI.DefaultModel
	case "gemini":
		return cfg.Gemini.DefaultModel
	default:
		return cfg.Anthropic.DefaultModel
	}
}

func buildPersonaRouter(path string, plan *planner.Planner, log *slog.Logger) (*persona.Router, error) {
	if path == "" {
		return persona.New(plan, nil, "", nil, "You are a helpful assistant.", log), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := persona.LoadConfig(raw)
	if err != nil {
		return nil, err
	}
	return persona.New(plan, cfg.Presets, cfg.Primary, cfg.Skills, cfg.DefaultSystemPrompt, log), nil
}
