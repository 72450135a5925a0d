package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config bounds the scheduler's tick cadence and worker concurrency.
type Config struct {
	TickInterval time.Duration // default 1s
	MaxWorkers   int           // default 5
}

func (c Config) normalized() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	return c
}

// Scheduler evaluates every enabled task's trigger on each tick and
// enqueues due actions into a bounded worker pool. An action failure
// never stops the loop; it is recorded against the task and the
// scheduler moves on.
type Scheduler struct {
	store    Store
	executor Executor
	cfg      Config
	log      *slog.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// New constructs a Scheduler.
func New(store Store, executor Executor, cfg Config, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	return &Scheduler{
		store:    store,
		executor: executor,
		cfg:      cfg,
		log:      log.With("component", "scheduler"),
		sem:      make(chan struct{}, cfg.MaxWorkers),
	}
}

// Start begins the tick loop. It returns immediately; the loop runs
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop cancels the tick loop and waits for in-flight task executions to
// finish or for ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	tasks, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.log.Error("list enabled tasks failed", "error", err)
		return
	}

	now := time.Now()
	for _, task := range tasks {
		if !due(task, now) {
			continue
		}
		s.enqueue(ctx, task, now)
	}
}

func (s *Scheduler) enqueue(ctx context.Context, task *ScheduledTask, firedAt time.Time) {
	select {
	case s.sem <- struct{}{}:
	default:
		s.log.Warn("scheduler at max concurrency, deferring task to next tick", "task_id", task.ID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		s.runTask(ctx, task, firedAt)
	}()
}

func (s *Scheduler) runTask(ctx context.Context, task *ScheduledTask, firedAt time.Time) {
	if err := s.executor.Execute(ctx, task); err != nil {
		task.FailCount++
		s.log.Error("scheduled task action failed", "task_id", task.ID, "task_name", task.Name, "error", err)
	}

	task.fileState.pending = false
	task.LastRun = &firedAt
	next, err := nextRun(task.Trigger, firedAt)
	if err != nil {
		s.log.Error("invalid trigger, disabling task", "task_id", task.ID, "error", err)
		task.Enabled = false
	} else if next.IsZero() && task.Trigger.Kind != TriggerFile && task.Trigger.Kind != TriggerSystem {
		task.Enabled = false
	} else {
		task.NextRun = next
	}
	task.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, task); err != nil {
		s.log.Error("persist task after run failed", "task_id", task.ID, "error", err)
	}
}

// ObserveFileEvent feeds a filesystem change into every matching
// File-triggered task's debounce state. Callers wire an fsnotify watch
// loop to this method; the scheduler itself does not own any watchers.
func (s *Scheduler) ObserveFileEvent(ctx context.Context, ev FileEvent) {
	tasks, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.log.Error("list enabled tasks failed", "error", err)
		return
	}
	applyFileEvent(tasks, ev)
}

// ObserveMetric feeds a metric sample into every matching System-
// triggered task's continuous-condition window.
func (s *Scheduler) ObserveMetric(ctx context.Context, sample MetricSample) {
	tasks, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.log.Error("list enabled tasks failed", "error", err)
		return
	}
	applyMetricSample(tasks, sample)
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
