package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

type countingExecutor struct {
	calls int64
}

func (e *countingExecutor) Execute(ctx context.Context, task *ScheduledTask) error {
	atomic.AddInt64(&e.calls, 1)
	return nil
}

type failingExecutor struct {
	calls int64
}

func (e *failingExecutor) Execute(ctx context.Context, task *ScheduledTask) error {
	atomic.AddInt64(&e.calls, 1)
	return context.DeadlineExceeded
}

func TestIntervalImmediateFiresOnFirstTick(t *testing.T) {
	store := NewMemoryStore()
	task := &ScheduledTask{ID: "t1", Name: "immediate", Enabled: true, Trigger: Trigger{Kind: TriggerInterval, IntervalSecs: 3600, Immediate: true}}
	store.Create(context.Background(), task)

	exec := &countingExecutor{}
	sched := New(store, exec, Config{TickInterval: 10 * time.Millisecond, MaxWorkers: 2}, nil)
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	waitFor(t, func() bool { return atomic.LoadInt64(&exec.calls) >= 1 })
}

func TestIntervalDoesNotFireBeforeElapsed(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	task := &ScheduledTask{ID: "t1", Name: "slow", Enabled: true, LastRun: &now, Trigger: Trigger{Kind: TriggerInterval, IntervalSecs: 3600}}
	store.Create(context.Background(), task)

	exec := &countingExecutor{}
	sched := New(store, exec, Config{TickInterval: 10 * time.Millisecond, MaxWorkers: 2}, nil)
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt64(&exec.calls) != 0 {
		t.Fatalf("expected no firings, got %d", exec.calls)
	}
}

func TestOneTimeFiresOnceThenDisables(t *testing.T) {
	store := NewMemoryStore()
	task := &ScheduledTask{ID: "t1", Name: "once", Enabled: true, Trigger: Trigger{Kind: TriggerOneTime, At: time.Now().Add(-time.Second)}}
	store.Create(context.Background(), task)

	exec := &countingExecutor{}
	sched := New(store, exec, Config{TickInterval: 10 * time.Millisecond, MaxWorkers: 2}, nil)
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	waitFor(t, func() bool { return atomic.LoadInt64(&exec.calls) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if calls := atomic.LoadInt64(&exec.calls); calls != 1 {
		t.Fatalf("expected exactly 1 firing, got %d", calls)
	}
	stored, _ := store.Get(context.Background(), "t1")
	if stored.Enabled {
		t.Fatal("expected one-time task to be disabled after firing")
	}
}

func TestFailedActionIncrementsFailCountAndKeepsRunning(t *testing.T) {
	store := NewMemoryStore()
	task := &ScheduledTask{ID: "t1", Name: "flaky", Enabled: true, Trigger: Trigger{Kind: TriggerInterval, IntervalSecs: 3600, Immediate: true}}
	store.Create(context.Background(), task)

	exec := &failingExecutor{}
	sched := New(store, exec, Config{TickInterval: 10 * time.Millisecond, MaxWorkers: 2}, nil)
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	waitFor(t, func() bool { return atomic.LoadInt64(&exec.calls) >= 1 })
	time.Sleep(30 * time.Millisecond)

	stored, _ := store.Get(context.Background(), "t1")
	if stored.FailCount == 0 {
		t.Fatal("expected FailCount to be incremented")
	}
	if !sched.IsRunning() {
		t.Fatal("expected scheduler to keep running after an action failure")
	}
}

func TestFileTriggerFiresOnMatchingEvent(t *testing.T) {
	store := NewMemoryStore()
	task := &ScheduledTask{ID: "t1", Name: "watcher", Enabled: true, Trigger: Trigger{Kind: TriggerFile, Path: "/tmp/watched", Events: []string{"write"}}}
	store.Create(context.Background(), task)

	exec := &countingExecutor{}
	sched := New(store, exec, Config{TickInterval: 10 * time.Millisecond, MaxWorkers: 2}, nil)
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&exec.calls) != 0 {
		t.Fatal("expected no firing before any file event")
	}

	sched.ObserveFileEvent(context.Background(), FileEvent{Path: "/tmp/watched", Op: "write", At: time.Now()})
	waitFor(t, func() bool { return atomic.LoadInt64(&exec.calls) >= 1 })
}

func TestSystemTriggerRequiresConditionHeldForDuration(t *testing.T) {
	store := NewMemoryStore()
	task := &ScheduledTask{ID: "t1", Name: "cpu-hot", Enabled: true, Trigger: Trigger{Kind: TriggerSystem, Metric: "cpu_pct", Threshold: 90, Comparison: "gt", DurationSecs: 0}}
	store.Create(context.Background(), task)

	exec := &countingExecutor{}
	sched := New(store, exec, Config{TickInterval: 10 * time.Millisecond, MaxWorkers: 2}, nil)
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	sched.ObserveMetric(context.Background(), MetricSample{Metric: "cpu_pct", Value: 95, At: time.Now()})
	waitFor(t, func() bool { return atomic.LoadInt64(&exec.calls) >= 1 })
}

func TestOrchestratorExecutorNaturalLanguageCallsProcess(t *testing.T) {
	var gotText string
	proc := processorFunc(func(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error) {
		gotText = input.Text
		return &coretypes.ExecutionResult{Status: coretypes.ExecStatusCompleted}, nil
	})
	e := &OrchestratorExecutor{Orchestrator: proc}
	task := &ScheduledTask{ID: "t1", Action: Action{Kind: ActionNaturalLanguage, Text: "do the thing"}}

	if err := e.Execute(context.Background(), task); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotText != "do the thing" {
		t.Fatalf("unexpected text: %q", gotText)
	}
}

type processorFunc func(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error)

func (f processorFunc) Process(ctx context.Context, input coretypes.ProcessInput) (*coretypes.ExecutionResult, error) {
	return f(ctx, input)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
