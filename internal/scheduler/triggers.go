package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// FileEvent is one filesystem change observed by the File-trigger
// watcher, reported in by the caller (e.g. an fsnotify watch loop) via
// Scheduler.ObserveFileEvent.
type FileEvent struct {
	Path string
	Op   string // "create", "write", "remove", "rename", "chmod"
	At   time.Time
}

// MetricSample is one observation reported in for a System trigger via
// Scheduler.ObserveMetric.
type MetricSample struct {
	Metric string
	Value  float64
	At     time.Time
}

// due reports whether task's trigger is satisfied as of now, given its
// current last-run and any buffered File/System observations.
func due(task *ScheduledTask, now time.Time) bool {
	switch task.Trigger.Kind {
	case TriggerCron:
		return task.NextRun.IsZero() || !now.Before(task.NextRun)
	case TriggerInterval:
		if task.LastRun == nil {
			return task.Trigger.Immediate
		}
		return now.Sub(*task.LastRun) >= time.Duration(task.Trigger.IntervalSecs)*time.Second
	case TriggerOneTime:
		return !now.Before(task.Trigger.At) && task.LastRun == nil
	case TriggerFile:
		return task.fileState.pending
	case TriggerSystem:
		if !task.sysState.conditionHeld {
			return false
		}
		return now.Sub(task.sysState.conditionSince) >= time.Duration(task.Trigger.DurationSecs)*time.Second
	default:
		return false
	}
}

// nextRun computes the trigger's next firing time after lastRun. A zero
// return for a Cron/OneTime trigger means "no more runs" and the caller
// should disable the task.
func nextRun(trig Trigger, lastRun time.Time) (time.Time, error) {
	switch trig.Kind {
	case TriggerCron:
		loc := time.UTC
		if trig.Timezone != "" {
			if l, err := time.LoadLocation(trig.Timezone); err == nil {
				loc = l
			}
		}
		sched, err := cronParser.Parse(trig.CronExpr)
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(lastRun.In(loc)), nil
	case TriggerInterval:
		return lastRun.Add(time.Duration(trig.IntervalSecs) * time.Second), nil
	case TriggerOneTime, TriggerFile, TriggerSystem:
		return time.Time{}, nil
	default:
		return time.Time{}, nil
	}
}

// applyFileEvent records an observed filesystem change against every
// File-triggered task whose path matches, coalescing repeated events
// inside the debounce window into one pending firing.
func applyFileEvent(tasks []*ScheduledTask, ev FileEvent) {
	for _, t := range tasks {
		if t.Trigger.Kind != TriggerFile || t.Trigger.Path != ev.Path {
			continue
		}
		if !matchesAny(t.Trigger.Events, ev.Op) {
			continue
		}
		t.fileState.lastEventAt = ev.At
		t.fileState.pending = true
	}
}

func matchesAny(set []string, op string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == op {
			return true
		}
	}
	return false
}

// applyMetricSample updates every System-triggered task watching metric,
// tracking how long the comparison has held continuously.
func applyMetricSample(tasks []*ScheduledTask, sample MetricSample) {
	for _, t := range tasks {
		if t.Trigger.Kind != TriggerSystem || t.Trigger.Metric != sample.Metric {
			continue
		}
		holds := compare(sample.Value, t.Trigger.Comparison, t.Trigger.Threshold)
		if holds {
			if !t.sysState.conditionHeld {
				t.sysState.conditionHeld = true
				t.sysState.conditionSince = sample.At
			}
		} else {
			t.sysState.conditionHeld = false
		}
	}
}

func compare(value float64, cmp string, threshold float64) bool {
	switch cmp {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	case "eq":
		return value == threshold
	default:
		return false
	}
}
