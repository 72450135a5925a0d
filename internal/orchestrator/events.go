package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/eventstore"
)

// Publisher is the narrow slice of the Event Bus the Orchestrator Core
// needs: fire-and-forget broadcast of one progress event.
type Publisher interface {
	Publish(coretypes.OrchestratorEvent)
}

// eventRecorder appends sequence-ordered events for one execution. It is
// owned exclusively by the goroutine running that execution's Process
// call, so no locking is needed around nextSeq.
type eventRecorder struct {
	store       eventstore.Store
	bus         Publisher
	log         *slog.Logger
	executionID string
	nextSeq     int64
}

func newEventRecorder(ctx context.Context, store eventstore.Store, bus Publisher, log *slog.Logger, executionID string) *eventRecorder {
	seq, err := store.NextSequenceNum(ctx, executionID)
	if err != nil || seq < 1 {
		seq = 1
	}
	return &eventRecorder{store: store, bus: bus, log: log, executionID: executionID, nextSeq: seq}
}

// record appends ev to the durable log. A store failure is logged and
// swallowed: a gap in the event log must never abort the execution it
// describes.
func (r *eventRecorder) record(ctx context.Context, typ coretypes.EventType, payload map[string]any, durationMs int64, parentEventID string) *coretypes.Event {
	ev := &coretypes.Event{
		ID:            uuid.NewString(),
		ExecutionID:   r.executionID,
		SequenceNum:   r.nextSeq,
		Type:          typ,
		Payload:       payload,
		Timestamp:     time.Now(),
		DurationMs:    durationMs,
		ParentEventID: parentEventID,
	}
	r.nextSeq++
	if err := r.store.Append(ctx, ev); err != nil {
		r.log.Warn("event store append failed", "execution_id", r.executionID, "type", typ, "error", err)
	}
	return ev
}

func (r *eventRecorder) publish(ev coretypes.OrchestratorEvent) {
	if r.bus == nil {
		return
	}
	ev.ExecutionID = r.executionID
	r.bus.Publish(ev)
}
