package eventstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// TestSequenceNumContiguityProperty verifies that for any number of
// NextSequenceNum/Append round-trips against one execution, the assigned
// sequence numbers are exactly 1..n with no gaps or repeats, regardless of n.
func TestSequenceNumContiguityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("sequence_num is contiguous from 1..n", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			s := newTestStore(t)

			execID := fmt.Sprintf("exec-seq-%d", n)
			exec := &coretypes.Execution{ID: execID, Status: coretypes.ExecStatusRunning, StartedAt: time.Now()}
			if err := s.CreateExecution(ctx, exec); err != nil {
				return false
			}

			for i := 0; i < n; i++ {
				seq, err := s.NextSequenceNum(ctx, execID)
				if err != nil {
					return false
				}
				if seq != int64(i+1) {
					return false
				}
				ev := &coretypes.Event{
					ID:          fmt.Sprintf("%s-ev-%d", execID, i),
					ExecutionID: execID,
					SequenceNum: seq,
					Type:        coretypes.EventUserInput,
					Timestamp:   time.Now(),
				}
				if err := s.Append(ctx, ev); err != nil {
					return false
				}
			}

			events, err := s.GetExecutionEvents(ctx, execID)
			if err != nil || len(events) != n {
				return false
			}
			for i, ev := range events {
				if ev.SequenceNum != int64(i+1) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 25),
	))

	properties.TestingRun(t)
}
