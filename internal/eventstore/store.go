// Package eventstore implements the append-only durable log of executions
// and their ordered events. A store failure must never abort an
// in-flight execution — callers log the failure and continue.
package eventstore

import (
	"context"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// ErrDuplicateSequence is returned by Append when (execution_id, sequence_num)
// already exists.
var ErrDuplicateSequence = errDuplicateSequence{}

type errDuplicateSequence struct{}

func (errDuplicateSequence) Error() string { return "duplicate sequence_num for execution" }

// Query narrows GetEvents lookups.
type Query struct {
	ExecutionID   string
	Type          coretypes.EventType
	ParentEventID string
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Store is the Event Store contract. Implementations must make
// Append atomic within (execution_id, sequence_num): a duplicate sequence
// number is rejected, never silently overwritten.
type Store interface {
	CreateExecution(ctx context.Context, e *coretypes.Execution) error
	UpdateExecutionStatus(ctx context.Context, id string, status coretypes.ExecutionStatus, errMsg string) error
	GetExecution(ctx context.Context, id string) (*coretypes.Execution, error)

	Append(ctx context.Context, e *coretypes.Event) error
	GetExecutionEvents(ctx context.Context, executionID string) ([]coretypes.Event, error)
	NextSequenceNum(ctx context.Context, executionID string) (int64, error)

	Query(ctx context.Context, q Query) ([]coretypes.Event, error)
	Count(ctx context.Context, q Query) (int, error)

	// Prune deletes events older than the retention window (configurable
	// number of days); returns the count removed.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}
