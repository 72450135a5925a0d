// Package sessionstore persists conversation state keyed by
// (channel_type, channel_id, user_id). A store failure during
// Get falls back to a fresh session; a failure during Save is logged
// and does not abort the in-flight execution.
package sessionstore

import (
	"context"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// Store is the Session Store contract.
type Store interface {
	Get(ctx context.Context, key string) (*coretypes.SessionContext, error)
	Save(ctx context.Context, s *coretypes.SessionContext) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)

	// CleanupExpired removes sessions untouched for longer than the
	// backend's configured TTL and returns the count removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// ErrNotFound is returned by Get/Delete when the key is absent.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session not found" }
