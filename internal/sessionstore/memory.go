package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// AllowInProcessInProduction must be explicitly set true to permit the
// in-process backend outside of non-production environments. Checked by the caller that wires a
// backend from configuration, not by MemoryStore itself.
var AllowInProcessInProduction = false

// MemoryStore is a process-local Session Store, grounded on the donor's
// sessions.MemoryStore deep-clone-on-read/write safety pattern.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*coretypes.SessionContext
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory store. ttl of zero disables
// CleanupExpired.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*coretypes.SessionContext{},
		ttl:      ttl,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*coretypes.SessionContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *coretypes.SessionContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now()
	m.sessions[s.Key] = cloneSession(s)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[key]
	return ok, nil
}

func (m *MemoryStore) ListKeys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		out = append(out, k)
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

func (m *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	if m.ttl <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.ttl)
	n := 0
	for k, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

func cloneSession(s *coretypes.SessionContext) *coretypes.SessionContext {
	clone := *s
	clone.Messages = append([]coretypes.Message(nil), s.Messages...)
	if s.Metadata != nil {
		// Metadata values are JSON-shaped (string/number/bool/map/slice); a
		// round trip through encoding/json is sufficient to deep copy them.
		b, err := json.Marshal(s.Metadata)
		if err == nil {
			var m map[string]any
			if json.Unmarshal(b, &m) == nil {
				clone.Metadata = m
			}
		}
	}
	return &clone
}
