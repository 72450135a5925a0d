// Package graphmemory implements the Turn/Entity conversation graph with
// retrieval-augmented recall. Retrieval is best-effort: callers
// must proceed without enrichment on any Store error.
package graphmemory

import (
	"context"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// EntityKind classifies an extracted entity, per a fixed vocabulary.
type EntityKind string

const (
	EntityFile    EntityKind = "file"
	EntityFunc    EntityKind = "function"
	EntityCrate   EntityKind = "crate"
	EntityTool    EntityKind = "tool"
	EntityError   EntityKind = "error"
	EntityConcept EntityKind = "concept"
	EntityConfig  EntityKind = "config"
)

// ExtractedEntity is one entity mention found in a turn's content.
type ExtractedEntity struct {
	Name      string
	Kind      EntityKind
	Relevance float64
}

// Turn is a normalized conversation unit, distinct from a raw session
// message.
type Turn struct {
	ID         string
	SessionKey string
	TurnIndex  int
	Role       coretypes.Role
	Content    string
	Summary    string
	TokenCount int
	CreatedAt  string // RFC3339; kept as string at the storage boundary
}

// NamedMemory is an explicitly saved, user-addressable memory.
type NamedMemory struct {
	Name     string
	Content  string
	Category string
	Tags     []string
}

// VectorBridge is the optional embedding backend. When nil, retrieval
// relies on entity BFS alone.
type VectorBridge interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// TopK returns up to k turn IDs most similar to query, most similar first.
	TopK(ctx context.Context, query string, k int) ([]string, error)
	Store(ctx context.Context, turnID string, embedding []float32) error
}

// Store is the Graph Memory contract.
type Store interface {
	// IndexSession decomposes a session's messages into turns, extracts
	// entities, and updates the entity graph. Called after each execution.
	IndexSession(ctx context.Context, sessionKey string, messages []coretypes.Message) error

	// Retrieve scores and greedily selects turns for query, returning them
	// as assistant-framed messages ready for context injection.
	Retrieve(ctx context.Context, query string, maxTurns, maxTokens int) ([]coretypes.Message, error)

	SaveNamed(ctx context.Context, m NamedMemory) error
	RecallNamed(ctx context.Context, name string) (*NamedMemory, bool, error)
	ListNamed(ctx context.Context) ([]NamedMemory, error)
	DeleteNamed(ctx context.Context, name string) (bool, error)
	UpdateNamed(ctx context.Context, name, content string) (bool, error)

	// TopNamed returns up to n named memories most relevant to query, used
	// for the "always inject up to 3 explicit memories" step.
	TopNamed(ctx context.Context, query string, n int) ([]NamedMemory, error)

	AttachVectorBridge(b VectorBridge)
}
