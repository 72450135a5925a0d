package graphmemory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// SQLiteStore is the relational Graph Memory backend, grounded on 's
// note that "the entity/turn/co-occurrence triad maps cleanly to
// relational tables" and sharing the Event Store's sqlite connection
// idiom (internal/eventstore/sqlite.go).
type SQLiteStore struct {
	db     *sql.DB
	bridge VectorBridge
}

// NewSQLiteStore opens (creating if absent) a Graph Memory store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("graphmemory: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	mention_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	turn_index INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	summary TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(session_key, turn_index)
);
CREATE TABLE IF NOT EXISTS turn_entity_edges (
	turn_id INTEGER NOT NULL,
	entity_id INTEGER NOT NULL,
	relevance REAL NOT NULL,
	PRIMARY KEY (turn_id, entity_id)
);
CREATE TABLE IF NOT EXISTS entity_cooccurrence (
	entity_a INTEGER NOT NULL,
	entity_b INTEGER NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (entity_a, entity_b)
);
CREATE TABLE IF NOT EXISTS named_memories (
	name TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	category TEXT,
	tags TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_key, turn_index);
CREATE INDEX IF NOT EXISTS idx_edges_entity ON turn_entity_edges(entity_id);
`)
	return err
}

func (s *SQLiteStore) AttachVectorBridge(b VectorBridge) { s.bridge = b }

// upsertEntity increments mention_count and returns the entity's id.
func (s *SQLiteStore) upsertEntity(ctx context.Context, name string, kind EntityKind) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO entities (name, kind, first_seen, mention_count) VALUES (?, ?, ?, 1)
ON CONFLICT(name) DO UPDATE SET mention_count = mention_count + 1`,
		name, string(kind), time.Now())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err == nil && id > 0 {
		return id, nil
	}
	var existing int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, name).Scan(&existing)
	return existing, err
}

func (s *SQLiteStore) IndexSession(ctx context.Context, sessionKey string, messages []coretypes.Message) error {
	turns := DecomposeTurns(sessionKey, messages)
	for _, turn := range turns {
		res, err := s.db.ExecContext(ctx, `
INSERT INTO turns (session_key, turn_index, role, content, summary, token_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_key, turn_index) DO UPDATE SET content = excluded.content, summary = excluded.summary`,
			turn.SessionKey, turn.TurnIndex, string(turn.Role), turn.Content, turn.Summary, turn.TokenCount, time.Now())
		if err != nil {
			return err
		}
		turnID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		entities := EntityExtractor(turn.Content)
		entityIDs := make([]int64, 0, len(entities))
		for _, e := range entities {
			id, err := s.upsertEntity(ctx, e.Name, e.Kind)
			if err != nil {
				return err
			}
			entityIDs = append(entityIDs, id)
			if _, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO turn_entity_edges (turn_id, entity_id, relevance) VALUES (?, ?, ?)`,
				turnID, id, e.Relevance); err != nil {
				return err
			}
		}
		// Co-occurrence: once per unordered pair within the turn.
		for i := 0; i < len(entityIDs); i++ {
			for j := i + 1; j < len(entityIDs); j++ {
				a, b := entityIDs[i], entityIDs[j]
				if a > b {
					a, b = b, a
				}
				if _, err := s.db.ExecContext(ctx, `
INSERT INTO entity_cooccurrence (entity_a, entity_b, count) VALUES (?, ?, 1)
ON CONFLICT(entity_a, entity_b) DO UPDATE SET count = count + 1`, a, b); err != nil {
					return err
				}
			}
		}
		if s.bridge != nil {
			emb, err := s.bridge.Embed(ctx, turn.Summary)
			if err == nil {
				_ = s.bridge.Store(ctx, fmt.Sprintf("%d", turnID), emb)
			}
		}
	}
	return nil
}

type scoredTurn struct {
	turnID int64
	score  float64
}

func (s *SQLiteStore) Retrieve(ctx context.Context, query string, maxTurns, maxTokens int) ([]coretypes.Message, error) {
	seeds := EntityExtractor(query)
	seedIDs := map[int64]bool{}
	for _, e := range seeds {
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM entities WHERE name = ?`, e.Name).Scan(&id)
		if err == nil {
			seedIDs[id] = true
		}
	}

	if s.bridge != nil {
		if ids, err := s.bridge.TopK(ctx, query, 10); err == nil {
			for _, turnIDStr := range ids {
				var eid int64
				row := s.db.QueryRowContext(ctx, `SELECT entity_id FROM turn_entity_edges WHERE turn_id = ? LIMIT 1`, turnIDStr)
				if row.Scan(&eid) == nil {
					seedIDs[eid] = true
				}
			}
		}
	}

	distances := s.bfsDistances(ctx, seedIDs)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, token_count, created_at FROM turns ORDER BY created_at DESC LIMIT 500`)
	if err != nil {
		return nil, err
	}
	type turnRow struct {
		id        int64
		content   string
		tokens    int
		createdAt time.Time
	}
	var all []turnRow
	for rows.Next() {
		var tr turnRow
		if err := rows.Scan(&tr.id, &tr.content, &tr.tokens, &tr.createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, tr)
	}
	rows.Close()

	now := time.Now()
	var scored []scoredTurn
	for _, tr := range all {
		entityOverlap := 0.0
		erows, err := s.db.QueryContext(ctx, `SELECT entity_id, relevance FROM turn_entity_edges WHERE turn_id = ?`, tr.id)
		if err == nil {
			for erows.Next() {
				var eid int64
				var rel float64
				if erows.Scan(&eid, &rel) == nil {
					if seedIDs[eid] {
						entityOverlap += rel
					}
				}
			}
			erows.Close()
		}

		bfsScore := 0.0
		if d, ok := bestDistance(distances, tr.id, s, ctx); ok {
			bfsScore = 1.0 / (1.0 + float64(d))
		}

		recency := math.Exp(-now.Sub(tr.createdAt).Hours() / (24 * 7))
		score := entityOverlap*2 + bfsScore*1.5 + recency*0.5
		if score > 0 {
			scored = append(scored, scoredTurn{turnID: tr.id, score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var out []coretypes.Message
	tokenBudget := 0
	for _, st := range scored {
		if len(out) >= maxTurns {
			break
		}
		var content string
		var tokens int
		if err := s.db.QueryRowContext(ctx, `SELECT content, token_count FROM turns WHERE id = ?`, st.turnID).Scan(&content, &tokens); err != nil {
			continue
		}
		if tokenBudget+tokens > maxTokens && len(out) > 0 {
			break
		}
		tokenBudget += tokens
		out = append(out, coretypes.Message{Role: coretypes.RoleSystem, Content: "[Recalled] " + content, CreatedAt: time.Now()})
	}
	return out, nil
}

// bfsDistances computes shortest hop distance from any seed entity to
// every other entity via the co-occurrence graph, capped at depth 4.
func (s *SQLiteStore) bfsDistances(ctx context.Context, seeds map[int64]bool) map[int64]int {
	dist := map[int64]int{}
	queue := make([]int64, 0, len(seeds))
	for id := range seeds {
		dist[id] = 0
		queue = append(queue, id)
	}
	const maxDepth = 4
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if dist[cur] >= maxDepth {
			continue
		}
		rows, err := s.db.QueryContext(ctx, `
SELECT entity_a, entity_b FROM entity_cooccurrence WHERE entity_a = ? OR entity_b = ?`, cur, cur)
		if err != nil {
			continue
		}
		for rows.Next() {
			var a, b int64
			if rows.Scan(&a, &b) != nil {
				continue
			}
			neighbor := a
			if a == cur {
				neighbor = b
			}
			if _, seen := dist[neighbor]; !seen {
				dist[neighbor] = dist[cur] + 1
				queue = append(queue, neighbor)
			}
		}
		rows.Close()
	}
	return dist
}

func bestDistance(distances map[int64]int, turnID int64, s *SQLiteStore, ctx context.Context) (int, bool) {
	rows, err := s.db.QueryContext(ctx, `SELECT entity_id FROM turn_entity_edges WHERE turn_id = ?`, turnID)
	if err != nil {
		return 0, false
	}
	defer rows.Close()
	best := -1
	for rows.Next() {
		var eid int64
		if rows.Scan(&eid) != nil {
			continue
		}
		if d, ok := distances[eid]; ok {
			if best == -1 || d < best {
				best = d
			}
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func (s *SQLiteStore) SaveNamed(ctx context.Context, m NamedMemory) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO named_memories (name, content, category, tags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET content = excluded.content, category = excluded.category, tags = excluded.tags, updated_at = excluded.updated_at`,
		m.Name, m.Content, m.Category, strings.Join(m.Tags, ","), now, now)
	if err != nil {
		return err
	}
	for _, e := range EntityExtractor(m.Content) {
		if _, err := s.upsertEntity(ctx, e.Name, e.Kind); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) RecallNamed(ctx context.Context, name string) (*NamedMemory, bool, error) {
	var m NamedMemory
	var tags, category sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name, content, category, tags FROM named_memories WHERE name = ?`, name).
		Scan(&m.Name, &m.Content, &category, &tags)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m.Category = category.String
	if tags.String != "" {
		m.Tags = strings.Split(tags.String, ",")
	}
	return &m, true, nil
}

func (s *SQLiteStore) ListNamed(ctx context.Context) ([]NamedMemory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, content, category, tags FROM named_memories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NamedMemory
	for rows.Next() {
		var m NamedMemory
		var tags, category sql.NullString
		if err := rows.Scan(&m.Name, &m.Content, &category, &tags); err != nil {
			return nil, err
		}
		m.Category = category.String
		if tags.String != "" {
			m.Tags = strings.Split(tags.String, ",")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteNamed(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM named_memories WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) UpdateNamed(ctx context.Context, name, content string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE named_memories SET content = ?, updated_at = ? WHERE name = ?`, content, time.Now(), name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) TopNamed(ctx context.Context, query string, n int) ([]NamedMemory, error) {
	all, err := s.ListNamed(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	type scored struct {
		m     NamedMemory
		score int
	}
	var cands []scored
	for _, m := range all {
		score := 0
		if strings.Contains(q, strings.ToLower(m.Name)) {
			score += 10
		}
		for _, w := range strings.Fields(q) {
			if len(w) > 2 && strings.Contains(strings.ToLower(m.Content), w) {
				score++
			}
		}
		if score > 0 {
			cands = append(cands, scored{m: m, score: score})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > n {
		cands = cands[:n]
	}
	out := make([]NamedMemory, len(cands))
	for i, c := range cands {
		out[i] = c.m
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
