package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// SQLiteStore is the local, file-backed Event Store, grounded on the
// donor's prepared-statement-per-operation pattern
// (internal/sessions/cockroach.go, internal/tasks/cockroach.go) but backed
// by mattn/go-sqlite3 for the single-node "ordered local database".
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed event store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("eventstore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	channel_type TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	thread_id TEXT,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP,
	response TEXT,
	model TEXT,
	iterations INTEGER NOT NULL DEFAULT 0,
	error TEXT
);
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	sequence_num INTEGER NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	parent_event_id TEXT,
	metadata TEXT,
	UNIQUE(execution_id, sequence_num)
);
CREATE INDEX IF NOT EXISTS idx_events_execution ON events(execution_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_parent ON events(parent_event_id);
`)
	return err
}

func (s *SQLiteStore) CreateExecution(ctx context.Context, e *coretypes.Execution) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions (id, channel_type, channel_id, user_id, thread_id, status, started_at, model, iterations)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Channel.ChannelType, e.Channel.ChannelID, e.Channel.UserID, e.Channel.ThreadID,
		string(e.Status), e.StartedAt, e.Model, e.Iterations)
	return err
}

func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, id string, status coretypes.ExecutionStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE executions SET status = ?, ended_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now(), errMsg, id)
	return err
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*coretypes.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, channel_type, channel_id, user_id, thread_id, status, started_at, ended_at, response, model, iterations, error
FROM executions WHERE id = ?`, id)
	var e coretypes.Execution
	var endedAt sql.NullTime
	var response, errMsg, threadID sql.NullString
	if err := row.Scan(&e.ID, &e.Channel.ChannelType, &e.Channel.ChannelID, &e.Channel.UserID, &threadID,
		&e.Status, &e.StartedAt, &endedAt, &response, &e.Model, &e.Iterations, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.Channel.ThreadID = threadID.String
	e.EndedAt = endedAt.Time
	e.Response = response.String
	e.Error = errMsg.String
	return &e, nil
}

func (s *SQLiteStore) Append(ctx context.Context, ev *coretypes.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO events (id, execution_id, sequence_num, type, payload, timestamp, duration_ms, parent_event_id, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ExecutionID, ev.SequenceNum, string(ev.Type), string(payload), ev.Timestamp, ev.DurationMs, ev.ParentEventID, string(meta))
	if err != nil && isUniqueConstraintErr(err) {
		return ErrDuplicateSequence
	}
	return err
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && (contains(err.Error(), "UNIQUE constraint") || contains(err.Error(), "unique constraint"))
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) GetExecutionEvents(ctx context.Context, executionID string) ([]coretypes.Event, error) {
	return s.Query(ctx, Query{ExecutionID: executionID})
}

func (s *SQLiteStore) NextSequenceNum(ctx context.Context, executionID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence_num) FROM events WHERE execution_id = ?`, executionID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]coretypes.Event, error) {
	query := `SELECT id, execution_id, sequence_num, type, payload, timestamp, duration_ms, parent_event_id, metadata FROM events WHERE 1=1`
	var args []any
	if q.ExecutionID != "" {
		query += ` AND execution_id = ?`
		args = append(args, q.ExecutionID)
	}
	if q.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(q.Type))
	}
	if q.ParentEventID != "" {
		query += ` AND parent_event_id = ?`
		args = append(args, q.ParentEventID)
	}
	if !q.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.Until)
	}
	query += ` ORDER BY execution_id, sequence_num ASC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coretypes.Event
	for rows.Next() {
		var ev coretypes.Event
		var payload, meta string
		var parent sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ExecutionID, &ev.SequenceNum, &ev.Type, &payload, &ev.Timestamp, &ev.DurationMs, &parent, &meta); err != nil {
			return nil, err
		}
		ev.ParentEventID = parent.String
		_ = json.Unmarshal([]byte(payload), &ev.Payload)
		_ = json.Unmarshal([]byte(meta), &ev.Metadata)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, q Query) (int, error) {
	events, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
