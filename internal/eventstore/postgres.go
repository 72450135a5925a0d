package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// PostgresConfig configures the production Event Store backend, grounded on
// the donor's CockroachConfig (internal/sessions/cockroach.go,
// internal/tasks/cockroach.go) — the same pool-sizing fields, since
// CockroachDB speaks the Postgres wire protocol via lib/pq.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPostgresConfig mirrors the donor's CockroachDB pool defaults.
func DefaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgresStore is the durable, multi-node Event Store backend.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and runs migrations.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: ping: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	channel_type TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	thread_id TEXT,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	response TEXT,
	model TEXT,
	iterations INT NOT NULL DEFAULT 0,
	error TEXT
);
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	sequence_num BIGINT NOT NULL,
	type TEXT NOT NULL,
	payload JSONB NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	parent_event_id TEXT,
	metadata JSONB,
	UNIQUE(execution_id, sequence_num)
);
CREATE INDEX IF NOT EXISTS idx_events_execution ON events(execution_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`)
	return err
}

func (s *PostgresStore) CreateExecution(ctx context.Context, e *coretypes.Execution) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions (id, channel_type, channel_id, user_id, thread_id, status, started_at, model, iterations)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Channel.ChannelType, e.Channel.ChannelID, e.Channel.UserID, e.Channel.ThreadID,
		string(e.Status), e.StartedAt, e.Model, e.Iterations)
	return err
}

func (s *PostgresStore) UpdateExecutionStatus(ctx context.Context, id string, status coretypes.ExecutionStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE executions SET status=$1, ended_at=$2, error=$3 WHERE id=$4`,
		string(status), time.Now(), errMsg, id)
	return err
}

func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*coretypes.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, channel_type, channel_id, user_id, thread_id, status, started_at, ended_at, response, model, iterations, error
FROM executions WHERE id=$1`, id)
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

func (s *PostgresStore) Append(ctx context.Context, ev *coretypes.Event) error {
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
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.ID, ev.ExecutionID, ev.SequenceNum, string(ev.Type), payload, ev.Timestamp, ev.DurationMs, ev.ParentEventID, meta)
	if err != nil && isUniqueConstraintErr(err) {
		return ErrDuplicateSequence
	}
	return err
}

func (s *PostgresStore) GetExecutionEvents(ctx context.Context, executionID string) ([]coretypes.Event, error) {
	return s.Query(ctx, Query{ExecutionID: executionID})
}

func (s *PostgresStore) NextSequenceNum(ctx context.Context, executionID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence_num) FROM events WHERE execution_id=$1`, executionID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]coretypes.Event, error) {
	query := `SELECT id, execution_id, sequence_num, type, payload, timestamp, duration_ms, parent_event_id, metadata FROM events WHERE TRUE`
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if q.ExecutionID != "" {
		query += " AND execution_id = " + arg(q.ExecutionID)
	}
	if q.Type != "" {
		query += " AND type = " + arg(string(q.Type))
	}
	if q.ParentEventID != "" {
		query += " AND parent_event_id = " + arg(q.ParentEventID)
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= " + arg(q.Since)
	}
	if !q.Until.IsZero() {
		query += " AND timestamp <= " + arg(q.Until)
	}
	query += " ORDER BY execution_id, sequence_num ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []coretypes.Event
	for rows.Next() {
		var ev coretypes.Event
		var payload, meta []byte
		var parent sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ExecutionID, &ev.SequenceNum, &ev.Type, &payload, &ev.Timestamp, &ev.DurationMs, &parent, &meta); err != nil {
			return nil, err
		}
		ev.ParentEventID = parent.String
		_ = json.Unmarshal(payload, &ev.Payload)
		_ = json.Unmarshal(meta, &ev.Metadata)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, q Query) (int, error) {
	events, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }
