package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// SQLStore is the durable Session Store backend, grounded on the donor's
// sessions.CockroachStore prepared-statement idiom (internal/sessions/
// cockroach.go) and sharing the Event Store's connection-pool-config
// shape. dialect selects placeholder style ("sqlite" uses "?", "postgres"
// uses "$N").
type SQLStore struct {
	db      *sql.DB
	dialect string
	ttl     time.Duration
}

// NewSQLiteStore opens a SQLite-backed Session Store at path.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: "sqlite", ttl: ttl}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres/CockroachDB-backed Session Store.
func NewPostgresStore(ctx context.Context, dsn string, ttl time.Duration) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres", ttl: ttl}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) migrate() error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
	key TEXT PRIMARY KEY,
	max_tokens INTEGER NOT NULL,
	token_aware_trimming BOOLEAN NOT NULL,
	messages TEXT NOT NULL,
	metadata TEXT,
	updated_at TIMESTAMP NOT NULL
);`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *SQLStore) Get(ctx context.Context, key string) (*coretypes.SessionContext, error) {
	q := fmt.Sprintf(`SELECT key, max_tokens, token_aware_trimming, messages, metadata, updated_at FROM sessions WHERE key = %s`, s.ph(1))
	row := s.db.QueryRowContext(ctx, q, key)
	var sc coretypes.SessionContext
	var messages string
	var metadata sql.NullString
	if err := row.Scan(&sc.Key, &sc.MaxTokens, &sc.TokenAwareTrimming, &messages, &metadata, &sc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &sc.Messages); err != nil {
		return nil, err
	}
	if metadata.Valid {
		_ = json.Unmarshal([]byte(metadata.String), &sc.Metadata)
	}
	return &sc, nil
}

func (s *SQLStore) Save(ctx context.Context, sc *coretypes.SessionContext) error {
	sc.UpdatedAt = time.Now()
	messages, err := json.Marshal(sc.Messages)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(sc.Metadata)
	if err != nil {
		return err
	}
	var q string
	if s.dialect == "postgres" {
		q = `INSERT INTO sessions (key, max_tokens, token_aware_trimming, messages, metadata, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (key) DO UPDATE SET max_tokens=$2, token_aware_trimming=$3, messages=$4, metadata=$5, updated_at=$6`
	} else {
		q = `INSERT INTO sessions (key, max_tokens, token_aware_trimming, messages, metadata, updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT (key) DO UPDATE SET max_tokens=excluded.max_tokens, token_aware_trimming=excluded.token_aware_trimming,
messages=excluded.messages, metadata=excluded.metadata, updated_at=excluded.updated_at`
	}
	_, err = s.db.ExecContext(ctx, q, sc.Key, sc.MaxTokens, sc.TokenAwareTrimming, string(messages), string(metadata), sc.UpdatedAt)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM sessions WHERE key = %s`, s.ph(1))
	_, err := s.db.ExecContext(ctx, q, key)
	return err
}

func (s *SQLStore) Exists(ctx context.Context, key string) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM sessions WHERE key = %s`, s.ph(1))
	var one int
	err := s.db.QueryRowContext(ctx, q, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) CleanupExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.ttl)
	q := fmt.Sprintf(`DELETE FROM sessions WHERE updated_at < %s`, s.ph(1))
	res, err := s.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }
