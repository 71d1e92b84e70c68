// Package store is PTC's durable, single-writer SQL layer. It backs
// MessagePersistence (C2), WorkerRegistry (C5), TaskClaim (C8), and
// DeadLetter (C11) from spec.md on top of a single SQLite database file,
// the concrete embedded SQL engine the spec treats as an external
// collaborator (spec §1, "single-writer SQL store").
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maumercado/ptc/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	sender TEXT NOT NULL,
	recipient TEXT NOT NULL,
	content TEXT NOT NULL,
	importance TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	correlation_id TEXT,
	created_at INTEGER NOT NULL,
	delivered_at INTEGER,
	acknowledged_at INTEGER,
	retry_count INTEGER NOT NULL DEFAULT 0,
	dead_letter INTEGER NOT NULL DEFAULT 0,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
CREATE INDEX IF NOT EXISTS idx_messages_correlation_id ON messages(correlation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS workers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	pid INTEGER NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	last_heartbeat INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workers_status ON workers(status);

CREATE TABLE IF NOT EXISTS task_claims (
	task_id TEXT PRIMARY KEY,
	worker_id TEXT NOT NULL,
	status TEXT NOT NULL,
	claimed_at INTEGER NOT NULL,
	completed_at INTEGER,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_task_claims_worker_id ON task_claims(worker_id);
CREATE INDEX IF NOT EXISTS idx_task_claims_status ON task_claims(status);

CREATE TABLE IF NOT EXISTS dead_letters (
	id TEXT PRIMARY KEY,
	original_message_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	recipient TEXT NOT NULL,
	content TEXT NOT NULL,
	importance TEXT NOT NULL,
	type TEXT NOT NULL,
	error TEXT NOT NULL,
	failed_at INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	resolved INTEGER NOT NULL DEFAULT 0,
	resolved_at INTEGER,
	resolution TEXT,
	next_retry_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_resolved ON dead_letters(resolved);
CREATE INDEX IF NOT EXISTS idx_dead_letters_failed_at ON dead_letters(failed_at);
CREATE INDEX IF NOT EXISTS idx_dead_letters_sender ON dead_letters(sender);
`

// Store wraps the shared *sql.DB that every sub-component (messages.go,
// workers.go, claims.go, deadletters.go) uses.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema, in WAL mode with a 5s busy timeout, matching spec §1's
// "single-writer SQL store" contract. The pool holds one connection, so
// this process's reads and writes all pass through it in turn.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows only one writer; cap the pool so the driver serializes
	// writes through a single connection instead of racing sqlite's own
	// locking (the teacher's RedisQueue instead relies on Redis to own
	// concurrency, this is the SQL-store equivalent).
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("store opened")
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for components that need custom queries
// (e.g. the admin health check's ping and ptcctl's stats queries).
func (s *Store) DB() *sql.DB {
	return s.db
}
