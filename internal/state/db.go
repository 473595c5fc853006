// Package state provides SQLite-based persistence for the marketplace:
// agents, tasks, escrows, claims, disputes, ballots, and ledger balances.
// The engine runs in memory; the store writes full snapshots and rebuilds
// the engine from them on load.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with marketplace operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the path to the default Agora database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "agora", "agora.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Agents},
		{2, migrationV2Tasks},
		{3, migrationV3Disputes},
		{4, migrationV4Balances},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Agents = `
CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	authority TEXT NOT NULL,
	capabilities INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	reputation INTEGER NOT NULL DEFAULT 5000,
	stake INTEGER NOT NULL DEFAULT 0,
	active_tasks INTEGER NOT NULL DEFAULT 0,
	tasks_completed INTEGER NOT NULL DEFAULT 0,
	total_earned INTEGER NOT NULL DEFAULT 0,
	registered_at INTEGER NOT NULL DEFAULT 0,
	last_active INTEGER NOT NULL DEFAULT 0,
	last_task_created INTEGER NOT NULL DEFAULT 0,
	last_dispute_initiated INTEGER NOT NULL DEFAULT 0,
	task_count_24h INTEGER NOT NULL DEFAULT 0,
	dispute_count_24h INTEGER NOT NULL DEFAULT 0,
	rate_limit_window_start INTEGER NOT NULL DEFAULT 0,
	active_dispute_votes INTEGER NOT NULL DEFAULT 0,
	last_vote_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_agents_authority ON agents(authority);
CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
`

const migrationV2Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	creator TEXT NOT NULL,
	creator_authority TEXT NOT NULL,
	description TEXT NOT NULL,
	constraint_hash TEXT,
	required_capabilities INTEGER NOT NULL DEFAULT 0,
	min_reputation INTEGER NOT NULL DEFAULT 0,
	reward_amount INTEGER NOT NULL,
	protocol_fee_bps INTEGER NOT NULL DEFAULT 0,
	max_workers INTEGER NOT NULL,
	current_workers INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'open',
	type TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	deadline INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER NOT NULL DEFAULT 0,
	completions INTEGER NOT NULL DEFAULT 0,
	required_completions INTEGER NOT NULL DEFAULT 1,
	result TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_creator ON tasks(creator);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS escrows (
	task_id TEXT PRIMARY KEY REFERENCES tasks(id),
	amount INTEGER NOT NULL,
	distributed INTEGER NOT NULL DEFAULT 0,
	is_closed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS claims (
	task_id TEXT NOT NULL REFERENCES tasks(id),
	worker TEXT NOT NULL,
	claimed_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER NOT NULL DEFAULT 0,
	proof_hash TEXT,
	result TEXT,
	is_completed INTEGER NOT NULL DEFAULT 0,
	reward_paid INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (task_id, worker)
);

CREATE INDEX IF NOT EXISTS idx_claims_worker ON claims(worker);
`

const migrationV3Disputes = `
CREATE TABLE IF NOT EXISTS disputes (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	initiator TEXT NOT NULL,
	initiator_authority TEXT NOT NULL,
	defendant TEXT NOT NULL,
	evidence_hash TEXT NOT NULL,
	resolution TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at INTEGER NOT NULL,
	resolved_at INTEGER NOT NULL DEFAULT 0,
	approved INTEGER NOT NULL DEFAULT 0,
	votes_for INTEGER NOT NULL DEFAULT 0,
	votes_against INTEGER NOT NULL DEFAULT 0,
	total_voters INTEGER NOT NULL DEFAULT 0,
	voting_deadline INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	worker_stake_at_dispute INTEGER NOT NULL DEFAULT 0,
	slash_applied INTEGER NOT NULL DEFAULT 0,
	initiator_slash_applied INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_disputes_task_id ON disputes(task_id);
CREATE INDEX IF NOT EXISTS idx_disputes_status ON disputes(status);

CREATE TABLE IF NOT EXISTS dispute_votes (
	dispute_id TEXT NOT NULL REFERENCES disputes(id),
	voter TEXT NOT NULL,
	authority TEXT NOT NULL,
	approved INTEGER NOT NULL,
	voted_at INTEGER NOT NULL,
	stake_at_vote INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (dispute_id, voter)
);
`

const migrationV4Balances = `
CREATE TABLE IF NOT EXISTS balances (
	account TEXT PRIMARY KEY,
	balance INTEGER NOT NULL DEFAULT 0
);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
