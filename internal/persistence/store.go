// Package persistence keeps auxiliary history in SQLite: every saved
// revision of a task's graph and a log of runner invocations. The task
// directory stays the source of truth; this database is an index beside it.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Revision is one saved version of a task graph.
type Revision struct {
	TaskID     string    `json:"taskId"`
	Seq        int       `json:"seq"`
	Digest     string    `json:"digest"`
	Document   string    `json:"document,omitempty"`
	StateCount int       `json:"stateCount"`
	HasErrors  bool      `json:"hasErrors"`
	SavedAt    time.Time `json:"savedAt"`
}

// Invocation is one launch of the external runner.
type Invocation struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"taskId"`
	Input      string     `json:"input"`
	Status     string     `json:"status"` // running, succeeded, failed
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Invocation statuses.
const (
	InvocationRunning   = "running"
	InvocationSucceeded = "succeeded"
	InvocationFailed    = "failed"
)

// Store defines the persistence interface.
type Store interface {
	// Graph revisions
	SaveRevision(ctx context.Context, taskID string, document []byte, stateCount int, hasErrors bool) (Revision, error)
	ListRevisions(ctx context.Context, taskID string, limit int) ([]Revision, error)
	GetRevision(ctx context.Context, taskID string, seq int) (Revision, error)

	// Runner invocations
	StartInvocation(ctx context.Context, id, taskID, input string) error
	FinishInvocation(ctx context.Context, id string, runErr error) error
	ListInvocations(ctx context.Context, taskID string, limit int) ([]Invocation, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite takes pragmas through the connection string.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named database; the shared cache lets both pool
// connections see it.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:mem-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Two connections: one for a running query, one for a nested lookup.
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
