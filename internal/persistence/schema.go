package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS graph_revisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		digest TEXT NOT NULL,
		document TEXT NOT NULL,
		state_count INTEGER NOT NULL,
		has_errors INTEGER NOT NULL,
		saved_at DATETIME NOT NULL,
		UNIQUE (task_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_graph_revisions_task_seq
		ON graph_revisions(task_id, seq);

	CREATE TABLE IF NOT EXISTS invocations (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		input TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_invocations_task_started
		ON invocations(task_id, started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
