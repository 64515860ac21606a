package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// StartInvocation records that the runner was launched.
func (s *SQLiteStore) StartInvocation(ctx context.Context, id, taskID, input string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (id, task_id, input, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, taskID, input, InvocationRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save invocation: %w", err)
	}
	return nil
}

// FinishInvocation marks an invocation succeeded, or failed with runErr.
func (s *SQLiteStore) FinishInvocation(ctx context.Context, id string, runErr error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status, errStr := InvocationSucceeded, ""
	if runErr != nil {
		status, errStr = InvocationFailed, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invocations
		SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, errStr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update invocation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update invocation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invocation %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

// ListInvocations returns invocations newest first. An empty taskID lists
// every task. limit <= 0 returns all.
func (s *SQLiteStore) ListInvocations(ctx context.Context, taskID string, limit int) ([]Invocation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, input, status, error, started_at, finished_at
		FROM invocations
		WHERE ? = '' OR task_id = ?
		ORDER BY started_at DESC, id ASC
		LIMIT ?
	`, taskID, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	out := []Invocation{}
	for rows.Next() {
		var inv Invocation
		var finished sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.TaskID, &inv.Input, &inv.Status, &inv.Error, &inv.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			inv.FinishedAt = &t
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invocations: %w", err)
	}
	return out, nil
}
