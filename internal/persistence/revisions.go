package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// SaveRevision appends a graph document to the task's history. Saving the
// same document as the latest revision again returns that revision without
// adding a new one.
func (s *SQLiteStore) SaveRevision(ctx context.Context, taskID string, document []byte, stateCount int, hasErrors bool) (Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sum := sha256.Sum256(document)
	digest := hex.EncodeToString(sum[:])

	// Serializable so two saves cannot take the same seq.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return Revision{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var latest Revision
	err = tx.QueryRowContext(ctx, `
		SELECT task_id, seq, digest, state_count, has_errors, saved_at
		FROM graph_revisions
		WHERE task_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, taskID).Scan(&latest.TaskID, &latest.Seq, &latest.Digest, &latest.StateCount, &latest.HasErrors, &latest.SavedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Revision{}, fmt.Errorf("failed to query latest revision: %w", err)
	case latest.Digest == digest:
		return latest, nil
	}

	rev := Revision{
		TaskID:     taskID,
		Seq:        latest.Seq + 1,
		Digest:     digest,
		StateCount: stateCount,
		HasErrors:  hasErrors,
		SavedAt:    time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO graph_revisions (task_id, seq, digest, document, state_count, has_errors, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rev.TaskID, rev.Seq, rev.Digest, string(document), rev.StateCount, rev.HasErrors, rev.SavedAt)
	if err != nil {
		return Revision{}, fmt.Errorf("failed to insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rev, nil
}

// ListRevisions returns a task's revisions newest first, without documents.
// limit <= 0 returns all. Returns an empty slice (not nil) for unknown tasks.
func (s *SQLiteStore) ListRevisions(ctx context.Context, taskID string, limit int) ([]Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, seq, digest, state_count, has_errors, saved_at
		FROM graph_revisions
		WHERE task_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	revs := []Revision{}
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.TaskID, &rev.Seq, &rev.Digest, &rev.StateCount, &rev.HasErrors, &rev.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revs, nil
}

// GetRevision loads one revision including its document.
func (s *SQLiteStore) GetRevision(ctx context.Context, taskID string, seq int) (Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rev Revision
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, seq, digest, document, state_count, has_errors, saved_at
		FROM graph_revisions
		WHERE task_id = ? AND seq = ?
	`, taskID, seq).Scan(&rev.TaskID, &rev.Seq, &rev.Digest, &rev.Document, &rev.StateCount, &rev.HasErrors, &rev.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, fmt.Errorf("revision %d of %q: %w", seq, taskID, errs.ErrNotFound)
	}
	if err != nil {
		return Revision{}, fmt.Errorf("failed to query revision: %w", err)
	}
	return rev, nil
}
