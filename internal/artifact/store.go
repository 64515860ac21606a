package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
	"github.com/AnEntrypoint/sequential-gui/internal/events"
)

// Listing is the content of one directory.
type Listing struct {
	Path        string  `json:"path"`
	Files       []Entry `json:"files"`
	Directories []Entry `json:"directories"`
}

// File is the content of one artifact.
type File struct {
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Store validates artifact addresses, delegates to a Backend and publishes
// an ArtifactChangedEvent after every successful mutation.
//
// Writes are not serialised: two concurrent writes to one path race and the
// last one to finish wins.
type Store struct {
	backend Backend
	bus     *events.Bus
	logger  *slog.Logger
}

// NewStore creates a store. bus may be nil to disable notifications.
func NewStore(backend Backend, bus *events.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, bus: bus, logger: logger}
}

// Stat describes whatever is at path: a file or a directory.
func (s *Store) Stat(ctx context.Context, taskID string, scope Scope, p string) (Entry, error) {
	key, err := NewKey(taskID, scope, p)
	if err != nil {
		return Entry{}, err
	}
	return s.backend.Stat(ctx, key)
}

// List returns the files and directories directly under dir.
func (s *Store) List(ctx context.Context, taskID string, scope Scope, dir string) (Listing, error) {
	key, err := NewKey(taskID, scope, dir)
	if err != nil {
		return Listing{}, err
	}
	entries, err := s.backend.List(ctx, key)
	if err != nil {
		return Listing{}, err
	}

	out := Listing{Path: key.Path, Files: []Entry{}, Directories: []Entry{}}
	for _, e := range entries {
		if e.IsDir {
			out.Directories = append(out.Directories, e)
		} else {
			out.Files = append(out.Files, e)
		}
	}
	return out, nil
}

// Read returns the content of a file.
func (s *Store) Read(ctx context.Context, taskID string, scope Scope, p string) (File, error) {
	key, err := NewKey(taskID, scope, p)
	if err != nil {
		return File{}, err
	}
	if key.IsRoot() {
		return File{}, fmt.Errorf("reading scope root: %w", errs.ErrInvalidPath)
	}
	data, entry, err := s.backend.Read(ctx, key)
	if err != nil {
		return File{}, err
	}
	return File{
		Path:       key.Path,
		Content:    string(data),
		Size:       entry.Size,
		ModifiedAt: entry.ModifiedAt,
	}, nil
}

// Write stores content at path, creating parent directories.
func (s *Store) Write(ctx context.Context, taskID string, scope Scope, p, content string) (Entry, error) {
	key, err := NewKey(taskID, scope, p)
	if err != nil {
		return Entry{}, err
	}
	if key.IsRoot() {
		return Entry{}, fmt.Errorf("writing scope root: %w", errs.ErrInvalidPath)
	}
	entry, err := s.backend.Write(ctx, key, []byte(content))
	if err != nil {
		return Entry{}, err
	}
	s.logger.Debug("artifact written", "task", taskID, "scope", scope, "path", key.Path, "size", entry.Size)
	s.publish(key, events.OpWrite)
	return entry, nil
}

// Delete removes a file.
func (s *Store) Delete(ctx context.Context, taskID string, scope Scope, p string) error {
	key, err := NewKey(taskID, scope, p)
	if err != nil {
		return err
	}
	if key.IsRoot() {
		return fmt.Errorf("deleting scope root: %w", errs.ErrInvalidPath)
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Debug("artifact deleted", "task", taskID, "scope", scope, "path", key.Path)
	s.publish(key, events.OpDelete)
	return nil
}

func (s *Store) publish(key Key, op string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ArtifactChangedEvent{
		Task:      key.TaskID,
		Scope:     string(key.Scope),
		Path:      key.Path,
		Op:        op,
		Timestamp: time.Now(),
	})
}
