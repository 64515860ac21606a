// Package artifact implements the scoped artifact store: a per-task file
// namespace split into run, task and global scopes.
//
// Callers address artifacts by (taskID, scope, logical path). Logical paths
// are slash-separated and rooted at "/"; the mapping to a backing location
// belongs to the Backend and never leaks out of this package.
package artifact

import (
	"fmt"
	"strings"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// Scope is one of the three isolated namespaces.
type Scope string

const (
	ScopeRun    Scope = "run"    // tied to one execution
	ScopeTask   Scope = "task"   // persists across runs of one task
	ScopeGlobal Scope = "global" // shared by all tasks
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeRun, ScopeTask, ScopeGlobal:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("scope %q: %w", s, errs.ErrInvalidPath)
	}
}

// Key addresses one artifact. Path is always in CleanPath form.
type Key struct {
	TaskID string
	Scope  Scope
	Path   string
}

// IsRoot reports whether the key names the scope root.
func (k Key) IsRoot() bool {
	return k.Path == "/"
}

// NewKey validates and normalises the three parts of an artifact address.
func NewKey(taskID string, scope Scope, p string) (Key, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return Key{}, err
	}
	if _, err := ParseScope(string(scope)); err != nil {
		return Key{}, err
	}
	clean, err := CleanPath(p)
	if err != nil {
		return Key{}, err
	}
	return Key{TaskID: taskID, Scope: scope, Path: clean}, nil
}

// CleanPath normalises a logical path to "/"-rooted form. Empty and "."
// segments are dropped and ".." pops one level. A ".." that would climb
// above the scope root is rejected rather than clamped, so "/a/../../x"
// fails instead of silently becoming "/x".
func CleanPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("path %q contains NUL: %w", p, errs.ErrInvalidPath)
	}

	var parts []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", fmt.Errorf("path %q escapes scope root: %w", p, errs.ErrInvalidPath)
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}
	return "/" + strings.Join(parts, "/"), nil
}

// ValidateTaskID requires a task id to be a single, non-special path segment.
func ValidateTaskID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("task id %q: %w", id, errs.ErrInvalidPath)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("task id %q: %w", id, errs.ErrInvalidPath)
	}
	return nil
}

// baseName returns the last segment of a clean logical path.
func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// joinPath appends name to a clean logical directory path.
func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
