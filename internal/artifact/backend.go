package artifact

import (
	"context"
	"time"
)

// Entry describes one file or directory.
type Entry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	IsDir      bool      `json:"-"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Backend stores artifact bytes. Keys passed in are already validated; a
// backend still refuses to act on a location outside the key's scope root.
type Backend interface {
	// Stat fails with ErrNotFound when nothing exists at key.
	Stat(ctx context.Context, key Key) (Entry, error)
	// List returns the direct children of a directory, files and directories
	// mixed, sorted by name.
	List(ctx context.Context, key Key) ([]Entry, error)
	Read(ctx context.Context, key Key) ([]byte, Entry, error)
	// Write creates missing parents and replaces existing content whole.
	Write(ctx context.Context, key Key, data []byte) (Entry, error)
	Delete(ctx context.Context, key Key) error
}

// scopePrefix is the slash-separated location of a scope root relative to
// the ecosystem root. Both backends lay data out the same way.
func scopePrefix(key Key) string {
	if key.Scope == ScopeGlobal {
		return "fs/global"
	}
	return "tasks/" + key.TaskID + "/fs/" + string(key.Scope)
}
