package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

const tempPrefix = ".seqgui-tmp-"

// DiskBackend keeps artifacts under the ecosystem directory:
// tasks/<id>/fs/{run,task} and fs/global.
type DiskBackend struct {
	absRoot string // absolute root with symlinks resolved
}

// NewDiskBackend locks all operations to root, creating it if needed.
func NewDiskBackend(root string) (*DiskBackend, error) {
	if root == "" {
		return nil, errors.New("artifact: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating root %s: %w", abs, err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	return &DiskBackend{absRoot: abs}, nil
}

// Root returns the resolved ecosystem root.
func (d *DiskBackend) Root() string {
	return d.absRoot
}

// Stat implements Backend.
func (d *DiskBackend) Stat(_ context.Context, key Key) (Entry, error) {
	full, err := d.resolve(key)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return Entry{}, notFound(key, err)
	}
	return entryFromInfo(key.Path, info), nil
}

// List implements Backend.
func (d *DiskBackend) List(_ context.Context, key Key) ([]Entry, error) {
	full, err := d.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, notFound(key, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("listing %s: not a directory: %w", key.Path, errs.ErrInvalidPath)
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", key.Path, err)
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		// Stat follows symlinks, the same as reading the entry would.
		info, err := os.Stat(filepath.Join(full, de.Name()))
		if err != nil {
			continue
		}
		out = append(out, entryFromInfo(joinPath(key.Path, de.Name()), info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read implements Backend.
func (d *DiskBackend) Read(_ context.Context, key Key) ([]byte, Entry, error) {
	full, err := d.resolve(key)
	if err != nil {
		return nil, Entry{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, Entry{}, notFound(key, err)
	}
	if info.IsDir() {
		return nil, Entry{}, fmt.Errorf("reading %s: is a directory: %w", key.Path, errs.ErrInvalidPath)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, Entry{}, notFound(key, err)
	}
	return data, entryFromInfo(key.Path, info), nil
}

// Write implements Backend. Content goes to a temp file in the target
// directory which is then renamed over the target, so a failed write leaves
// the previous content in place.
func (d *DiskBackend) Write(_ context.Context, key Key, data []byte) (Entry, error) {
	full, err := d.resolve(key)
	if err != nil {
		return Entry{}, err
	}
	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return Entry{}, fmt.Errorf("writing %s: is a directory: %w", key.Path, errs.ErrInvalidPath)
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("creating parents of %s: %w", key.Path, err)
	}
	// Re-check the parent chain now that it exists.
	if err := d.contained(key, dir); err != nil {
		return Entry{}, err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return Entry{}, fmt.Errorf("writing %s: %w", key.Path, err)
	}
	return entryFromInfo(key.Path, info), nil
}

// Delete implements Backend. Only files can be deleted.
func (d *DiskBackend) Delete(_ context.Context, key Key) error {
	full, err := d.resolve(key)
	if err != nil {
		return err
	}
	info, err := os.Lstat(full)
	if err != nil {
		return notFound(key, err)
	}
	if info.IsDir() {
		return fmt.Errorf("deleting %s: is a directory: %w", key.Path, errs.ErrInvalidPath)
	}
	if err := os.Remove(full); err != nil {
		return notFound(key, err)
	}
	return nil
}

// resolve maps a key to its backing path and checks that, with symlinks
// followed, it stays inside the scope root.
func (d *DiskBackend) resolve(key Key) (string, error) {
	root := filepath.Join(d.absRoot, filepath.FromSlash(scopePrefix(key)))
	full := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(key.Path, "/")))
	if !hasPathPrefix(full, root) {
		return "", fmt.Errorf("path %s escapes scope root: %w", key.Path, errs.ErrInvalidPath)
	}
	if err := d.contained(key, full); err != nil {
		return "", err
	}
	return full, nil
}

func (d *DiskBackend) contained(key Key, full string) error {
	root := filepath.Join(d.absRoot, filepath.FromSlash(scopePrefix(key)))
	resolvedRoot, err := resolveExisting(root)
	if err != nil {
		return fmt.Errorf("resolving scope root: %w", err)
	}
	if !hasPathPrefix(resolvedRoot, d.absRoot) {
		return fmt.Errorf("scope root for %s resolves outside ecosystem: %w", key.TaskID, errs.ErrInvalidPath)
	}
	resolved, err := resolveExisting(full)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", key.Path, err)
	}
	if !hasPathPrefix(resolved, resolvedRoot) {
		return fmt.Errorf("path %s resolves outside scope root: %w", key.Path, errs.ErrInvalidPath)
	}
	return nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of p
// and re-appends the part that does not exist yet.
func resolveExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
	resolved, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, missing[i])
	}
	return resolved, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path+sep, root)
}

func entryFromInfo(logical string, info fs.FileInfo) Entry {
	name := baseName(logical)
	if logical == "/" {
		name = "/"
	}
	// FileInfo carries no birth time; creation falls back to mtime.
	return Entry{
		Name:       name,
		Path:       logical,
		IsDir:      info.IsDir(),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		CreatedAt:  info.ModTime(),
	}
}

func notFound(key Key, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", key.Scope, key.Path, errs.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", key.Scope, key.Path, err)
}
