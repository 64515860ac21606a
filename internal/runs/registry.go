package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
)

// DefaultLimit caps ListAllRuns when no limit is given.
const DefaultLimit = 50

const cacheSize = 1024

// cachedRun is a parsed record valid while the file keeps its size and mtime.
type cachedRun struct {
	size    int64
	modTime time.Time
	run     Run
	err     error
}

// Registry lists and loads run records.
type Registry struct {
	tasksDir string
	cache    *lru.Cache[string, cachedRun]
	logger   *slog.Logger
}

// NewRegistry reads runs under <ecosystemRoot>/tasks.
func NewRegistry(ecosystemRoot string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, cachedRun](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating run cache: %w", err)
	}
	return &Registry{
		tasksDir: filepath.Join(ecosystemRoot, "tasks"),
		cache:    cache,
		logger:   logger,
	}, nil
}

// ListRuns returns a task's runs, newest first. Records that cannot be
// parsed are skipped. A task without a runs directory has no runs.
func (r *Registry) ListRuns(taskID string) ([]Run, error) {
	if err := validSegment("task id", taskID); err != nil {
		return nil, err
	}
	list, err := r.readTask(taskID, false)
	if err != nil {
		return nil, err
	}
	sortRuns(list)
	return list, nil
}

// ListAllRuns returns runs across every task, newest first, truncated to
// limit after sorting. limit <= 0 means DefaultLimit. Each run's TaskID is
// the directory it was found in, whatever the record says.
func (r *Registry) ListAllRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	entries, err := os.ReadDir(r.tasksDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Run{}, nil
		}
		return nil, fmt.Errorf("reading tasks dir: %w", err)
	}

	all := []Run{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		list, err := r.readTask(e.Name(), true)
		if err != nil {
			r.logger.Warn("skipping task runs", "task", e.Name(), "error", err)
			continue
		}
		all = append(all, list...)
	}
	sortRuns(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetRun loads one run. A missing or malformed record is ErrNotFound.
func (r *Registry) GetRun(taskID, runID string) (Run, error) {
	if err := validSegment("task id", taskID); err != nil {
		return Run{}, err
	}
	if err := validSegment("run id", runID); err != nil {
		return Run{}, err
	}
	p := filepath.Join(r.tasksDir, taskID, "runs", runID+".json")
	run, err := r.load(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Run{}, fmt.Errorf("run %s/%s: %w", taskID, runID, errs.ErrNotFound)
		}
		if errors.Is(err, errs.ErrMalformedDocument) {
			return Run{}, fmt.Errorf("run %s/%s: %w: %w", taskID, runID, errs.ErrNotFound, err)
		}
		return Run{}, fmt.Errorf("reading run %s/%s: %w", taskID, runID, err)
	}
	if run.TaskID == "" {
		run.TaskID = taskID
	}
	return run, nil
}

func (r *Registry) readTask(taskID string, forceTaskID bool) ([]Run, error) {
	dir := filepath.Join(r.tasksDir, taskID, "runs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Run{}, nil
		}
		return nil, fmt.Errorf("reading runs of %s: %w", taskID, err)
	}

	list := make([]Run, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		run, err := r.load(filepath.Join(dir, e.Name()))
		if err != nil {
			r.logger.Warn("skipping run record", "task", taskID, "file", e.Name(), "error", err)
			continue
		}
		if forceTaskID || run.TaskID == "" {
			run.TaskID = taskID
		}
		list = append(list, run)
	}
	return list, nil
}

// load parses a run file, consulting the cache first.
func (r *Registry) load(p string) (Run, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Run{}, err
	}
	if c, ok := r.cache.Get(p); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.run, c.err
	}

	run, err := parseRun(p)
	if err != nil && !errors.Is(err, errs.ErrMalformedDocument) {
		return Run{}, err
	}
	r.cache.Add(p, cachedRun{size: info.Size(), modTime: info.ModTime(), run: run, err: err})
	return run, err
}

func parseRun(p string) (Run, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Run{}, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("%w: %v", errs.ErrMalformedDocument, err)
	}
	if run.StartedAt.IsZero() {
		return Run{}, fmt.Errorf("%w: missing startedAt", errs.ErrMalformedDocument)
	}
	if run.ID == "" {
		run.ID = strings.TrimSuffix(filepath.Base(p), ".json")
	}
	return run, nil
}

// sortRuns orders newest first; equal start times fall back to id.
func sortRuns(list []Run) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func validSegment(what, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return fmt.Errorf("%s %q: %w", what, s, errs.ErrInvalidPath)
	}
	return nil
}
