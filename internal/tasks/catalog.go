// Package tasks reads and writes task directories under
// <ecosystem>/tasks/<id>: config.json, code.js and graph.json. Runs live
// beside them and are read by the runs package.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/artifact"
	"github.com/AnEntrypoint/sequential-gui/internal/errs"
	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/graph"
	"github.com/AnEntrypoint/sequential-gui/internal/persistence"
)

// File names inside a task directory.
const (
	ConfigFile = "config.json"
	CodeFile   = "code.js"
	GraphFile  = "graph.json"
)

// What values carried by TaskUpdatedEvent.
const (
	UpdatedCode   = "code"
	UpdatedConfig = "config"
	UpdatedGraph  = "graph"
)

// Summary is a task's config object with "id" forced to the directory name.
// Tasks without a readable config get {"id": id, "name": id}.
type Summary map[string]any

// ID returns the task id.
func (s Summary) ID() string {
	id, _ := s["id"].(string)
	return id
}

// Name returns the display name, falling back to the id.
func (s Summary) Name() string {
	if name, ok := s["name"].(string); ok && name != "" {
		return name
	}
	return s.ID()
}

// Detail is everything the editor needs for one task. Graph is null when the
// task has no graph document or it cannot be parsed.
type Detail struct {
	ID     string          `json:"id"`
	Config map[string]any  `json:"config"`
	Code   string          `json:"code"`
	Graph  json.RawMessage `json:"graph"`
}

// Catalog manages task directories.
type Catalog struct {
	tasksDir string
	history  persistence.Store
	bus      *events.Bus
	logger   *slog.Logger

	// graphLocks serialises read-modify-write cycles per task.
	graphLocks *taskLocks
}

// NewCatalog creates a catalog over <ecosystemRoot>/tasks. history and bus
// may be nil.
func NewCatalog(ecosystemRoot string, history persistence.Store, bus *events.Bus, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		tasksDir:   filepath.Join(ecosystemRoot, "tasks"),
		history:    history,
		bus:        bus,
		logger:     logger,
		graphLocks: newTaskLocks(),
	}
}

// Dir returns the directory holding all tasks.
func (c *Catalog) Dir() string {
	return c.tasksDir
}

// List returns every task directory sorted by id. A missing tasks directory
// yields an empty list.
func (c *Catalog) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(c.tasksDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tasks directory: %w", err)
	}

	out := []Summary{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || artifact.ValidateTaskID(entry.Name()) != nil {
			continue
		}
		id := entry.Name()
		cfg, err := c.readConfig(id)
		if err != nil {
			out = append(out, Summary{"id": id, "name": id})
			continue
		}
		s := Summary(cfg)
		s["id"] = id
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Get loads a task's documents. Missing config and code are returned empty.
func (c *Catalog) Get(ctx context.Context, id string) (Detail, error) {
	dir, err := c.existingDir(id)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{ID: id, Config: map[string]any{}, Graph: json.RawMessage("null")}
	if cfg, err := c.readConfig(id); err == nil {
		d.Config = cfg
	}
	if code, err := os.ReadFile(filepath.Join(dir, CodeFile)); err == nil {
		d.Code = string(code)
	}
	if raw, err := os.ReadFile(filepath.Join(dir, GraphFile)); err == nil && json.Valid(raw) {
		d.Graph = json.RawMessage(raw)
	}
	return d, nil
}

// SaveCode replaces the task's code.js, creating the task directory.
func (c *Catalog) SaveCode(ctx context.Context, id, code string) error {
	if err := c.write(id, CodeFile, []byte(code)); err != nil {
		return err
	}
	c.publish(id, UpdatedCode)
	return nil
}

// SaveConfig replaces the task's config.json. The document must be a JSON
// object; it is stored indented.
func (c *Catalog) SaveConfig(ctx context.Context, id string, doc json.RawMessage) error {
	var obj map[string]any
	if err := json.Unmarshal(doc, &obj); err != nil || obj == nil {
		return fmt.Errorf("config for %q: %w", id, errs.ErrMalformedDocument)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, doc, "", "  "); err != nil {
		return fmt.Errorf("config for %q: %w", id, errs.ErrMalformedDocument)
	}
	if err := c.write(id, ConfigFile, out.Bytes()); err != nil {
		return err
	}
	c.publish(id, UpdatedConfig)
	return nil
}

// LoadGraph reads the task's graph. A missing or malformed document yields
// an empty graph starting at "start". The task directory must exist.
func (c *Catalog) LoadGraph(ctx context.Context, id string) (*graph.Graph, error) {
	dir, err := c.existingDir(id)
	if err != nil {
		return nil, err
	}
	return c.loadGraph(id, dir)
}

func (c *Catalog) loadGraph(id, dir string) (*graph.Graph, error) {
	raw, err := c.readGraph(id, dir)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return graph.New(id, graph.DefaultInitial), nil
	}

	g, perr := graph.ParsePortable(raw)
	if perr != nil {
		c.logger.Warn("graph document malformed, reading leniently", "task", id, "error", perr)
		g = graph.FromPortable(raw)
	}
	g.SetID(id)
	return g, nil
}

// readGraph returns the stored graph document, or nil when there is none.
func (c *Catalog) readGraph(id, dir string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, GraphFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading graph for %q: %w", id, err)
	}
	return raw, nil
}

// SaveGraph writes the graph document, records it in the revision history
// and announces the update.
func (c *Catalog) SaveGraph(ctx context.Context, id string, g *graph.Graph) (persistence.Revision, error) {
	defer c.graphLocks.lock(id)()
	return c.saveGraph(ctx, id, g)
}

func (c *Catalog) saveGraph(ctx context.Context, id string, g *graph.Graph) (persistence.Revision, error) {
	g.SetID(id)
	doc, err := g.ToPortable()
	if err != nil {
		return persistence.Revision{}, err
	}
	if err := c.write(id, GraphFile, doc); err != nil {
		return persistence.Revision{}, err
	}

	rev := persistence.Revision{TaskID: id, StateCount: g.Len(), SavedAt: time.Now().UTC()}
	if c.history != nil {
		saved, err := c.history.SaveRevision(ctx, id, doc, g.Len(), graph.HasErrors(g.Validate()))
		if err != nil {
			// The document on disk is authoritative; history is best effort.
			c.logger.Warn("failed to record graph revision", "task", id, "error", err)
		} else {
			rev = saved
		}
	}
	c.publish(id, UpdatedGraph)
	return rev, nil
}

// SaveGraphDocument strictly parses a portable document and saves it.
func (c *Catalog) SaveGraphDocument(ctx context.Context, id string, doc []byte) (*graph.Graph, error) {
	g, err := graph.ParsePortable(doc)
	if err != nil {
		return nil, err
	}
	if _, err := c.SaveGraph(ctx, id, g); err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateGraph loads the graph, applies fn and saves the result. Nothing is
// written when fn fails or when the stored document does not parse
// strictly; the latter fails with ErrMalformedDocument so a lenient read
// never overwrites states it could not decode. Concurrent updates to the
// same task through one catalog are applied one at a time.
func (c *Catalog) UpdateGraph(ctx context.Context, id string, fn func(*graph.Graph) error) (*graph.Graph, error) {
	defer c.graphLocks.lock(id)()

	dir, err := c.existingDir(id)
	if err != nil {
		return nil, err
	}
	raw, err := c.readGraph(id, dir)
	if err != nil {
		return nil, err
	}
	g := graph.New(id, graph.DefaultInitial)
	if raw != nil {
		if g, err = graph.ParsePortable(raw); err != nil {
			return nil, fmt.Errorf("graph for %q: %w", id, err)
		}
		g.SetID(id)
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	if _, err := c.saveGraph(ctx, id, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Revisions lists the saved graph revisions of a task, newest first.
func (c *Catalog) Revisions(ctx context.Context, id string, limit int) ([]persistence.Revision, error) {
	if err := artifact.ValidateTaskID(id); err != nil {
		return nil, err
	}
	if c.history == nil {
		return []persistence.Revision{}, nil
	}
	return c.history.ListRevisions(ctx, id, limit)
}

func (c *Catalog) readConfig(id string) (map[string]any, error) {
	raw, err := os.ReadFile(filepath.Join(c.tasksDir, id, ConfigFile))
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedDocument, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is not an object", errs.ErrMalformedDocument)
	}
	return cfg, nil
}

func (c *Catalog) existingDir(id string) (string, error) {
	if err := artifact.ValidateTaskID(id); err != nil {
		return "", err
	}
	dir := filepath.Join(c.tasksDir, id)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", fmt.Errorf("task %q: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading task %q: %w", id, err)
	}
	return dir, nil
}

// write replaces one document in the task directory through a temp file and
// rename, so readers never observe a partial document.
func (c *Catalog) write(id, name string, data []byte) error {
	if err := artifact.ValidateTaskID(id); err != nil {
		return err
	}
	dir := filepath.Join(c.tasksDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (c *Catalog) publish(id, what string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.TaskUpdatedEvent{Task: id, What: what, Timestamp: time.Now().UTC()})
}
