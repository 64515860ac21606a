package tasks

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AnEntrypoint/sequential-gui/internal/graph"
)

// DefaultCheckConcurrency bounds CheckAll when no limit is given.
const DefaultCheckConcurrency = 4

// CheckResult is the validation outcome for one task graph.
type CheckResult struct {
	TaskID      string             `json:"taskId"`
	Valid       bool               `json:"valid"`
	StateCount  int                `json:"stateCount"`
	Diagnostics []graph.Diagnostic `json:"diagnostics"`
	Error       string             `json:"error,omitempty"` // graph could not be loaded
}

// CheckAll validates every task's graph with at most limit loads in flight.
// A task whose graph cannot be read is reported in its result rather than
// aborting the sweep; only cancellation returns an error. Results are
// sorted by task id.
func (c *Catalog) CheckAll(ctx context.Context, limit int) ([]CheckResult, error) {
	if limit <= 0 {
		limit = DefaultCheckConcurrency
	}

	list, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results = make([]CheckResult, 0, len(list))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, summary := range list {
		id := summary.ID()
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := CheckResult{TaskID: id, Diagnostics: []graph.Diagnostic{}}
			gr, err := c.LoadGraph(gctx, id)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Diagnostics = gr.Validate()
				res.Valid = !graph.HasErrors(res.Diagnostics)
				res.StateCount = gr.Len()
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].TaskID < results[j].TaskID })
	return results, nil
}
