// Package server exposes tasks, graphs, runs and artifacts over HTTP and
// pushes bus events to websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/artifact"
	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/persistence"
	"github.com/AnEntrypoint/sequential-gui/internal/runner"
	"github.com/AnEntrypoint/sequential-gui/internal/runs"
	"github.com/AnEntrypoint/sequential-gui/internal/tasks"
)

// Deps are the components the server routes requests to. History may be nil.
type Deps struct {
	Tasks     *tasks.Catalog
	Runs      *runs.Registry
	Artifacts *artifact.Store
	Invoker   *runner.Invoker
	History   persistence.Store
	Bus       *events.Bus
	Logger    *slog.Logger
}

// Server is the HTTP and websocket surface.
type Server struct {
	tasks     *tasks.Catalog
	runs      *runs.Registry
	artifacts *artifact.Store
	invoker   *runner.Invoker
	history   persistence.Store
	hub       *Hub
	logger    *slog.Logger

	// background tracks async runs so shutdown can wait for them to publish
	// their final event.
	background sync.WaitGroup
}

// New creates a server.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := d.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	return &Server{
		tasks:     d.Tasks,
		runs:      d.Runs,
		artifacts: d.Artifacts,
		invoker:   d.Invoker,
		history:   d.History,
		hub:       NewHub(bus, logger),
		logger:    logger,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{taskId}", s.handleGetTask)
	mux.HandleFunc("PUT /api/tasks/{taskId}/code", s.handleSaveCode)
	mux.HandleFunc("PUT /api/tasks/{taskId}/config", s.handleSaveConfig)
	mux.HandleFunc("PUT /api/tasks/{taskId}/graph", s.handleSaveGraph)

	mux.HandleFunc("GET /api/tasks/{taskId}/graph", s.handleGetGraph)
	mux.HandleFunc("GET /api/tasks/{taskId}/graph/validate", s.handleValidateGraph)
	mux.HandleFunc("GET /api/tasks/{taskId}/graph/layout", s.handleGraphLayout)
	mux.HandleFunc("GET /api/tasks/{taskId}/graph/svg", s.handleGraphSVG)
	mux.HandleFunc("GET /api/tasks/{taskId}/graph/revisions", s.handleListRevisions)
	mux.HandleFunc("GET /api/tasks/{taskId}/graph/revisions/{seq}", s.handleGetRevision)
	mux.HandleFunc("POST /api/tasks/{taskId}/graph/states", s.handleAddState)
	mux.HandleFunc("PATCH /api/tasks/{taskId}/graph/states/{name}", s.handleSetField)
	mux.HandleFunc("DELETE /api/tasks/{taskId}/graph/states/{name}", s.handleDeleteState)
	mux.HandleFunc("PUT /api/tasks/{taskId}/graph/initial", s.handleSetInitial)

	mux.HandleFunc("GET /api/tasks/{taskId}/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/tasks/{taskId}/runs/{runId}", s.handleGetRun)
	mux.HandleFunc("POST /api/tasks/{taskId}/run", s.handleRunTask)
	mux.HandleFunc("GET /api/runs", s.handleListAllRuns)
	mux.HandleFunc("GET /api/runs/stats", s.handleRunStats)
	mux.HandleFunc("GET /api/invocations", s.handleListInvocations)

	mux.HandleFunc("GET /api/vfs/tasks/{taskId}/{scope}", s.handleVFSGet)
	mux.HandleFunc("GET /api/vfs/tasks/{taskId}/{scope}/{path...}", s.handleVFSGet)
	mux.HandleFunc("POST /api/vfs/tasks/{taskId}/{scope}/{path...}", s.handleVFSWrite)
	mux.HandleFunc("DELETE /api/vfs/tasks/{taskId}/{scope}/{path...}", s.handleVFSDelete)

	mux.Handle("GET /ws", s.hub)

	return cors(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, closing websocket clients and waiting for async runs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.waitBackground(shutdownCtx)
	s.logger.Info("server stopped")
	return nil
}

// goBackground runs fn detached from any request.
func (s *Server) goBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

// waitBackground blocks until background work finishes or ctx expires.
func (s *Server) waitBackground(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown with runs still in flight")
	}
}
