package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AnEntrypoint/sequential-gui/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and websocket push channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :3001)")
	return cmd
}

// runServe serves until ctx is cancelled. On shutdown, runner processes
// still in flight are killed before the history database is closed.
func runServe(ctx context.Context, a *app) error {
	e, err := openEnv(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			a.logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	srv := server.New(server.Deps{
		Tasks:     e.tasks,
		Runs:      e.runs,
		Artifacts: e.artifacts,
		Invoker:   e.invoker,
		History:   e.history,
		Bus:       e.bus,
		Logger:    a.logger,
	})

	a.logger.Info("starting", "ecosystem", a.cfg.EcosystemPath, "addr", a.cfg.Addr, "artifacts", a.cfg.Artifacts.Backend)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, a.cfg.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		if n := e.procs.Count(); n > 0 {
			a.logger.Info("stopping runner processes", "count", n)
			if err := e.procs.KillAll(); err != nil {
				a.logger.Warn("failed to stop runner processes", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}
