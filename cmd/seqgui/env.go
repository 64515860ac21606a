package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AnEntrypoint/sequential-gui/internal/artifact"
	"github.com/AnEntrypoint/sequential-gui/internal/config"
	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/persistence"
	"github.com/AnEntrypoint/sequential-gui/internal/runner"
	"github.com/AnEntrypoint/sequential-gui/internal/runs"
	"github.com/AnEntrypoint/sequential-gui/internal/tasks"
)

// env is the set of components a command works with, all sharing one bus.
type env struct {
	bus       *events.Bus
	history   *persistence.SQLiteStore
	tasks     *tasks.Catalog
	runs      *runs.Registry
	artifacts *artifact.Store
	procs     *runner.ProcessManager
	invoker   *runner.Invoker
	logger    *slog.Logger
}

// openEnv builds every component from cfg. Close releases them.
func openEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*env, error) {
	backend, err := newArtifactBackend(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := runs.NewRegistry(cfg.EcosystemPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening run registry: %w", err)
	}

	history, err := persistence.NewSQLiteStore(ctx, cfg.ResolvedHistoryPath())
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	bus := events.NewBus()
	procs := runner.NewProcessManager()
	runCfg := runner.DefaultConfig()
	runCfg.Command = cfg.Runner.Command
	runCfg.Args = cfg.Runner.Args
	runCfg.Dir = cfg.EcosystemPath

	return &env{
		bus:       bus,
		history:   history,
		tasks:     tasks.NewCatalog(cfg.EcosystemPath, history, bus, logger),
		runs:      registry,
		artifacts: artifact.NewStore(backend, bus, logger),
		procs:     procs,
		invoker:   runner.NewInvoker(runCfg, bus, history, procs, logger),
		logger:    logger,
	}, nil
}

// Close kills leftover runner processes, then closes the bus and history.
func (e *env) Close() error {
	var errList []error
	if err := e.procs.KillAll(); err != nil {
		errList = append(errList, fmt.Errorf("killing runner processes: %w", err))
	}
	e.bus.Close()
	if err := e.history.Close(); err != nil {
		errList = append(errList, fmt.Errorf("closing history: %w", err))
	}
	return errors.Join(errList...)
}

// newArtifactBackend selects disk or S3 storage per config.
func newArtifactBackend(cfg *config.Config) (artifact.Backend, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendS3:
		s3 := cfg.Artifacts.S3
		b, err := artifact.NewS3Backend(artifact.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring s3 artifacts: %w", err)
		}
		return b, nil
	default:
		b, err := artifact.NewDiskBackend(cfg.EcosystemPath)
		if err != nil {
			return nil, fmt.Errorf("configuring disk artifacts: %w", err)
		}
		return b, nil
	}
}
