// Command seqgui serves and inspects a sequential-ecosystem directory: task
// graphs, run records, artifacts and live runner output.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AnEntrypoint/sequential-gui/internal/config"
)

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	// Flag values; empty means "keep the loaded value".
	ecosystem string
	logLevel  string
	logFormat string

	// loadConfig is swapped out in tests.
	loadConfig func() (*config.Config, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&app{loadConfig: config.LoadDefault}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "seqgui",
		Short:         "Workflow graph editor and run monitor for sequential-ecosystem",
		Long:          "seqgui edits task state graphs, browses run records and artifacts, and streams runner output.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.ecosystem, "ecosystem", "e", "", "ecosystem root directory (overrides ECOSYSTEM_PATH)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newServeCommand(a))
	root.AddCommand(newWatchCommand(a))
	root.AddCommand(newGraphCommand(a))
	root.AddCommand(newRunsCommand(a))
	root.AddCommand(newRunCommand(a))
	root.AddCommand(newConfigCommand(a))

	return root
}

// init loads configuration, applies global flags and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error loading config: %v\n", err)
		return err
	}
	if a.ecosystem != "" {
		cfg.EcosystemPath = a.ecosystem
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Invalid config: %v\n", err)
		return err
	}

	a.cfg = cfg
	a.logger = newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	return nil
}

// fail prints err the way every subcommand reports failures and returns it
// for cobra's exit status.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return err
}
