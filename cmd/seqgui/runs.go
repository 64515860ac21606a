package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/runner"
	"github.com/AnEntrypoint/sequential-gui/internal/runs"
)

func newRunsCommand(a *app) *cobra.Command {
	var (
		limit  int
		status string
		search string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs [taskId]",
		Short: "List run records, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := runs.NewRegistry(a.cfg.EcosystemPath, a.logger)
			if err != nil {
				return fail(cmd, err)
			}

			var list []runs.Run
			if len(args) == 1 {
				list, err = registry.ListRuns(args[0])
				if err == nil && limit > 0 && len(list) > limit {
					list = list[:limit]
				}
			} else {
				list, err = registry.ListAllRuns(limit)
			}
			if err != nil {
				return fail(cmd, err)
			}
			list = runs.Filter(list, runs.Query{Status: runs.Status(status), Search: search})

			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"runs":  list,
					"stats": runs.Summarize(list),
				})
			}
			printRuns(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", runs.DefaultLimit, "maximum runs to list")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (pending, in_progress, completed, failed)")
	cmd.Flags().StringVar(&search, "search", "", "substring of task id or run id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printRuns(w io.Writer, list []runs.Run) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No runs.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tRUN\tSTATUS\tSTARTED\tDURATION")
	for _, r := range list {
		duration := "-"
		if d, ok := r.Duration(); ok {
			duration = d.Round(time.Millisecond).String()
		}
		started := "-"
		if !r.StartedAt.IsZero() {
			started = r.StartedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.TaskID, r.ID, r.Status, started, duration)
	}
	tw.Flush()

	s := runs.Summarize(list)
	fmt.Fprintf(w, "\n%d runs: %d completed, %d failed, %d pending\n", s.Total, s.Completed, s.Failed, s.Pending)
}

func newRunCommand(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run <taskId>",
		Short: "Invoke the external runner for a task and stream its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fail(cmd, err)
			}
			defer e.Close()

			sub := e.bus.Subscribe(events.TopicLog, 1024)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range sub.Events() {
					logEv, ok := ev.(events.LogEvent)
					if !ok {
						continue
					}
					w := cmd.OutOrStdout()
					if logEv.Stream == runner.StreamStderr {
						w = cmd.ErrOrStderr()
					}
					io.WriteString(w, logEv.Data)
				}
			}()

			res, runErr := e.invoker.Run(cmd.Context(), args[0], json.RawMessage(strings.TrimSpace(input)))
			sub.Close()
			wg.Wait()
			if n := sub.Dropped(); n > 0 {
				a.logger.Warn("output chunks dropped while streaming", "dropped", n)
			}

			if runErr != nil {
				var exitErr *runner.ExitError
				if errors.As(runErr, &exitErr) {
					return fail(cmd, fmt.Errorf("task %s failed (exit %d)", args[0], exitErr.Code))
				}
				return fail(cmd, runErr)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Task %s completed in %v (invocation %s)\n",
				res.TaskID, res.Duration.Round(time.Millisecond), res.InvocationID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON input passed to the task (default {})")
	return cmd
}
