package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AnEntrypoint/sequential-gui/internal/graph"
	"github.com/AnEntrypoint/sequential-gui/internal/layout"
	"github.com/AnEntrypoint/sequential-gui/internal/tasks"
)

func newGraphCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect and import task state graphs",
	}
	cmd.AddCommand(newGraphValidateCommand(a))
	cmd.AddCommand(newGraphLayoutCommand(a))
	cmd.AddCommand(newGraphSVGCommand(a))
	cmd.AddCommand(newGraphImportCommand(a))
	return cmd
}

func newGraphValidateCommand(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "validate [taskId]",
		Short: "Validate one task graph, or every task when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fail(cmd, err)
			}
			defer e.Close()

			var results []tasks.CheckResult
			if len(args) == 1 {
				g, err := e.tasks.LoadGraph(cmd.Context(), args[0])
				if err != nil {
					return fail(cmd, err)
				}
				diags := g.Validate()
				results = []tasks.CheckResult{{
					TaskID:      args[0],
					Valid:       !graph.HasErrors(diags),
					StateCount:  g.Len(),
					Diagnostics: diags,
				}}
			} else {
				results, err = e.tasks.CheckAll(cmd.Context(), concurrency)
				if err != nil {
					return fail(cmd, err)
				}
			}

			invalid := printCheckResults(cmd.OutOrStdout(), results)
			if invalid > 0 {
				return fail(cmd, fmt.Errorf("%d of %d graphs invalid", invalid, len(results)))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", tasks.DefaultCheckConcurrency, "graphs validated in parallel")
	return cmd
}

// printCheckResults writes one line per task plus its diagnostics and
// returns how many graphs are invalid.
func printCheckResults(w io.Writer, results []tasks.CheckResult) int {
	invalid := 0
	for _, r := range results {
		switch {
		case r.Error != "":
			invalid++
			fmt.Fprintf(w, "✗ %s: %s\n", r.TaskID, r.Error)
			continue
		case r.Valid:
			fmt.Fprintf(w, "✓ %s (%d states)\n", r.TaskID, r.StateCount)
		default:
			invalid++
			fmt.Fprintf(w, "✗ %s (%d states)\n", r.TaskID, r.StateCount)
		}
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "    %-7s %s: %s\n", d.Severity, d.Code, d.Detail)
		}
	}
	return invalid
}

func newGraphLayoutCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "layout <taskId>",
		Short: "Draw a task graph in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fail(cmd, err)
			}
			defer e.Close()

			g, err := e.tasks.LoadGraph(cmd.Context(), args[0])
			if err != nil {
				return fail(cmd, err)
			}
			d := layout.Compute(g)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			fmt.Fprint(cmd.OutOrStdout(), layout.RenderTerminal(d))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print box coordinates as JSON")
	return cmd
}

func newGraphSVGCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "svg <taskId>",
		Short: "Render a task graph as SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fail(cmd, err)
			}
			defer e.Close()

			g, err := e.tasks.LoadGraph(cmd.Context(), args[0])
			if err != nil {
				return fail(cmd, err)
			}
			svg := layout.RenderSVG(layout.Compute(g))
			if output == "" || output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), svg)
				return nil
			}
			if err := os.WriteFile(output, []byte(svg), 0644); err != nil {
				return fail(cmd, fmt.Errorf("writing %s: %w", output, err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newGraphImportCommand(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <taskId> <file.hcl>",
		Short: "Replace a task graph with one authored in HCL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, path := args[0], args[1]
			src, err := os.ReadFile(path)
			if err != nil {
				return fail(cmd, fmt.Errorf("reading %s: %w", path, err))
			}
			g, err := graph.ParseHCL(taskID, filepath.Base(path), src)
			if err != nil {
				return fail(cmd, err)
			}

			diags := g.Validate()
			printCheckResults(cmd.OutOrStdout(), []tasks.CheckResult{{
				TaskID:      taskID,
				Valid:       !graph.HasErrors(diags),
				StateCount:  g.Len(),
				Diagnostics: diags,
			}})
			if dryRun {
				return nil
			}

			e, err := openEnv(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return fail(cmd, err)
			}
			defer e.Close()

			rev, err := e.tasks.SaveGraph(cmd.Context(), taskID, g)
			if err != nil {
				return fail(cmd, err)
			}
			if rev.Seq > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s revision %d\n", taskID, rev.Seq)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", taskID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without saving")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
