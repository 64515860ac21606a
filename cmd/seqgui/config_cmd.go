package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AnEntrypoint/sequential-gui/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or persist the effective configuration",
	}
	cmd.AddCommand(newConfigShowCommand(a))
	cmd.AddCommand(newConfigSaveCommand(a))
	return cmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			shown := *a.cfg
			if shown.Artifacts.S3.SecretKey != "" {
				shown.Artifacts.S3.SecretKey = "********"
			}
			return printJSON(cmd.OutOrStdout(), shown)
		},
	}
}

func newConfigSaveCommand(a *app) *cobra.Command {
	var (
		global bool
		path   string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to the project (or global) config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := path
			if target == "" {
				target = config.ProjectPath()
				if global {
					p, err := config.GlobalPath()
					if err != nil {
						return fail(cmd, err)
					}
					target = p
				}
			}
			if err := config.Save(a.cfg, target); err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved config to %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "write ~/.seqgui/config.json instead of .seqgui/config.json")
	cmd.Flags().StringVar(&path, "path", "", "write to an explicit path")
	return cmd
}
