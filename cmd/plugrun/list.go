// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plugrun/plugrun/internal/plugin/discovery"
	"github.com/plugrun/plugrun/internal/xdg"
)

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Long:  `Scan the configured plugin directories and list every discovered candidate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			scanner := discovery.NewScanner(cfg.PluginDirs...)
			result := scanner.Scan()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tCATEGORY\tENTRY\tENABLED")
			for _, cand := range result.Plugins {
				d := cand.Descriptor
				if category != "" && string(d.Category) != category {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
					d.Name, d.Version, d.Category, d.Entry, d.Enabled)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to write listing: %w", err)
			}

			for _, derr := range result.Errors {
				cmd.PrintErrf("warning: %s: %v\n", derr.Path, derr.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("plugin-dirs", []string{xdg.PluginsDir()}, "plugin directories to scan")
	cmd.Flags().StringVar(&category, "category", "", "only list plugins in this category")
	return cmd
}
