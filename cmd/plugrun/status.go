// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plugrun/plugrun/internal/plugin/discovery"
	"github.com/plugrun/plugrun/internal/plugin/manifest"
	"github.com/plugrun/plugrun/internal/plugin/resolver"
	"github.com/plugrun/plugrun/internal/plugin/validator"
	"github.com/plugrun/plugrun/internal/xdg"
)

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report discovery, validation, and resolution status",
		Long: `Scan the configured plugin directories and report what would happen
on a run: validation verdicts per candidate and the resolved load order,
including conflicts, cycles, and missing dependencies.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			scanner := discovery.NewScanner(cfg.PluginDirs...)
			result := scanner.Scan()
			v := validator.New()

			cmd.Printf("scanned %d directories, found %d candidates\n",
				len(result.ScanSources), len(result.Plugins))
			for _, derr := range result.Errors {
				cmd.Printf("  skipped %s: %v\n", derr.Path, derr.Err)
			}

			res := resolver.New()
			for _, cand := range result.Plugins {
				d := cand.Descriptor

				var vres validator.Result
				switch {
				case cand.Source == discovery.SourceGoUnit:
					vres = v.Validate(cand.Path)
				case d.EntryKind() == manifest.EntryNative:
					vres = v.ValidateLinked(cand.Dir)
				default:
					vres = v.Validate(cand.Dir)
				}

				verdict := "ok"
				if !vres.Valid || vres.Score < cfg.MinScore {
					verdict = "rejected"
				}
				cmd.Printf("  %s %s: score %d, %s\n", d.Name, d.Version, vres.Score, verdict)

				res.Add(resolver.Node{
					Name:                 d.Name,
					Version:              d.Version,
					Dependencies:         d.Dependencies,
					OptionalDependencies: d.OptionalDependencies,
					Conflicts:            d.Conflicts,
				})
			}

			resolution := res.Resolve()
			cmd.Printf("resolution: %s\n", resolution.Status)
			if len(resolution.LoadOrder) > 0 {
				cmd.Printf("load order: %s\n", strings.Join(resolution.LoadOrder, " -> "))
			}
			if len(resolution.Missing) > 0 {
				cmd.Printf("missing dependencies: %s\n", strings.Join(resolution.Missing, ", "))
			}
			for _, cycle := range resolution.Circular {
				cmd.Printf("cycle: %s\n", strings.Join(cycle, " -> "))
			}
			for _, conflict := range resolution.Conflicts {
				cmd.Printf("conflict: %s conflicts with %s\n", conflict.Name, conflict.ConflictsWith)
			}

			if resolution.Status == resolver.StatusConflict {
				return fmt.Errorf("conflicting plugins present")
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("plugin-dirs", []string{xdg.PluginsDir()}, "plugin directories to scan")
	cmd.Flags().Int("min-score", defaultMinScore, "minimum validation score for loading")
	return cmd
}
