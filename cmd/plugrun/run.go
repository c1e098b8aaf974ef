// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/plugrun/plugrun/internal/logging"
	"github.com/plugrun/plugrun/internal/observability"
	"github.com/plugrun/plugrun/internal/plugin"
	"github.com/plugrun/plugrun/internal/plugin/luahost"
	"github.com/plugrun/plugrun/internal/xdg"
	"github.com/plugrun/plugrun/pkg/errutil"
)

// shutdownTimeout bounds graceful teardown of plugins and servers.
const shutdownTimeout = 10 * time.Second

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, load, and run plugins",
		Long: `Discover plugins under the configured directories, validate and
resolve them, then load them in dependency order and serve hook
emissions until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runRuntime(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringSlice("plugin-dirs", []string{xdg.PluginsDir()}, "plugin directories to scan")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().Int("min-score", defaultMinScore, "minimum validation score for loading")

	return cmd
}

func runRuntime(ctx context.Context, cfg *runtimeConfig) error {
	logging.SetDefault("plugrun", version, cfg.LogFormat)

	slog.Info("starting plugin runtime",
		"plugin_dirs", cfg.PluginDirs,
		"min_score", cfg.MinScore,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		obsServer *observability.Server
		metrics   *observability.Metrics
		ready     atomic.Bool
	)
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, ready.Load)
		if _, err := obsServer.Start(); err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		metrics = obsServer.Metrics()
	}

	mgr := plugin.NewManager(cfg.PluginDirs,
		plugin.WithMinScore(cfg.MinScore),
		plugin.WithMetrics(metrics),
		plugin.WithLoader(plugin.NewLoader(
			plugin.WithScriptHost(luahost.New()),
			plugin.WithRoots(cfg.PluginDirs...),
		)),
	)

	resolution, err := mgr.LoadAll(ctx)
	if err != nil {
		errutil.LogError(slog.Default(), "plugin resolution failed", err)
		return err
	}

	status := mgr.GetSystemStatus()
	slog.Info("plugin runtime ready",
		"loaded", status.Loaded,
		"registered", status.Registered,
		"missing_dependencies", resolution.Missing,
	)
	ready.Store(true)

	<-ctx.Done()
	slog.Info("shutting down")
	ready.Store(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	mgr.Cleanup(shutdownCtx)

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogWarn(slog.Default(), "observability server shutdown failed", err)
		}
	}

	slog.Info("plugin runtime stopped")
	return nil
}
