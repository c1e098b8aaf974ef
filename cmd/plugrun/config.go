// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

package main

import (
	"fmt"
	"os"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/plugrun/plugrun/internal/xdg"
)

// runtimeConfig holds the resolved configuration for the run command.
// Precedence: flags over config file over defaults.
type runtimeConfig struct {
	PluginDirs  []string `koanf:"plugin-dirs"`
	MetricsAddr string   `koanf:"metrics-addr"`
	LogFormat   string   `koanf:"log-format"`
	MinScore    int      `koanf:"min-score"`
}

// Default values for run command flags.
const (
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
	defaultMinScore    = 60
)

// Validate checks that the configuration is usable.
func (cfg *runtimeConfig) Validate() error {
	if len(cfg.PluginDirs) == 0 {
		return fmt.Errorf("at least one plugin directory is required")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	if cfg.MinScore < 0 || cfg.MinScore > 100 {
		return fmt.Errorf("min-score must be between 0 and 100, got %d", cfg.MinScore)
	}
	return nil
}

// loadConfig layers the config file (if any) and command-line flags
// over the built-in defaults.
func loadConfig(path string, flags *pflag.FlagSet) (*runtimeConfig, error) {
	cfg := &runtimeConfig{
		PluginDirs:  []string{xdg.PluginsDir()},
		MetricsAddr: defaultMetricsAddr,
		LogFormat:   defaultLogFormat,
		MinScore:    defaultMinScore,
	}

	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
