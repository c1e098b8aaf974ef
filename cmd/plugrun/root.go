package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the plugrun CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugrun",
		Short: "Plugrun - an embeddable plugin runtime",
		Long: `Plugrun discovers, validates, and runs plugins from descriptor
directories. Plugins are sandboxed Lua scripts or statically-linked
Go units, loaded in dependency order and wired to the host's hooks.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewGenSchemaCmd())

	return cmd
}
