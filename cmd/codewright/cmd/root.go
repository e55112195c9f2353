// Package cmd provides the CLI commands for Codewright.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codewright/codewright/pkg/version"
)

// NewRootCmd creates the root command for the codewright CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "codewright",
		Short:   "Code-aware retrieval engine for AI coding agents",
		Long: `Codewright indexes a codebase into chunks, embeds and lexically indexes
them, and serves hybrid BM25 + semantic retrieval for coding agents and
editors.

Run 'codewright build' in a project directory to get started.`,
		Version: version.Version,
	}

	cmd.AddCommand(
		newBuildCmd(),
		newUpdateCmd(),
		newWatchCmd(),
		newSearchCmd(),
		newContextCmd(),
		newExpandCmd(),
		newShadowCmd(),
		newSetupCmd(),
		newStatusCmd(),
		newDoctorCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
