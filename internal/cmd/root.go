package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for foreman
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Task execution engine for autonomous code changes",
		Long: `Foreman plans and executes code-change tasks as dependency-ordered
step graphs, with pre-mutation snapshots, fact tracking, and bounded
error-feedback recovery.

Plan files are markdown documents with one "## Step:" section per step;
foreman validates them, executes them, and can roll back what it changed.`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", ".foreman/config.yaml", "path to config file")

	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewSnapshotsCommand())

	return cmd
}
