package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/snapshot"
)

// NewSnapshotsCommand creates the snapshots subcommand group
func NewSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect and roll back file snapshots",
	}

	cmd.AddCommand(newSnapshotsListCommand())
	cmd.AddCommand(newSnapshotsRollbackCommand())

	return cmd
}

func openSnapshotStore(cmd *cobra.Command) (*snapshot.Store, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return snapshot.NewStore(cfg.SnapshotDir)
}

func newSnapshotsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSnapshotStore(cmd)
			if err != nil {
				return err
			}

			snaps := store.List()
			if len(snaps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshots recorded")
				return nil
			}
			for _, snap := range snaps {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-6s  %s\n",
					snap.ID, snap.Timestamp.Format("2006-01-02 15:04:05"), snap.Operation, snap.FilePath)
			}
			return nil
		},
		SilenceUsage: true,
	}
}

func newSnapshotsRollbackCommand() *cobra.Command {
	var byPath bool

	cmd := &cobra.Command{
		Use:   "rollback <snapshot-id-or-path>",
		Short: "Restore a file to its pre-snapshot state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSnapshotStore(cmd)
			if err != nil {
				return err
			}

			var result snapshot.Result
			if byPath {
				result = store.RollbackFile(args[0])
			} else {
				result = store.Rollback(args[0])
			}

			if !result.Success {
				return fmt.Errorf("rollback failed: %s", result.Message)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), result.Message)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.Flags().BoolVar(&byPath, "path", false, "treat the argument as a file path and roll back its most recent snapshot")
	return cmd
}
