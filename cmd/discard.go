package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete the attempt in progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()
		active, err := e.sessions.FindActive(ctx, e.cfg.Owner)
		if err != nil {
			return fmt.Errorf("find active session: %w", err)
		}
		if active == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No session in progress.")
			return nil
		}
		if err := e.sessions.Delete(ctx, active.SessionID); err != nil {
			return fmt.Errorf("discard session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Discarded session %s.\n", active.SessionID)
		return nil
	},
}
