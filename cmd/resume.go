package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the attempt in progress",
	Long: `Resume the attempt in progress for the current owner.

The local copy and the record service are reconciled first: an attempt
finished on another machine is not resumed, and when the two disagree the
record service wins.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd, nil)
		if err != nil {
			return err
		}
		defer e.Close()

		b, err := e.loadBank()
		if err != nil {
			return err
		}

		active, err := e.sessions.FindActive(cmd.Context(), e.cfg.Owner)
		if err != nil {
			return fmt.Errorf("find active session: %w", err)
		}
		if active == nil {
			fmt.Println("No session in progress. Start one with `examdrill drill`.")
			return nil
		}
		if active.Session == nil {
			return fmt.Errorf("session %s is in progress but no readable copy was found", active.SessionID)
		}
		return e.resume(b, active.Session)
	},
}
