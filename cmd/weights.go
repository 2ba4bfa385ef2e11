package cmd

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	sched "github.com/abhisek/examdrill/internal/drill"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/ui/theme"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Show how likely each question is to be served next in a drill",
	Long: `Print the scheduler weight of every question in the bank.

If a drill is in progress its answer history is replayed first, so the
table shows the odds for that drill's next question.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer e.Close()

		b, err := e.loadBank()
		if err != nil {
			return err
		}

		pool := b.Pool()
		active, err := e.sessions.FindActive(cmd.Context(), e.cfg.Owner)
		if err != nil {
			return fmt.Errorf("find active session: %w", err)
		}
		if active != nil && active.Session != nil && active.Session.Kind == session.KindDrill {
			if err := checkBankCovers(b, active.Session); err != nil {
				return err
			}
			pool = b.ReplayPool(active.Session)
			fmt.Fprintf(cmd.OutOrStdout(), "Drill %s in progress\n", active.SessionID)
		}

		s := sched.NewScheduler(e.cfg.Weights)
		fmt.Fprintln(cmd.OutOrStdout(), weightsTable(s.ExplainWeights(pool, time.Now())))
		return nil
	},
}

// weightsTable renders items heaviest first with their share of the total.
func weightsTable(items []sched.WeightedItem) string {
	items = slices.Clone(items)
	slices.SortStableFunc(items, func(a, b sched.WeightedItem) int {
		return cmp.Compare(b.Weight, a.Weight)
	})

	var total float64
	for _, wi := range items {
		total += wi.Weight
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Border)).
		Headers("Question", "Last outcome", "Last time", "Weight", "Share").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.TableHeader
			}
			return theme.TableCell
		})
	for _, wi := range items {
		share := 0.0
		if total > 0 {
			share = wi.Weight / total
		}
		lastTime := "-"
		if wi.Item.LastTimeSec > 0 {
			lastTime = fmt.Sprintf("%.0fs", wi.Item.LastTimeSec)
		}
		t.Row(
			wi.Item.ID,
			string(wi.Item.LastOutcome),
			lastTime,
			fmt.Sprintf("%.3f", wi.Weight),
			fmt.Sprintf("%.1f%%", share*100),
		)
	}
	return t.Render()
}
