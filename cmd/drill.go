package cmd

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/examdrill/internal/app"
	"github.com/abhisek/examdrill/internal/bank"
	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/diagnosis"
	sched "github.com/abhisek/examdrill/internal/drill"
	drillscreen "github.com/abhisek/examdrill/internal/screens/drill"
	"github.com/abhisek/examdrill/internal/session"
)

// errSessionInProgress is returned when starting while another attempt is open.
var errSessionInProgress = errors.New("a session is already in progress")

var drillCmd = &cobra.Command{
	Use:   "drill",
	Short: "Start a new practice attempt",
	Long: `Start a new attempt at the question bank.

--kind paper sits the bank as a timed past paper, section by section.
--kind drill serves questions adaptively, favouring ones recently answered
wrong or slowly, under a single time budget.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		budget, _ := cmd.Flags().GetInt("budget")

		k := session.Kind(kind)
		if k != session.KindPaper && k != session.KindDrill {
			return fmt.Errorf("unknown kind %q: want paper or drill", kind)
		}

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
		if active != nil {
			return fmt.Errorf("%w (%s): run `examdrill resume` or `examdrill discard`",
				errSessionInProgress, active.SessionID)
		}

		if budget <= 0 {
			budget = e.cfg.DrillBudgetSec
		}
		return e.startNew(b, k, budget)
	},
}

func init() {
	drillCmd.Flags().String("kind", string(session.KindPaper), "Attempt kind: paper or drill")
	drillCmd.Flags().Int("budget", 0, "Drill time budget in seconds (default from config)")
}

// runStartOrResume resumes the attempt in progress, or starts a new paper.
func runStartOrResume(cmd *cobra.Command) error {
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
	if active != nil {
		if active.Session == nil {
			return fmt.Errorf("session %s is in progress but no readable copy was found", active.SessionID)
		}
		return e.resume(b, active.Session)
	}
	return e.startNew(b, session.KindPaper, e.cfg.DrillBudgetSec)
}

func (e *env) startNew(b *bank.Bank, kind session.Kind, budgetSec int) error {
	params := b.StartParams(uuid.NewString(), e.cfg.Owner, kind, budgetSec)
	sess, err := session.Start(params, clock.Real{})
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return app.Run(drillscreen.New(e.screenDeps(b), sess))
}

func (e *env) resume(b *bank.Bank, sess *session.PracticeSession) error {
	if err := checkBankCovers(b, sess); err != nil {
		return err
	}
	if sess.State() == session.StatePaused {
		if err := sess.Resume(); err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "Resuming %s (%d of %d answered)\n",
		b.Name, sess.Summary().Answered, len(sess.QuestionOrder))
	return app.Run(drillscreen.New(e.screenDeps(b), sess))
}

func (e *env) screenDeps(b *bank.Bank) drillscreen.Deps {
	slow := time.Duration(e.cfg.Weights.SlowThresholdSec * float64(time.Second))
	now := uint64(time.Now().UnixNano())
	return drillscreen.Deps{
		Store:     e.sessions,
		Bank:      b,
		Scheduler: sched.NewScheduler(e.cfg.Weights),
		Diagnosis: diagnosis.NewService(slow, e.log),
		Clock:     clock.Real{},
		Rand:      rand.New(rand.NewPCG(now, now>>32)),
		Log:       e.log,
	}
}

// checkBankCovers reports a session that was started from a different bank.
func checkBankCovers(b *bank.Bank, sess *session.PracticeSession) error {
	for _, id := range sess.QuestionOrder {
		if _, ok := b.Question(id); !ok {
			return fmt.Errorf("session %s was started from %q, which is not the loaded bank %q (missing question %q)",
				sess.SessionID, sess.ExamMeta.Name, b.Name, id)
		}
	}
	return nil
}
