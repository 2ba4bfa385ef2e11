package drill

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/ui/components"
	"github.com/abhisek/examdrill/internal/ui/theme"
)

// Status renders the section clock for the header.
func (s *Screen) Status() string {
	sec := s.sess.CurrentSectionIndex
	remaining := s.sess.RemainingSectionTime(sec)
	bar := components.TimeBar{Remaining: remaining, Budget: s.sess.ExamMeta.Budget(sec)}
	clock := theme.TimerStyle(bar.Share()).Render(components.FormatClock(remaining))
	if s.sess.State() == session.StatePaused {
		return theme.Paused.Render("PAUSED") + " " + clock
	}
	return clock
}

func (s *Screen) View(width, height int) string {
	switch {
	case s.phase == phaseConfirmQuit:
		return renderQuitConfirm(width, height)
	case s.phase == phaseDone:
		return centered(width, theme.Hint.Render("Wrapping up..."))
	case s.sess.State() == session.StatePaused:
		return s.renderPaused(width, height)
	case s.phase == phaseFeedback:
		return s.renderFeedback(width)
	}
	return s.renderQuestion(width)
}

func (s *Screen) renderQuestion(width int) string {
	var b strings.Builder

	b.WriteString(s.renderInfoLine(width))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", max(width-4, 0))))
	b.WriteString("\n\n")

	prompt := lipgloss.NewStyle().
		Width(min(width-8, 80)).
		Foreground(theme.Text).
		Bold(true).
		Render(s.question.Prompt)
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, prompt))
	b.WriteString("\n\n")

	if s.mcActive {
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, s.choices.View()))
	} else {
		b.WriteString(centered(width, "Answer: "+s.input.View()))
	}
	b.WriteString("\n\n")

	if s.guessed {
		b.WriteString(centered(width, theme.Warning.Render("Marked as a guess")))
		b.WriteString("\n")
	}
	if s.warning != "" {
		b.WriteString(centered(width, theme.Incorrect.Render(s.warning)))
	}
	return b.String()
}

func (s *Screen) renderInfoLine(width int) string {
	sec := s.sess.CurrentSectionIndex
	left := lipgloss.NewStyle().
		Foreground(theme.Secondary).
		Bold(true).
		Render("  " + s.sess.ExamMeta.Sections[sec])

	sum := s.sess.Summary()
	var progress string
	if s.sess.Kind == session.KindDrill {
		progress = fmt.Sprintf("Answered %d  Correct %d", sum.Answered, sum.TotalCorrect)
	} else {
		progress = fmt.Sprintf("Q %d/%d  Correct %d", s.index+1, sum.TotalQuestions, sum.TotalCorrect)
	}
	right := lipgloss.NewStyle().Foreground(theme.TextDim).Render(progress)

	bar := components.TimeBar{
		Remaining: s.sess.RemainingSectionTime(sec),
		Budget:    s.sess.ExamMeta.Budget(sec),
		Width:     min(width/3, 40),
	}.View()

	gap := width - lipgloss.Width(left) - lipgloss.Width(bar) - lipgloss.Width(right) - 6
	if gap < 2 {
		return left + "  " + right
	}
	return left + strings.Repeat(" ", gap/2) + bar + strings.Repeat(" ", gap-gap/2) + right
}

func (s *Screen) renderFeedback(width int) string {
	var b strings.Builder
	b.WriteString("\n\n")

	if s.lastCorrect {
		b.WriteString(centered(width, theme.Correct.Render("Correct")))
	} else {
		b.WriteString(centered(width, theme.Incorrect.Render("Not quite")))
		b.WriteString("\n")
		b.WriteString(centered(width, lipgloss.NewStyle().Foreground(theme.TextDim).
			Render(fmt.Sprintf("Your answer: %s   Correct answer: %s", s.lastAnswer, s.question.Answer))))
	}
	b.WriteString("\n\n")

	if len(s.lastTags) > 0 {
		tags := make([]string, len(s.lastTags))
		for i, t := range s.lastTags {
			tags[i] = theme.Tag.Render(t)
		}
		b.WriteString(centered(width, strings.Join(tags, " ")))
		b.WriteString("\n\n")
	}

	if s.question.Explanation != "" {
		exp := lipgloss.NewStyle().
			Width(min(width-8, 70)).
			Foreground(theme.Text).
			Render(s.question.Explanation)
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, exp))
		b.WriteString("\n\n")
	}

	if s.warning != "" {
		b.WriteString(centered(width, theme.Incorrect.Render(s.warning)))
		b.WriteString("\n")
	}
	b.WriteString(centered(width, theme.Hint.Render("Press any key to continue")))
	return b.String()
}

func (s *Screen) renderPaused(width, height int) string {
	sec := s.sess.CurrentSectionIndex
	body := theme.Title.Render("Paused") + "\n\n" +
		theme.Body.Render(fmt.Sprintf("%s: %s left",
			s.sess.ExamMeta.Sections[sec],
			components.FormatClock(s.sess.RemainingSectionTime(sec)))) + "\n\n" +
		theme.Hint.Render("The clock is stopped. Press Ctrl+P to resume.")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, theme.Card.Render(body))
}

func renderQuitConfirm(width, height int) string {
	body := theme.Title.Render("Leave this attempt?") + "\n\n" +
		theme.Body.Render("E  end now and see your results") + "\n" +
		theme.Body.Render("S  save and resume later") + "\n" +
		theme.Body.Render("N  keep going")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, theme.Card.Render(body))
}

func centered(width int, s string) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(s)
}
