// Package drill is the screen that runs a practice attempt: it serves
// questions, grades answers, keeps the section clock and persists the
// session after every change.
package drill

import (
	"context"
	"errors"
	"slices"
	"time"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/zap"

	"github.com/abhisek/examdrill/internal/bank"
	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/diagnosis"
	sched "github.com/abhisek/examdrill/internal/drill"
	"github.com/abhisek/examdrill/internal/router"
	"github.com/abhisek/examdrill/internal/screen"
	"github.com/abhisek/examdrill/internal/screens/summary"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/sessionstore"
	"github.com/abhisek/examdrill/internal/ui/components"
	"github.com/abhisek/examdrill/internal/ui/layout"
)

// DefaultAutosave is how often a running attempt is checkpointed.
const DefaultAutosave = 15 * time.Second

// saveTimeout bounds one local write from the UI loop.
const saveTimeout = 5 * time.Second

type phase int

const (
	phaseAnswering phase = iota
	phaseFeedback
	phaseConfirmQuit
	phaseDone
)

// Deps are the services the screen drives.
type Deps struct {
	Store     *sessionstore.Store
	Bank      *bank.Bank
	Scheduler sched.Scheduler
	Diagnosis *diagnosis.Service
	Clock     clock.Clock
	Rand      sched.Random
	Log       *zap.Logger

	// Autosave is the checkpoint interval; zero means DefaultAutosave.
	Autosave time.Duration
}

// Screen implements screen.Screen for a running attempt.
type Screen struct {
	deps Deps
	sess *session.PracticeSession
	pool sched.Pool

	phase    phase
	index    int
	question bank.Question
	input    components.AnswerInput
	choices  components.ChoiceList
	mcActive bool
	guessed  bool

	// Time on the current question is answerSpent plus the live interval
	// since answerStart; pauses close the interval.
	answerStart time.Time
	answerSpent time.Duration

	lastAnswer  string
	lastCorrect bool
	lastTags    []string

	lastSave time.Time
	warning  string
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)
var _ screen.Closer = (*Screen)(nil)
var _ layout.StatusProvider = (*Screen)(nil)

// New creates the screen for sess, which may be freshly started or
// resumed from storage.
func New(deps Deps, sess *session.PracticeSession) *Screen {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Autosave <= 0 {
		deps.Autosave = DefaultAutosave
	}
	return &Screen{
		deps:     deps,
		sess:     sess,
		pool:     deps.Bank.ReplayPool(sess),
		index:    -1,
		lastSave: deps.Clock.Now(),
	}
}

func (s *Screen) Init() tea.Cmd {
	if s.sess.Ended() {
		return func() tea.Msg { return finishMsg{} }
	}
	s.save()
	s.advance()
	if s.phase == phaseDone {
		return func() tea.Msg { return finishMsg{} }
	}
	return tea.Batch(s.input.Init(), tickCmd())
}

func (s *Screen) Title() string {
	m := s.sess.ExamMeta
	if m.Variant != "" {
		return m.Name + " (" + m.Variant + ")"
	}
	return m.Name
}

func (s *Screen) KeyHints() []layout.KeyHint {
	switch {
	case s.phase == phaseConfirmQuit:
		return []layout.KeyHint{
			{Key: "E", Description: "End and submit"},
			{Key: "S", Description: "Save for later"},
			{Key: "N", Description: "Keep going"},
		}
	case s.phase == phaseFeedback:
		return []layout.KeyHint{{Key: "any key", Description: "Continue"}}
	case s.sess.State() == session.StatePaused:
		return []layout.KeyHint{
			{Key: "Ctrl+P", Description: "Resume"},
			{Key: "Esc", Description: "Quit"},
		}
	}
	return []layout.KeyHint{
		{Key: "Enter", Description: "Submit"},
		{Key: "Tab", Description: "Mark guess"},
		{Key: "Ctrl+P", Description: "Pause"},
		{Key: "Esc", Description: "Quit"},
	}
}

// Session returns the attempt being run.
func (s *Screen) Session() *session.PracticeSession {
	return s.sess
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return s.handleTick()
	case finishMsg:
		return s.finish()
	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if s.phase == phaseAnswering && !s.mcActive {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

// Close checkpoints an unfinished attempt so it can be resumed.
func (s *Screen) Close() {
	if s.phase == phaseDone || s.sess.Ended() {
		return
	}
	if err := s.sess.Checkpoint(); err != nil {
		s.deps.Log.Warn("checkpoint on close failed", zap.Error(err))
	}
	s.save()
}

func (s *Screen) handleTick() (screen.Screen, tea.Cmd) {
	if s.phase == phaseDone {
		return s, nil
	}
	if s.sess.State() == session.StateRunning {
		if s.sess.SectionExpired(s.sess.CurrentSectionIndex) {
			return s.expireSection()
		}
		if s.deps.Clock.Now().Sub(s.lastSave) >= s.deps.Autosave {
			if err := s.sess.Checkpoint(); err == nil {
				s.save()
			}
		}
	}
	return s, tickCmd()
}

func (s *Screen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()

	switch s.phase {
	case phaseDone:
		return s, nil

	case phaseConfirmQuit:
		switch key {
		case "e", "E", "y", "Y":
			return s.finish()
		case "s", "S":
			return s.suspend()
		case "n", "N", "esc":
			s.phase = phaseAnswering
		}
		return s, nil

	case phaseFeedback:
		s.advance()
		if s.phase == phaseDone {
			return s.finish()
		}
		return s, s.input.Init()
	}

	switch key {
	case "esc":
		s.phase = phaseConfirmQuit
		return s, nil
	case "ctrl+p":
		s.togglePause()
		return s, nil
	}

	if s.sess.State() == session.StatePaused {
		return s, nil
	}

	switch key {
	case "enter":
		return s.submit()
	case "tab":
		s.guessed = !s.guessed
		return s, nil
	}

	if s.mcActive {
		var picked bool
		s.choices, picked = s.choices.Update(msg)
		if picked {
			return s.submit()
		}
		return s, nil
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *Screen) togglePause() {
	now := s.deps.Clock.Now()
	var err error
	if s.sess.State() == session.StatePaused {
		err = s.sess.Resume()
		s.answerStart = now
	} else {
		err = s.sess.Pause()
		s.answerSpent += now.Sub(s.answerStart)
	}
	if err != nil {
		s.warning = err.Error()
		return
	}
	s.save()
}

// advance serves the next question, or marks the attempt done when there
// is none left.
func (s *Screen) advance() {
	s.phase = phaseAnswering
	s.guessed = false
	s.lastTags = nil

	idx := s.nextIndex()
	if idx < 0 {
		s.phase = phaseDone
		return
	}

	q, ok := s.deps.Bank.Question(s.sess.QuestionOrder[idx])
	if !ok {
		s.deps.Log.Error("question missing from bank", zap.String("question", s.sess.QuestionOrder[idx]))
		s.phase = phaseDone
		return
	}

	s.index = idx
	s.question = q
	s.mcActive = len(q.Choices) > 0
	s.choices = components.NewChoiceList(q.Choices)
	s.input = components.NewAnswerInput("Type your answer...", 120)
	s.answerStart = s.deps.Clock.Now()
	s.answerSpent = 0
}

// nextIndex returns the index of the next question to serve, or -1.
// Papers go in order from the start of the current section; drills ask the
// scheduler, and a drill whose pool is empty is complete.
func (s *Screen) nextIndex() int {
	if s.sess.Kind == session.KindDrill {
		it, ok := s.deps.Scheduler.PickNext(s.pool, s.deps.Clock.Now(), s.deps.Rand)
		if !ok {
			return -1
		}
		return slices.Index(s.sess.QuestionOrder, it.ID)
	}

	i := s.sess.CurrentIndex
	if starts := s.sess.SectionStarts; s.sess.CurrentSectionIndex < len(starts) {
		i = max(i, starts[s.sess.CurrentSectionIndex])
	}
	if i >= len(s.sess.QuestionOrder) {
		return -1
	}
	return i
}

func (s *Screen) submit() (screen.Screen, tea.Cmd) {
	answer := s.input.Value()
	if s.mcActive {
		answer = s.choices.Value()
	}
	if answer == "" {
		return s, nil
	}

	now := s.deps.Clock.Now()
	spent := s.answerSpent + now.Sub(s.answerStart)
	id := s.question.ID

	correct, err := s.deps.Bank.Check(id, answer)
	if err != nil {
		s.warning = err.Error()
		return s, nil
	}

	prior, _ := s.pool.Find(id)
	if err := s.sess.RecordAnswer(s.index, answer, correct, s.guessed, spent.Seconds()); err != nil {
		s.warning = err.Error()
		return s, nil
	}

	if !correct && s.deps.Diagnosis != nil {
		results, err := s.deps.Diagnosis.Diagnose(s.sess, s.index, &diagnosis.ClassifyInput{
			Prior:   prior,
			Answer:  answer,
			Elapsed: spent,
			Guessed: s.guessed,
		})
		if err != nil {
			s.deps.Log.Warn("diagnosis failed", zap.String("question", id), zap.Error(err))
		}
		for _, r := range results {
			s.lastTags = append(s.lastTags, string(r.Category))
		}
	}

	if correct {
		s.pool = s.pool.Remove(id)
	} else {
		s.pool = s.pool.Replace(prior.Answered(false, spent, now))
	}
	s.lastAnswer = answer
	s.lastCorrect = correct
	s.input.Grade(correct)
	s.save()

	s.phase = phaseFeedback
	return s, nil
}

// expireSection moves a paper on to its next section when the current one
// runs out of time, and ends the attempt after the last.
func (s *Screen) expireSection() (screen.Screen, tea.Cmd) {
	next := s.sess.CurrentSectionIndex + 1
	if s.sess.Kind == session.KindDrill || next >= len(s.sess.ExamMeta.Sections) {
		return s.finish()
	}
	if err := s.sess.ChangeSection(next); err != nil {
		s.warning = err.Error()
		return s, tickCmd()
	}
	s.save()
	s.advance()
	if s.phase == phaseDone {
		return s.finish()
	}
	return s, tea.Batch(s.input.Init(), tickCmd())
}

func (s *Screen) finish() (screen.Screen, tea.Cmd) {
	s.phase = phaseDone
	if err := s.sess.End(); err != nil {
		s.warning = err.Error()
	}
	s.save()
	sum := s.sess.Summary()
	return s, func() tea.Msg {
		return router.ReplaceScreenMsg{Screen: summary.New(sum)}
	}
}

func (s *Screen) suspend() (screen.Screen, tea.Cmd) {
	if s.sess.State() == session.StateRunning {
		if err := s.sess.Pause(); err != nil {
			s.warning = err.Error()
		}
	}
	s.save()
	s.phase = phaseDone
	return s, tea.Quit
}

// save persists the session. A storage failure is shown but does not stop
// the attempt; the next save retries with the full state.
func (s *Screen) save() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	s.lastSave = s.deps.Clock.Now()
	if err := s.deps.Store.Save(ctx, s.sess); err != nil {
		s.deps.Log.Error("save session failed", zap.String("session_id", s.sess.SessionID), zap.Error(err))
		if errors.Is(err, sessionstore.ErrStorageUnavailable) {
			s.warning = "Progress is not being saved to disk"
		} else {
			s.warning = err.Error()
		}
		return
	}
	s.warning = ""
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
