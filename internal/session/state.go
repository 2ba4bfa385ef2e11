// Package session holds the in-memory state of one timed practice attempt:
// progress through the question order, the answer log, and pause-aware
// section timers.
package session

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/abhisek/examdrill/internal/clock"
)

// State is the lifecycle state of a session.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// PracticeSession is one timed attempt at a paper or drill.
//
// A session has a single owner; it is not safe for concurrent use.
// Section time is accumulated only while running: every mutating call
// made while running flushes the time since the last flush into
// SectionElapsedMs, and paused intervals are never added.
type PracticeSession struct {
	SessionID string   `json:"sessionId"`
	OwnerID   string   `json:"ownerId"`
	Kind      Kind     `json:"kind"`
	ExamMeta  ExamMeta `json:"examMeta"`

	QuestionOrder []string `json:"questionOrder"`
	SectionStarts []int    `json:"sectionStarts,omitempty"`

	CurrentIndex        int `json:"currentIndex"`
	CurrentSectionIndex int `json:"currentSectionIndex"`

	// Parallel to QuestionOrder. PerQuestionElapsed sums every attempt;
	// LastAttemptSec holds only the most recent one and may be absent in
	// records written before it existed.
	PerQuestionElapsed []float64  `json:"perQuestionElapsed"`
	LastAttemptSec     []float64  `json:"lastAttemptSec,omitempty"`
	Answers            []string   `json:"answers"`
	CorrectFlags       []bool     `json:"correctFlags"`
	GuessedFlags       []bool     `json:"guessedFlags"`
	MistakeTags        [][]string `json:"mistakeTags"`

	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
	IsPaused     bool       `json:"isPaused"`
	PausedAt     *time.Time `json:"pausedAt"`

	// Parallel to ExamMeta.Sections.
	SectionElapsedMs []int64 `json:"sectionElapsedMs"`

	// segmentStartedAt is the clock reading of the last flush while running.
	segmentStartedAt time.Time
	clk              clock.Clock
}

// Start creates a running session.
func Start(p StartParams, clk clock.Clock) (*PracticeSession, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if p.Kind == "" {
		p.Kind = KindPaper
	}

	now := clk.Now()
	n := len(p.QuestionOrder)
	mistakes := make([][]string, n)
	for i := range mistakes {
		mistakes[i] = []string{}
	}

	return &PracticeSession{
		SessionID:          p.SessionID,
		OwnerID:            p.OwnerID,
		Kind:               p.Kind,
		ExamMeta:           p.Meta,
		QuestionOrder:      slices.Clone(p.QuestionOrder),
		SectionStarts:      slices.Clone(p.SectionStarts),
		PerQuestionElapsed: make([]float64, n),
		LastAttemptSec:     make([]float64, n),
		Answers:            make([]string, n),
		CorrectFlags:       make([]bool, n),
		GuessedFlags:       make([]bool, n),
		MistakeTags:        mistakes,
		StartedAt:          now,
		LastActiveAt:       now,
		SectionElapsedMs:   make([]int64, len(p.Meta.Sections)),
		segmentStartedAt:   now,
		clk:                clk,
	}, nil
}

// Restore attaches a clock to a session decoded from storage. A running
// session starts a fresh timing segment now: time between the last saved
// mutation and the restore is not charged.
func (s *PracticeSession) Restore(clk clock.Clock) {
	if clk == nil {
		clk = clock.Real{}
	}
	s.clk = clk
	if s.State() == StateRunning {
		s.segmentStartedAt = clk.Now()
	}
}

// State returns the lifecycle state.
func (s *PracticeSession) State() State {
	switch {
	case s.EndedAt != nil:
		return StateEnded
	case s.IsPaused:
		return StatePaused
	default:
		return StateRunning
	}
}

// Ended reports whether the session is terminal.
func (s *PracticeSession) Ended() bool {
	return s.EndedAt != nil
}

// RecordAnswer stores the answer to the question at index and advances the
// cursor past it. elapsedSec is added to the question's time slot.
func (s *PracticeSession) RecordAnswer(index int, answer string, isCorrect, guessed bool, elapsedSec float64) error {
	if err := s.require("record answer", StateRunning); err != nil {
		return err
	}
	if err := s.checkQuestion(index); err != nil {
		return err
	}
	if elapsedSec < 0 || math.IsNaN(elapsedSec) || math.IsInf(elapsedSec, 0) {
		return fmt.Errorf("record answer: invalid elapsed time %v", elapsedSec)
	}

	now := s.now()
	s.flush(now)

	s.Answers[index] = answer
	s.CorrectFlags[index] = isCorrect
	s.GuessedFlags[index] = guessed
	s.PerQuestionElapsed[index] += elapsedSec
	if len(s.LastAttemptSec) != len(s.QuestionOrder) {
		s.LastAttemptSec = slices.Clone(s.PerQuestionElapsed)
	}
	s.LastAttemptSec[index] = elapsedSec

	s.CurrentIndex = min(index+1, len(s.QuestionOrder))
	if next := s.sectionFor(s.CurrentIndex); next > s.CurrentSectionIndex {
		s.CurrentSectionIndex = next
	}

	s.LastActiveAt = now
	return nil
}

// LastAttempt returns how long the most recent attempt at the question at
// index took, in seconds. Records without per-attempt times fall back to
// the question's total.
func (s *PracticeSession) LastAttempt(index int) float64 {
	if index < 0 || index >= len(s.QuestionOrder) {
		return 0
	}
	if len(s.LastAttemptSec) == len(s.QuestionOrder) {
		return s.LastAttemptSec[index]
	}
	return s.PerQuestionElapsed[index]
}

// TagMistake attaches diagnostic tags to the question at index.
// Duplicate tags are ignored.
func (s *PracticeSession) TagMistake(index int, tags ...string) error {
	if err := s.require("tag mistake", StateRunning, StatePaused); err != nil {
		return err
	}
	if err := s.checkQuestion(index); err != nil {
		return err
	}

	now := s.now()
	s.flush(now)
	for _, tag := range tags {
		if tag != "" && !slices.Contains(s.MistakeTags[index], tag) {
			s.MistakeTags[index] = append(s.MistakeTags[index], tag)
		}
	}
	s.LastActiveAt = now
	return nil
}

// ChangeSection moves to another section. Time so far is charged to the
// section being left.
func (s *PracticeSession) ChangeSection(sectionIndex int) error {
	if err := s.require("change section", StateRunning); err != nil {
		return err
	}
	if sectionIndex < 0 || sectionIndex >= len(s.ExamMeta.Sections) {
		return fmt.Errorf("change section %d: %w", sectionIndex, ErrIndexOutOfRange)
	}

	now := s.now()
	s.flush(now)
	s.CurrentSectionIndex = sectionIndex
	s.LastActiveAt = now
	return nil
}

// Pause freezes the section timer.
func (s *PracticeSession) Pause() error {
	if err := s.require("pause", StateRunning); err != nil {
		return err
	}
	now := s.now()
	s.flush(now)
	s.IsPaused = true
	s.PausedAt = &now
	s.LastActiveAt = now
	return nil
}

// Resume restarts the section timer. The paused interval is excluded.
func (s *PracticeSession) Resume() error {
	if err := s.require("resume", StatePaused); err != nil {
		return err
	}
	now := s.now()
	s.IsPaused = false
	s.PausedAt = nil
	s.segmentStartedAt = now
	s.LastActiveAt = now
	return nil
}

// End finalizes the session. Ending an ended session is a no-op, since a
// submit and a time-out sweep may both try.
func (s *PracticeSession) End() error {
	if s.Ended() {
		return nil
	}
	now := s.now()
	s.flush(now)
	s.IsPaused = false
	s.PausedAt = nil
	s.EndedAt = &now
	s.LastActiveAt = now
	return nil
}

// Checkpoint flushes the section timer and marks the session active
// without changing anything else. Used for periodic autosave.
func (s *PracticeSession) Checkpoint() error {
	if err := s.require("checkpoint", StateRunning, StatePaused); err != nil {
		return err
	}
	now := s.now()
	s.flush(now)
	s.LastActiveAt = now
	return nil
}

// SectionElapsed returns the running time spent in a section, including
// the live segment if the section is current and running.
func (s *PracticeSession) SectionElapsed(sectionIndex int) time.Duration {
	if sectionIndex < 0 || sectionIndex >= len(s.SectionElapsedMs) {
		return 0
	}
	d := time.Duration(s.SectionElapsedMs[sectionIndex]) * time.Millisecond
	if s.State() == StateRunning && sectionIndex == s.CurrentSectionIndex && !s.segmentStartedAt.IsZero() {
		if live := s.now().Sub(s.segmentStartedAt); live > 0 {
			d += live
		}
	}
	return d
}

// RemainingSectionTime returns the section budget minus its elapsed time,
// floored at zero.
func (s *PracticeSession) RemainingSectionTime(sectionIndex int) time.Duration {
	remaining := s.ExamMeta.Budget(sectionIndex) - s.SectionElapsed(sectionIndex)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SectionExpired reports whether a section has used up its budget.
func (s *PracticeSession) SectionExpired(sectionIndex int) bool {
	if sectionIndex < 0 || sectionIndex >= len(s.ExamMeta.Sections) {
		return false
	}
	return s.RemainingSectionTime(sectionIndex) == 0
}

// Validate checks the structural invariants of a session, typically one
// decoded from storage.
func (s *PracticeSession) Validate() error {
	n := len(s.QuestionOrder)
	if s.SessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	if err := s.ExamMeta.Validate(); err != nil {
		return err
	}
	if len(s.PerQuestionElapsed) != n || len(s.Answers) != n || len(s.CorrectFlags) != n ||
		len(s.GuessedFlags) != n || len(s.MistakeTags) != n {
		return fmt.Errorf("session %s: per-question sequences do not match %d questions", s.SessionID, n)
	}
	if len(s.LastAttemptSec) != 0 && len(s.LastAttemptSec) != n {
		return fmt.Errorf("session %s: %d last-attempt times for %d questions", s.SessionID, len(s.LastAttemptSec), n)
	}
	if len(s.SectionElapsedMs) != len(s.ExamMeta.Sections) {
		return fmt.Errorf("session %s: %d section timers for %d sections", s.SessionID, len(s.SectionElapsedMs), len(s.ExamMeta.Sections))
	}
	if s.IsPaused && s.PausedAt == nil {
		return fmt.Errorf("session %s: paused without pausedAt", s.SessionID)
	}
	if s.CurrentIndex < 0 || s.CurrentIndex > n {
		return fmt.Errorf("session %s: current index %d: %w", s.SessionID, s.CurrentIndex, ErrIndexOutOfRange)
	}
	if s.CurrentSectionIndex < 0 || s.CurrentSectionIndex >= len(s.ExamMeta.Sections) {
		return fmt.Errorf("session %s: current section %d: %w", s.SessionID, s.CurrentSectionIndex, ErrIndexOutOfRange)
	}
	return validateSectionStarts(s.SectionStarts, len(s.ExamMeta.Sections), n)
}

func (s *PracticeSession) require(op string, allowed ...State) error {
	st := s.State()
	if slices.Contains(allowed, st) {
		return nil
	}
	return &TransitionError{Op: op, From: st}
}

func (s *PracticeSession) checkQuestion(index int) error {
	if index < 0 || index >= len(s.QuestionOrder) {
		return fmt.Errorf("question %d of %d: %w", index, len(s.QuestionOrder), ErrIndexOutOfRange)
	}
	return nil
}

// flush charges the whole milliseconds since the last flush to the current
// section. The sub-millisecond remainder stays in the live segment. It does
// nothing unless the session is running.
func (s *PracticeSession) flush(now time.Time) {
	if s.State() != StateRunning {
		return
	}
	delta := now.Sub(s.segmentStartedAt)
	if s.segmentStartedAt.IsZero() || delta <= 0 {
		s.segmentStartedAt = now
		return
	}
	ms := delta.Milliseconds()
	s.SectionElapsedMs[s.CurrentSectionIndex] += ms
	s.segmentStartedAt = s.segmentStartedAt.Add(time.Duration(ms) * time.Millisecond)
}

// sectionFor returns the section containing the question at index, or the
// current section when no section layout is known.
func (s *PracticeSession) sectionFor(index int) int {
	if len(s.SectionStarts) == 0 || index >= len(s.QuestionOrder) {
		return s.CurrentSectionIndex
	}
	section := 0
	for i, start := range s.SectionStarts {
		if index >= start {
			section = i
		}
	}
	return section
}

func (s *PracticeSession) now() time.Time {
	if s.clk == nil {
		s.clk = clock.Real{}
	}
	return s.clk.Now()
}
