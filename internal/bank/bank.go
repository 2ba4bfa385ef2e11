// Package bank loads question banks from YAML and turns them into the
// inputs a practice session and the drill scheduler need.
package bank

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/examdrill/internal/drill"
	"github.com/abhisek/examdrill/internal/session"
)

// ErrUnknownQuestion is returned when a question ID is not in the bank.
var ErrUnknownQuestion = errors.New("unknown question")

// Question is one bank entry.
type Question struct {
	ID     string `yaml:"id"`
	Prompt string `yaml:"prompt"`
	Answer string `yaml:"answer"`

	// Accept lists alternative spellings of the answer.
	Accept []string `yaml:"accept,omitempty"`

	// Choices is set for multiple choice questions.
	Choices []string `yaml:"choices,omitempty"`

	Explanation string `yaml:"explanation,omitempty"`
}

// Section is a timed group of questions.
type Section struct {
	Name          string     `yaml:"name"`
	TimeBudgetSec int        `yaml:"time_budget_sec"`
	Questions     []Question `yaml:"questions"`
}

// Bank is a past paper or topic drill.
type Bank struct {
	Name     string    `yaml:"name"`
	Variant  string    `yaml:"variant,omitempty"`
	Sections []Section `yaml:"sections"`

	byID map[string]Question
}

// Load reads and validates a bank file.
func Load(path string) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bank %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	b, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("bank %s: %w", path, err)
	}
	return b, nil
}

// Parse decodes and validates a bank. Unknown keys are rejected.
func Parse(r io.Reader) (*Bank, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b Bank
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the bank is usable and indexes its questions.
func (b *Bank) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("bank has no name")
	}
	if len(b.Sections) == 0 {
		return fmt.Errorf("bank %q has no sections", b.Name)
	}

	b.byID = make(map[string]Question)
	for _, sec := range b.Sections {
		if len(sec.Questions) == 0 {
			return fmt.Errorf("section %q has no questions", sec.Name)
		}
		if sec.TimeBudgetSec <= 0 {
			return fmt.Errorf("section %q: time_budget_sec must be positive", sec.Name)
		}
		for _, q := range sec.Questions {
			if q.ID == "" {
				return fmt.Errorf("section %q: question with empty id", sec.Name)
			}
			if strings.TrimSpace(q.Answer) == "" {
				return fmt.Errorf("question %q has no answer", q.ID)
			}
			if _, dup := b.byID[q.ID]; dup {
				return fmt.Errorf("%w: %q", drill.ErrDuplicateItem, q.ID)
			}
			b.byID[q.ID] = q
		}
	}
	return b.Meta().Validate()
}

// Meta returns the exam description of the bank.
func (b *Bank) Meta() session.ExamMeta {
	m := session.ExamMeta{Name: b.Name, Variant: b.Variant}
	for _, sec := range b.Sections {
		m.Sections = append(m.Sections, sec.Name)
		m.SectionTimeBudgets = append(m.SectionTimeBudgets, sec.TimeBudgetSec)
	}
	return m
}

// QuestionOrder returns every question ID, section by section.
func (b *Bank) QuestionOrder() []string {
	var ids []string
	for _, sec := range b.Sections {
		for _, q := range sec.Questions {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// SectionStarts returns the index of each section's first question.
func (b *Bank) SectionStarts() []int {
	starts := make([]int, len(b.Sections))
	n := 0
	for i, sec := range b.Sections {
		starts[i] = n
		n += len(sec.Questions)
	}
	return starts
}

// StartParams returns the parameters of a new attempt at the bank. A paper
// keeps the bank's sections; a drill collapses them into one section with
// the given budget.
func (b *Bank) StartParams(sessionID, ownerID string, kind session.Kind, drillBudgetSec int) session.StartParams {
	p := session.StartParams{
		SessionID:     sessionID,
		OwnerID:       ownerID,
		Kind:          kind,
		QuestionOrder: b.QuestionOrder(),
	}
	if kind == session.KindDrill {
		if drillBudgetSec <= 0 {
			drillBudgetSec = int(session.DefaultDrillBudget.Seconds())
		}
		p.Meta = session.ExamMeta{
			Name:               b.Name,
			Variant:            b.Variant,
			Sections:           []string{"Drill"},
			SectionTimeBudgets: []int{drillBudgetSec},
		}
		return p
	}
	p.Meta = b.Meta()
	p.SectionStarts = b.SectionStarts()
	return p
}

// Pool returns a fresh drill pool holding every question.
func (b *Bank) Pool() drill.Pool {
	ids := b.QuestionOrder()
	pool := make(drill.Pool, len(ids))
	for i, id := range ids {
		pool[i] = drill.Item{ID: id, LastOutcome: drill.OutcomeUnknown}
	}
	return pool
}

// ReplayPool rebuilds the drill pool of a resumed session from the answers
// it has recorded. Questions whose latest answer was correct are retired,
// as they are during a live drill. Answer times are not stored
// individually, so the session's last activity stands in for them.
func (b *Bank) ReplayPool(s *session.PracticeSession) drill.Pool {
	pool := b.Pool()
	for i, id := range s.QuestionOrder {
		if s.Answers[i] == "" {
			continue
		}
		if s.CorrectFlags[i] {
			pool = pool.Remove(id)
			continue
		}
		it, ok := pool.Find(id)
		if !ok {
			continue
		}
		elapsed := secondsToDuration(s.LastAttempt(i))
		pool = pool.Replace(it.Answered(false, elapsed, s.LastActiveAt))
	}
	return pool
}

// Question returns the question with id.
func (b *Bank) Question(id string) (Question, bool) {
	q, ok := b.byID[id]
	return q, ok
}

// Check reports whether answer is correct for the question with id.
// Comparison ignores case and surrounding whitespace. For multiple choice
// questions the 1-based choice number is also accepted.
func (b *Bank) Check(id, answer string) (bool, error) {
	q, ok := b.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownQuestion, id)
	}
	got := normalize(answer)
	if got == "" {
		return false, nil
	}
	if got == normalize(q.Answer) {
		return true, nil
	}
	if slices.ContainsFunc(q.Accept, func(a string) bool { return normalize(a) == got }) {
		return true, nil
	}
	if idx := slices.IndexFunc(q.Choices, func(c string) bool { return normalize(c) == normalize(q.Answer) }); idx >= 0 {
		return got == fmt.Sprint(idx+1), nil
	}
	return false, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
