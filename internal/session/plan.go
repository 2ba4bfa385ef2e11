package session

import (
	"fmt"
	"time"
)

// Kind is the type of practice attempt.
type Kind string

const (
	KindPaper Kind = "paper" // Timed past paper, fixed question order
	KindDrill Kind = "drill" // Topic drill, items served by the scheduler
)

// DefaultDrillBudget is the time budget of a single-section drill.
const DefaultDrillBudget = 15 * time.Minute

// ExamMeta describes the exam being attempted.
type ExamMeta struct {
	Name    string `json:"name"`
	Variant string `json:"variant,omitempty"`

	// Sections and SectionTimeBudgets are parallel; budgets are in seconds.
	Sections           []string `json:"sections"`
	SectionTimeBudgets []int    `json:"sectionTimeBudgets"`
}

// Validate checks the section layout.
func (m ExamMeta) Validate() error {
	if len(m.Sections) == 0 {
		return fmt.Errorf("exam %q has no sections", m.Name)
	}
	if len(m.Sections) != len(m.SectionTimeBudgets) {
		return fmt.Errorf("exam %q: %d sections but %d time budgets", m.Name, len(m.Sections), len(m.SectionTimeBudgets))
	}
	for i, b := range m.SectionTimeBudgets {
		if b <= 0 {
			return fmt.Errorf("exam %q: section %d budget must be positive, got %d", m.Name, i, b)
		}
	}
	return nil
}

// Budget returns the time budget of a section, or 0 if out of range.
func (m ExamMeta) Budget(sectionIndex int) time.Duration {
	if sectionIndex < 0 || sectionIndex >= len(m.SectionTimeBudgets) {
		return 0
	}
	return time.Duration(m.SectionTimeBudgets[sectionIndex]) * time.Second
}

// StartParams describes a new attempt.
type StartParams struct {
	SessionID     string
	OwnerID       string
	Kind          Kind
	Meta          ExamMeta
	QuestionOrder []string

	// SectionStarts optionally maps each section to the index of its first
	// question. When set, answering the last question of a section moves
	// the session to the next one.
	SectionStarts []int
}

func (p StartParams) validate() error {
	if p.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := p.Meta.Validate(); err != nil {
		return err
	}
	if len(p.QuestionOrder) == 0 {
		return fmt.Errorf("question order is empty")
	}
	return validateSectionStarts(p.SectionStarts, len(p.Meta.Sections), len(p.QuestionOrder))
}

func validateSectionStarts(starts []int, sections, questions int) error {
	if len(starts) == 0 {
		return nil
	}
	if len(starts) != sections {
		return fmt.Errorf("%d section starts for %d sections", len(starts), sections)
	}
	if starts[0] != 0 {
		return fmt.Errorf("first section must start at question 0, got %d", starts[0])
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] <= starts[i-1] || starts[i] >= questions {
			return fmt.Errorf("section %d start %d out of order or range", i, starts[i])
		}
	}
	return nil
}
