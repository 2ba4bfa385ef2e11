package session

import "time"

// SectionResult is the per-section line of a summary.
type SectionResult struct {
	Name      string
	Answered  int
	Correct   int
	Elapsed   time.Duration
	Budget    time.Duration
	Remaining time.Duration
}

// Summary holds the data displayed when an attempt ends.
type Summary struct {
	SessionID      string
	ExamName       string
	Duration       time.Duration
	TotalQuestions int
	Answered       int
	TotalCorrect   int
	Guessed        int
	Tagged         int
	Accuracy       float64
	Sections       []SectionResult
}

// Summary builds a summary of the session as of now.
func (s *PracticeSession) Summary() Summary {
	sum := Summary{
		SessionID:      s.SessionID,
		ExamName:       s.ExamMeta.Name,
		TotalQuestions: len(s.QuestionOrder),
		Sections:       make([]SectionResult, len(s.ExamMeta.Sections)),
	}
	for i, name := range s.ExamMeta.Sections {
		elapsed := s.SectionElapsed(i)
		sum.Sections[i] = SectionResult{
			Name:      name,
			Elapsed:   elapsed,
			Budget:    s.ExamMeta.Budget(i),
			Remaining: s.RemainingSectionTime(i),
		}
		sum.Duration += elapsed
	}

	for i := range s.QuestionOrder {
		if len(s.MistakeTags[i]) > 0 {
			sum.Tagged++
		}
		if s.Answers[i] == "" {
			continue
		}
		sum.Answered++
		if s.GuessedFlags[i] {
			sum.Guessed++
		}
		sec := s.sectionFor(i)
		if len(s.SectionStarts) == 0 {
			sec = -1
			if len(s.ExamMeta.Sections) == 1 {
				sec = 0
			}
		}
		if sec >= 0 {
			sum.Sections[sec].Answered++
		}
		if s.CorrectFlags[i] {
			sum.TotalCorrect++
			if sec >= 0 {
				sum.Sections[sec].Correct++
			}
		}
	}

	if sum.Answered > 0 {
		sum.Accuracy = float64(sum.TotalCorrect) / float64(sum.Answered)
	}
	return sum
}
