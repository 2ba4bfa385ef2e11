package diagnosis

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/examdrill/internal/session"
)

// Service tags wrong answers on a session with the categories the
// rule-based classifiers produce.
type Service struct {
	classifiers []Classifier
	log         *zap.Logger
}

// NewService creates a diagnosis service. Answers slower than slowThreshold
// are tagged overtime.
func NewService(slowThreshold time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		classifiers: DefaultClassifiers(slowThreshold),
		log:         log,
	}
}

// Diagnose classifies a wrong answer and records the resulting tags on the
// question at index. Correct answers are not tagged. The returned results
// are in classifier priority order.
func (s *Service) Diagnose(sess *session.PracticeSession, index int, input *ClassifyInput) ([]Result, error) {
	if index < 0 || index >= len(sess.CorrectFlags) {
		return nil, fmt.Errorf("diagnose question %d: %w", index, session.ErrIndexOutOfRange)
	}
	if sess.CorrectFlags[index] {
		return nil, nil
	}

	results := ClassifyAll(s.classifiers, input)
	if len(results) == 0 {
		return nil, nil
	}

	tags := make([]string, len(results))
	for i, r := range results {
		tags[i] = string(r.Category)
	}
	if err := sess.TagMistake(index, tags...); err != nil {
		return nil, fmt.Errorf("diagnose question %d: %w", index, err)
	}

	s.log.Debug("tagged mistake",
		zap.String("session_id", sess.SessionID),
		zap.String("question", sess.QuestionOrder[index]),
		zap.Strings("tags", tags))
	return results, nil
}
