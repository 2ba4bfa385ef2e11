package diagnosis

import "time"

// OvertimeClassifier flags wrong answers that took longer than Threshold.
type OvertimeClassifier struct {
	Threshold time.Duration
}

func (c *OvertimeClassifier) Name() string { return "overtime" }

func (c *OvertimeClassifier) Classify(input *ClassifyInput) (Category, float64) {
	if c.Threshold > 0 && input.Elapsed > c.Threshold {
		return CategoryOvertime, 0.6
	}
	return "", 0
}

// GuessedClassifier flags wrong answers the learner marked as a guess.
type GuessedClassifier struct{}

func (c *GuessedClassifier) Name() string { return "guessed-wrong" }

func (c *GuessedClassifier) Classify(input *ClassifyInput) (Category, float64) {
	if input.Guessed {
		return CategoryGuessedWrong, 1
	}
	return "", 0
}
