package diagnosis

import "github.com/abhisek/examdrill/internal/drill"

// CarelessClassifier flags a wrong answer on an item the learner got right
// last time as a careless slip rather than a knowledge gap.
type CarelessClassifier struct{}

func (c *CarelessClassifier) Name() string { return "careless" }

func (c *CarelessClassifier) Classify(input *ClassifyInput) (Category, float64) {
	if input.Prior.LastOutcome == drill.OutcomeCorrect {
		return CategoryCareless, 0.8
	}
	return "", 0
}
