package diagnosis

import "time"

// Classifier is a rule-based error classifier.
// Returns a category and confidence (0.0–1.0), or ("", 0) if the rule doesn't apply.
type Classifier interface {
	Name() string
	Classify(input *ClassifyInput) (Category, float64)
}

// DefaultClassifiers returns classifiers in priority order. A fast wrong
// answer is more likely a rush than a careless slip, so speed-rush comes
// first. Answers slower than slowThreshold are tagged overtime.
func DefaultClassifiers(slowThreshold time.Duration) []Classifier {
	return []Classifier{
		&SpeedRushClassifier{},
		&CarelessClassifier{},
		&OvertimeClassifier{Threshold: slowThreshold},
		&GuessedClassifier{},
	}
}

// ClassifyAll returns every matching result, in classifier order.
func ClassifyAll(classifiers []Classifier, input *ClassifyInput) []Result {
	var results []Result
	for _, c := range classifiers {
		if cat, conf := c.Classify(input); cat != "" {
			results = append(results, Result{Category: cat, Confidence: conf, ClassifierName: c.Name()})
		}
	}
	return results
}
