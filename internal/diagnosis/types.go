package diagnosis

import (
	"time"

	"github.com/abhisek/examdrill/internal/drill"
)

// Category classifies a wrong answer. Categories are stored on the session
// as mistake tags.
type Category string

const (
	CategoryCareless     Category = "careless"
	CategorySpeedRush    Category = "speed-rush"
	CategoryOvertime     Category = "overtime"
	CategoryGuessedWrong Category = "guessed-wrong"
)

// ClassifyInput holds the context for classification.
type ClassifyInput struct {
	// Prior is the item's history before this attempt.
	Prior   drill.Item
	Answer  string
	Elapsed time.Duration
	Guessed bool
}

// Result is the output of classifying a wrong answer.
type Result struct {
	Category       Category
	Confidence     float64 // 0.0–1.0
	ClassifierName string
}
