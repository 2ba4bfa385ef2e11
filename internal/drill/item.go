package drill

import (
	"errors"
	"fmt"
	"time"
)

// Outcome is the result of the learner's most recent attempt at an item.
type Outcome string

const (
	OutcomeUnknown   Outcome = "unknown"
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
)

// ErrDuplicateItem is returned by Pool.Validate when two items share an ID.
var ErrDuplicateItem = errors.New("duplicate drill item")

// Item is one schedulable practice question with its attempt history.
// Items are value snapshots: the scheduler never modifies them.
type Item struct {
	ID string `json:"id"`

	// LastWrongAt is the most recent incorrect attempt. Zero means long ago.
	LastWrongAt time.Time `json:"last_wrong_at,omitzero"`

	// LastTimeSec is how long the most recent attempt took, in seconds.
	LastTimeSec float64 `json:"last_time_sec,omitempty"`

	// LastReviewedAt is when the item was last presented in this pool's
	// lifetime, or nil if never.
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`

	LastOutcome Outcome `json:"last_outcome,omitempty"`
}

// Answered returns a copy of the item updated with the result of an attempt
// that finished at now and took elapsed.
func (it Item) Answered(correct bool, elapsed time.Duration, now time.Time) Item {
	reviewed := now
	it.LastReviewedAt = &reviewed
	it.LastTimeSec = elapsed.Seconds()
	if correct {
		it.LastOutcome = OutcomeCorrect
	} else {
		it.LastOutcome = OutcomeIncorrect
		it.LastWrongAt = now
	}
	return it
}

// Pool is an ordered collection of drill items. Order does not affect the
// selection probabilities but keeps draws reproducible for a given random
// source. An empty pool means there is nothing left to practise.
type Pool []Item

// Validate reports a malformed pool.
func (p Pool) Validate() error {
	seen := make(map[string]bool, len(p))
	for i, it := range p {
		if it.ID == "" {
			return fmt.Errorf("item %d: empty id", i)
		}
		if seen[it.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

// Replace returns a copy of the pool with the item sharing it.ID swapped
// for it. The pool is returned unchanged (as a copy) if no item matches.
func (p Pool) Replace(it Item) Pool {
	out := make(Pool, len(p))
	copy(out, p)
	for i := range out {
		if out[i].ID == it.ID {
			out[i] = it
			break
		}
	}
	return out
}

// Remove returns a copy of the pool without the item with the given ID.
func (p Pool) Remove(id string) Pool {
	out := make(Pool, 0, len(p))
	for _, it := range p {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

// Find returns the item with the given ID.
func (p Pool) Find(id string) (Item, bool) {
	for _, it := range p {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
