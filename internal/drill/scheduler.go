// Package drill picks the next practice question from a pool, favouring
// items the learner recently got wrong, took long on, or has not seen lately.
package drill

import "time"

// Random is a source of uniform floats in [0, 1). *rand.Rand from
// math/rand/v2 satisfies it.
type Random interface {
	Float64() float64
}

// WeightedItem pairs an item with its computed weight.
type WeightedItem struct {
	Item   Item
	Weight float64
}

// Scheduler performs weighted random selection over drill pools.
// It holds no state besides its configuration; callers own the pool.
type Scheduler struct {
	cfg WeightConfig
}

// NewScheduler creates a scheduler using cfg for weights.
func NewScheduler(cfg WeightConfig) Scheduler {
	return Scheduler{cfg: cfg}
}

// Config returns the weight configuration.
func (s Scheduler) Config() WeightConfig {
	return s.cfg
}

// ExplainWeights returns every item with the weight PickNext would use,
// in pool order.
func (s Scheduler) ExplainWeights(pool Pool, now time.Time) []WeightedItem {
	out := make([]WeightedItem, len(pool))
	for i, it := range pool {
		out[i] = WeightedItem{Item: it, Weight: Weight(it, now, s.cfg)}
	}
	return out
}

// PickNext chooses the next item by roulette-wheel selection. It returns
// false only when the pool is empty.
func (s Scheduler) PickNext(pool Pool, now time.Time, rng Random) (Item, bool) {
	if len(pool) == 0 {
		return Item{}, false
	}

	weighted := s.ExplainWeights(pool, now)
	var total float64
	for _, w := range weighted {
		total += w.Weight
	}

	r := rng.Float64() * total
	for _, w := range weighted {
		r -= w.Weight
		if r <= 0 {
			return w.Item, true
		}
	}
	// Floating point drift.
	return weighted[len(weighted)-1].Item, true
}
