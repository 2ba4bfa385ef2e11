package drill

import (
	"fmt"
	"math"
	"time"
)

// ReviewBand suppresses items presented less than Within ago by Factor.
type ReviewBand struct {
	Within time.Duration `mapstructure:"within"`
	Factor float64       `mapstructure:"factor"`
}

// WeightConfig holds the tunable constants of the weight model.
// The defaults are empirical; treat them as starting points.
type WeightConfig struct {
	// RecencyAmplitude is the extra boost for an item answered wrongly just now.
	RecencyAmplitude float64 `mapstructure:"recency_amplitude"`
	// RecencyScaleHours is the exponential decay scale of the recency boost.
	RecencyScaleHours float64 `mapstructure:"recency_scale_hours"`

	// SlowAmplitude is the extra boost for an item that took SlowThresholdSec or longer.
	SlowAmplitude    float64 `mapstructure:"slow_amplitude"`
	SlowThresholdSec float64 `mapstructure:"slow_threshold_sec"`

	// ReviewBands must be sorted by ascending Within. Items reviewed longer
	// ago than the last band, or never, get factor 1.
	ReviewBands []ReviewBand `mapstructure:"review_bands"`

	CorrectFactor   float64 `mapstructure:"correct_factor"`
	IncorrectFactor float64 `mapstructure:"incorrect_factor"`

	// Floor keeps every item selectable.
	Floor float64 `mapstructure:"floor"`
}

// DefaultWeightConfig returns the standard weight model constants.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		RecencyAmplitude:  2,
		RecencyScaleHours: 48,
		SlowAmplitude:     1.5,
		SlowThresholdSec:  120,
		ReviewBands: []ReviewBand{
			{Within: 2 * time.Hour, Factor: 0.2},
			{Within: 8 * time.Hour, Factor: 0.6},
			{Within: 24 * time.Hour, Factor: 0.8},
		},
		CorrectFactor:   0.7,
		IncorrectFactor: 1.3,
		Floor:           0.05,
	}
}

// Validate checks that the constants keep every weight finite and positive.
func (c WeightConfig) Validate() error {
	if c.Floor <= 0 {
		return fmt.Errorf("floor must be positive, got %v", c.Floor)
	}
	if c.RecencyAmplitude < 0 || c.SlowAmplitude < 0 {
		return fmt.Errorf("amplitudes must not be negative")
	}
	if c.RecencyScaleHours <= 0 {
		return fmt.Errorf("recency_scale_hours must be positive, got %v", c.RecencyScaleHours)
	}
	if c.SlowThresholdSec <= 0 {
		return fmt.Errorf("slow_threshold_sec must be positive, got %v", c.SlowThresholdSec)
	}
	if c.CorrectFactor <= 0 || c.IncorrectFactor <= 0 {
		return fmt.Errorf("outcome factors must be positive")
	}
	var prev time.Duration
	for i, b := range c.ReviewBands {
		if b.Within <= prev {
			return fmt.Errorf("review band %d: within %s not after %s", i, b.Within, prev)
		}
		if b.Factor <= 0 {
			return fmt.Errorf("review band %d: factor must be positive", i)
		}
		prev = b.Within
	}
	return nil
}

// Weight computes the sampling weight of an item at now. The result is
// always at least cfg.Floor.
func Weight(it Item, now time.Time, cfg WeightConfig) float64 {
	w := RecencyBoost(it, now, cfg) *
		SlowFactor(it, cfg) *
		ReviewFactor(it, now, cfg) *
		OutcomeFactor(it, cfg)
	if math.IsNaN(w) || w < cfg.Floor {
		return cfg.Floor
	}
	return w
}

// RecencyBoost boosts items answered wrongly recently, decaying toward 1.
func RecencyBoost(it Item, now time.Time, cfg WeightConfig) float64 {
	if it.LastWrongAt.IsZero() {
		return 1
	}
	hours := hoursSince(it.LastWrongAt, now)
	return 1 + cfg.RecencyAmplitude*math.Exp(-hours/cfg.RecencyScaleHours)
}

// SlowFactor boosts items that took long, linear up to SlowThresholdSec.
func SlowFactor(it Item, cfg WeightConfig) float64 {
	secs := it.LastTimeSec
	if secs <= 0 || math.IsNaN(secs) {
		return 1
	}
	return 1 + cfg.SlowAmplitude*math.Min(1, secs/cfg.SlowThresholdSec)
}

// ReviewFactor suppresses items presented very recently.
func ReviewFactor(it Item, now time.Time, cfg WeightConfig) float64 {
	if it.LastReviewedAt == nil {
		return 1
	}
	since := now.Sub(*it.LastReviewedAt)
	if since < 0 {
		since = 0
	}
	for _, b := range cfg.ReviewBands {
		if since < b.Within {
			return b.Factor
		}
	}
	return 1
}

// OutcomeFactor favours items not yet answered correctly.
func OutcomeFactor(it Item, cfg WeightConfig) float64 {
	if it.LastOutcome == OutcomeCorrect {
		return cfg.CorrectFactor
	}
	return cfg.IncorrectFactor
}

// hoursSince clamps timestamps in the future to zero.
func hoursSince(t, now time.Time) float64 {
	h := now.Sub(t).Hours()
	if h < 0 {
		return 0
	}
	return h
}
