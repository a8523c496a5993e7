package logic

import (
	"math"
	"time"
)

// WeightConfig holds the thresholds of the weight change detector.
type WeightConfig struct {
	// ChangeThreshold is the divergence from the baseline, in grams, that opens a candidate.
	ChangeThreshold float64
	// StabilityTolerance is how far, in grams, a sample may stray from the candidate.
	StabilityTolerance float64
	// StabilityWindow is how long the candidate must hold before it is confirmed.
	StabilityWindow time.Duration
}

// DefaultWeightConfig returns the stock thresholds (150 g, 50 g, 300 ms).
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		ChangeThreshold:    150,
		StabilityTolerance: 50,
		StabilityWindow:    300 * time.Millisecond,
	}
}

// StabilityCandidate is a weight that diverged from the baseline and is
// waiting to prove itself stable.
type StabilityCandidate struct {
	Active bool
	Weight float64
	Since  Millis
}

// WeightChange is a confirmed step change.
type WeightChange struct {
	At          Millis
	ChangeGrams float64 // candidate minus previous baseline
	Previous    float64
	Current     float64
}

// WeightDetector reports step changes in stored weight once they have been
// stable for the configured window.
type WeightDetector struct {
	cfg       WeightConfig
	baseline  float64
	candidate StabilityCandidate
}

// NewWeightDetector creates a detector with the given starting baseline.
func NewWeightDetector(cfg WeightConfig, baseline float64) *WeightDetector {
	return &WeightDetector{cfg: cfg, baseline: baseline}
}

// Process takes one sample and returns a change if one was confirmed.
//
// A sample that strays beyond the tolerance abandons the candidate; it does
// not open a new one. The next sample re-evaluates from the baseline.
func (d *WeightDetector) Process(now Millis, sample float64) *WeightChange {
	if !d.candidate.Active {
		if math.Abs(sample-d.baseline) >= d.cfg.ChangeThreshold {
			d.candidate = StabilityCandidate{Active: true, Weight: sample, Since: now}
		}
		return nil
	}

	if math.Abs(sample-d.candidate.Weight) > d.cfg.StabilityTolerance {
		d.candidate = StabilityCandidate{}
		return nil
	}

	if !now.Reached(d.candidate.Since, d.cfg.StabilityWindow) {
		return nil
	}

	change := &WeightChange{
		At:          now,
		ChangeGrams: d.candidate.Weight - d.baseline,
		Previous:    d.baseline,
		Current:     d.candidate.Weight,
	}
	d.baseline = d.candidate.Weight
	d.candidate = StabilityCandidate{}
	return change
}

// Rebaseline sets the baseline directly and cancels any in-flight candidate.
// Used for door transitions and tare, which bypass stability confirmation.
func (d *WeightDetector) Rebaseline(weight float64) {
	d.baseline = weight
	d.candidate = StabilityCandidate{}
}

// Baseline returns the last confirmed weight.
func (d *WeightDetector) Baseline() float64 {
	return d.baseline
}

// Candidate returns the current stability candidate.
func (d *WeightDetector) Candidate() StabilityCandidate {
	return d.candidate
}
