package scoring

import "time"

// Config holds the scoring constants.
type Config struct {
	BasePoints   int           // awarded to the fastest correct responder
	FloorPoints  int           // minimum for any correct answer
	LatenessStep time.Duration // points lost per step behind the fastest
}

// DefaultConfig returns production defaults: 100 points for the fastest,
// minus one point per 100ms behind, never below 10.
func DefaultConfig() Config {
	return Config{
		BasePoints:   100,
		FloorPoints:  10,
		LatenessStep: 100 * time.Millisecond,
	}
}

// Tracker scores one question. It anchors on the earliest elapsed time at
// which any correct answer was accepted; the anchor is a monotonic minimum
// over the acceptance order, and points already awarded are never adjusted
// when a later arrival turns out to have been faster.
type Tracker struct {
	cfg      Config
	fastest  time.Duration
	anchored bool
}

// NewTracker creates a tracker for a single question.
func NewTracker(cfg Config) *Tracker {
	if cfg.BasePoints == 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{cfg: cfg}
}

// Points computes the award for a correct answer accepted at the given
// elapsed time, without committing it. An answer faster than the current
// anchor scores full base points.
func (t *Tracker) Points(elapsed time.Duration) int {
	if !t.anchored || elapsed <= t.fastest {
		return t.cfg.BasePoints
	}
	behind := int((elapsed - t.fastest) / t.cfg.LatenessStep)
	points := t.cfg.BasePoints - behind
	if points < t.cfg.FloorPoints {
		return t.cfg.FloorPoints
	}
	return points
}

// Observe commits an accepted correct answer, lowering the anchor if this
// arrival was the fastest seen so far.
func (t *Tracker) Observe(elapsed time.Duration) {
	if !t.anchored || elapsed < t.fastest {
		t.fastest = elapsed
		t.anchored = true
	}
}

// Reset clears the tracker for the next question.
func (t *Tracker) Reset() {
	t.fastest = 0
	t.anchored = false
}
