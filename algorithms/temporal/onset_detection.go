package temporal

import (
	"time"
)

// OnsetDetection flags rising edges of an envelope. An onset requires the
// level to exceed Threshold, the per-tick rise to exceed Slope, and strictly
// more than MinGap to have passed since the previous onset.
type OnsetDetection struct {
	threshold float64
	slope     float64
	minGap    time.Duration
	last      time.Time
}

// NewOnsetDetection creates a new onset detector
func NewOnsetDetection(threshold, slope float64, minGap time.Duration) *OnsetDetection {
	return &OnsetDetection{
		threshold: threshold,
		slope:     slope,
		minGap:    minGap,
	}
}

// Detect evaluates one tick. now must be monotonic across calls.
func (od *OnsetDetection) Detect(level, delta float64, now time.Time) bool {
	if level <= od.threshold || delta <= od.slope {
		return false
	}
	if !od.last.IsZero() && now.Sub(od.last) <= od.minGap {
		return false
	}
	od.last = now
	return true
}

// LastOnset returns the time of the most recent onset, zero if none
func (od *OnsetDetection) LastOnset() time.Time {
	return od.last
}

// Reset forgets the refractory state
func (od *OnsetDetection) Reset() {
	od.last = time.Time{}
}
