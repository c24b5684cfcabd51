package congestion

import "time"

// delaySmoothing is the EWMA weight given to a new round-trip sample,
// the usual 1/8 from srtt smoothing.
const delaySmoothing = 0.125

// DelayEstimator smooths round-trip samples into an RTT estimate
// clamped to the configured [min, max] bounds.
type DelayEstimator struct {
	min, max time.Duration
	estimate time.Duration
}

func NewDelayEstimator(min, max time.Duration) *DelayEstimator {
	return &DelayEstimator{
		min:      min,
		max:      max,
		estimate: min,
	}
}

// Update folds a new round-trip sample into the estimate and re-clamps.
func (e *DelayEstimator) Update(sample time.Duration) {
	if sample < 0 {
		return
	}
	e.estimate = time.Duration((1-delaySmoothing)*float64(e.estimate) + delaySmoothing*float64(sample))
	if e.estimate < e.min {
		e.estimate = e.min
	}
	if e.estimate > e.max {
		e.estimate = e.max
	}
}

// Estimate returns the smoothed round-trip time.
func (e *DelayEstimator) Estimate() time.Duration {
	return e.estimate
}
