// Package congestion holds the channel-model side of the engine: the
// loss and delay estimators fed by the peer's statistics reports, and
// the rate controller that turns them into a swap interval and a
// check-symbol budget. It does not implement congestion control.
package congestion

// lossSmoothing is the EWMA weight given to a new observation window.
// Windows span a full swap interval, so the estimator favors reacting
// to the channel over long memory.
const lossSmoothing = 0.5

// LossEstimator smooths observed seen/count ratios into a packet-loss
// probability clamped to [minLoss, 1].
type LossEstimator struct {
	minLoss  float64
	estimate float64
}

func NewLossEstimator(minLoss float64) *LossEstimator {
	return &LossEstimator{
		minLoss:  minLoss,
		estimate: minLoss,
	}
}

// Update folds a new observation window into the estimate. Windows
// where nothing was expected carry no information and are ignored.
func (e *LossEstimator) Update(seen, count uint32) {
	if count == 0 {
		return
	}
	ratio := 1 - float64(seen)/float64(count)
	if ratio < 0 {
		// late symbols from a previous window can push seen past count
		ratio = 0
	}
	e.estimate = (1-lossSmoothing)*e.estimate + lossSmoothing*ratio
	e.clamp()
}

func (e *LossEstimator) clamp() {
	if e.estimate < e.minLoss {
		e.estimate = e.minLoss
	}
	if e.estimate > 1 {
		e.estimate = 1
	}
}

// Estimate returns the smoothed loss probability.
func (e *LossEstimator) Estimate() float64 {
	return e.estimate
}
