package congestion

import (
	"time"

	"github.com/squallnet/squall/internal/protocol"
)

// RateController derives the group swap interval and the per-group
// check-symbol budget from the loss and delay estimators.
type RateController struct {
	loss       *LossEstimator
	delay      *DelayEstimator
	targetLoss float64
	interval   time.Duration
}

func NewRateController(targetLoss, minLoss float64, minDelay, maxDelay time.Duration) *RateController {
	c := &RateController{
		loss:       NewLossEstimator(minLoss),
		delay:      NewDelayEstimator(minDelay, maxDelay),
		targetLoss: targetLoss,
	}
	c.CalculateInterval()
	return c
}

// UpdateRTT folds a round-trip sample from a statistics report into
// the delay estimate.
func (c *RateController) UpdateRTT(sample time.Duration) {
	c.delay.Update(sample)
}

// UpdateLoss folds a seen/count window from a statistics report into
// the loss estimate.
func (c *RateController) UpdateLoss(seen, count uint32) {
	c.loss.Update(seen, count)
}

// CalculateInterval sets the swap interval to the delay estimate,
// which the estimator already keeps inside the configured bounds. A
// shorter interval reacts faster to channel changes at the price of
// per-group overhead.
func (c *RateController) CalculateInterval() time.Duration {
	c.interval = c.delay.Estimate()
	return c.interval
}

// Interval returns the current swap interval.
func (c *RateController) Interval() time.Duration {
	return c.interval
}

// LossEstimate returns the smoothed loss probability.
func (c *RateController) LossEstimate() float64 {
	return c.loss.Estimate()
}

// DelayEstimate returns the smoothed round-trip time.
func (c *RateController) DelayEstimate() time.Duration {
	return c.delay.Estimate()
}

// CheckSymbolBudget returns the number of check symbols for a group of
// n data symbols: the smallest budget b for which the probability that
// more than b of the n+b symbols are lost stays at or under the target
// loss. The budget never drops below one so isolated bursts on a clean
// channel can still be repaired, and is capped both when the channel
// is so lossy that no reasonable redundancy reaches the target and by
// the symbol field of the erasure code.
func (c *RateController) CheckSymbolBudget(n int) int {
	if n <= 0 {
		return 0
	}
	p := c.loss.Estimate()
	maxBudget := 3*n + 16
	if n+maxBudget > protocol.MaxGroupSymbols {
		maxBudget = protocol.MaxGroupSymbols - n
	}
	if maxBudget < 1 {
		return 1
	}
	for b := 1; b < maxBudget; b++ {
		if binomialTail(n+b, b, p) <= c.targetLoss {
			return b
		}
	}
	return maxBudget
}

// binomialTail computes P[X > k] for X ~ Binomial(total, p) by summing
// the mass above k. The probabilities are built incrementally from the
// zero term, which stays well inside float64 range for the group sizes
// used here.
func binomialTail(total, k int, p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	q := 1 - p
	pmf := 1.0
	for i := 0; i < total; i++ {
		pmf *= q
	}
	var cdf float64
	for i := 0; i <= k; i++ {
		cdf += pmf
		pmf *= float64(total-i) / float64(i+1) * (p / q)
	}
	if cdf > 1 {
		cdf = 1
	}
	return 1 - cdf
}
