package bot

import "github.com/variousfoot/apestar-uniswap-auto/internal/model"

// PositionRatio places a tick inside a range as a fraction: 0 at the lower
// bound, 1 at the upper bound. Values outside [0, 1] mean the tick left the
// range.
func PositionRatio(tick int32, r model.TickRange) float64 {
	width := r.Upper - r.Lower
	if width <= 0 {
		return 0
	}
	return float64(tick-r.Lower) / float64(width)
}

// ShouldRebalance reports whether the current tick has drifted far enough
// from the range center to warrant a close-and-reopen. thresholdPercent is
// the tolerated drift as a percentage of the half-range: with 80, the
// position is rebalanced once the tick leaves the middle 80% of the range.
// A tick outside the range always triggers.
func ShouldRebalance(tick int32, r model.TickRange, thresholdPercent float64) bool {
	if r.Upper <= r.Lower {
		return true
	}
	if !r.Contains(tick) {
		return true
	}

	t := thresholdPercent / 100
	ratio := PositionRatio(tick, r)
	return ratio < (1-t)/2 || ratio > (1+t)/2
}
