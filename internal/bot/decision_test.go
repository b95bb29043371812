package bot

import (
	"testing"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
)

func TestPositionRatio(t *testing.T) {
	r := model.TickRange{Lower: -2000, Upper: 4000}

	tests := []struct {
		tick int32
		want float64
	}{
		{-2000, 0},
		{1000, 0.5},
		{4000, 1},
		{-2600, -0.1},
		{4600, 1.1},
	}
	for _, tt := range tests {
		if got := PositionRatio(tt.tick, r); got != tt.want {
			t.Errorf("PositionRatio(%d) = %v, want %v", tt.tick, got, tt.want)
		}
	}
}

func TestShouldRebalance(t *testing.T) {
	r := model.TickRange{Lower: -2000, Upper: 4000}

	tests := []struct {
		name      string
		tick      int32
		threshold float64
		want      bool
	}{
		{"center", 1000, 80, false},
		{"near upper edge inside range", 3999, 80, true},
		{"outside range", 4500, 80, true},
		{"below range", -2500, 80, true},
		{"at lower bound", -2000, 80, true},
		{"at upper bound", 4000, 80, true},
		{"inner band upper limit", 3400, 80, false},
		{"just past inner band", 3401, 80, true},
		{"inner band lower limit", -1400, 80, false},
		{"just below inner band", -1401, 80, true},
		{"full tolerance in range", 3999, 100, false},
		{"full tolerance out of range", 4500, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRebalance(tt.tick, r, tt.threshold); got != tt.want {
				t.Errorf("ShouldRebalance(%d, %v) = %v, want %v", tt.tick, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestShouldRebalanceDegenerateRange(t *testing.T) {
	if !ShouldRebalance(0, model.TickRange{Lower: 10, Upper: 10}, 80) {
		t.Error("empty range should always rebalance")
	}
}
