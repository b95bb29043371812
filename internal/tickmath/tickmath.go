package tickmath

import (
	"math"
	"math/big"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
)

// Protocol tick bounds for Uniswap V3 pools.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Q96 is the fixed-point scale used by sqrtPriceX96.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// PriceFromTick converts a tick index to a human-readable token1-per-token0
// price: 1.0001^tick adjusted by the token decimal difference. Float64
// precision is sufficient for display over the full protocol tick range.
func PriceFromTick(tick int32, decimals0, decimals1 uint8) float64 {
	price := math.Pow(1.0001, float64(tick))
	return price * math.Pow(10, float64(decimals0)-float64(decimals1))
}

// TickFromPrice is the inverse of PriceFromTick, floored to the nearest tick.
func TickFromPrice(price float64, decimals0, decimals1 uint8) int32 {
	adjusted := price / math.Pow(10, float64(decimals0)-float64(decimals1))
	return int32(math.Floor(math.Log(adjusted) / math.Log(1.0001)))
}

// PriceFromSqrtX96 converts a pool sqrtPriceX96 value to a human-readable
// price: (sqrtPriceX96 / 2^96)^2 adjusted by the decimal difference.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(Q96))
	sqrtPrice, _ := ratio.Float64()
	return sqrtPrice * sqrtPrice * math.Pow(10, float64(decimals0)-float64(decimals1))
}

// SqrtX96FromTick converts a tick to its Q64.96 sqrt price representation.
func SqrtX96FromTick(tick int32) *big.Int {
	sqrtPrice := math.Sqrt(math.Pow(1.0001, float64(tick)))
	scaled := new(big.Float).Mul(big.NewFloat(sqrtPrice), new(big.Float).SetInt(Q96))
	out, _ := scaled.Int(nil)
	return out
}

// AlignTick rounds tick down to a multiple of spacing. Negative ticks floor
// toward negative infinity, not toward zero.
func AlignTick(tick, spacing int32) int32 {
	quot := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		quot--
	}
	return quot * spacing
}

// ComputeRange builds a tick range symmetric around the aligned center:
// rangeWidth tick-spacing multiples on each side. Symmetry holds in tick
// units only, since price is exponential in tick.
func ComputeRange(centerTick, spacing, rangeWidth int32) model.TickRange {
	aligned := AlignTick(centerTick, spacing)
	return model.TickRange{
		Lower: aligned - rangeWidth*spacing,
		Upper: aligned + rangeWidth*spacing,
	}
}
