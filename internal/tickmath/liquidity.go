package tickmath

import "math/big"

// LiquidityForAmounts computes the liquidity minted for the desired token
// amounts at the current sqrt price, per the pool's LiquidityAmounts library.
func LiquidityForAmounts(sqrtPriceX96, sqrtPriceAX96, sqrtPriceBX96, amount0, amount1 *big.Int) *big.Int {
	sqrtPriceAX96, sqrtPriceBX96 = sortSqrtPrices(sqrtPriceAX96, sqrtPriceBX96)

	switch {
	case sqrtPriceX96.Cmp(sqrtPriceAX96) <= 0:
		// Below range: all token0.
		return liquidityForAmount0(sqrtPriceAX96, sqrtPriceBX96, amount0)
	case sqrtPriceX96.Cmp(sqrtPriceBX96) >= 0:
		// Above range: all token1.
		return liquidityForAmount1(sqrtPriceAX96, sqrtPriceBX96, amount1)
	default:
		liquidity0 := liquidityForAmount0(sqrtPriceX96, sqrtPriceBX96, amount0)
		liquidity1 := liquidityForAmount1(sqrtPriceAX96, sqrtPriceX96, amount1)
		if liquidity0.Cmp(liquidity1) < 0 {
			return liquidity0
		}
		return liquidity1
	}
}

// AmountsForLiquidity computes the token amounts a position of the given
// liquidity holds at the current sqrt price.
func AmountsForLiquidity(sqrtPriceX96, sqrtPriceAX96, sqrtPriceBX96, liquidity *big.Int) (*big.Int, *big.Int) {
	sqrtPriceAX96, sqrtPriceBX96 = sortSqrtPrices(sqrtPriceAX96, sqrtPriceBX96)

	switch {
	case sqrtPriceX96.Cmp(sqrtPriceAX96) <= 0:
		return amount0ForLiquidity(sqrtPriceAX96, sqrtPriceBX96, liquidity), big.NewInt(0)
	case sqrtPriceX96.Cmp(sqrtPriceBX96) >= 0:
		return big.NewInt(0), amount1ForLiquidity(sqrtPriceAX96, sqrtPriceBX96, liquidity)
	default:
		amount0 := amount0ForLiquidity(sqrtPriceX96, sqrtPriceBX96, liquidity)
		amount1 := amount1ForLiquidity(sqrtPriceAX96, sqrtPriceX96, liquidity)
		return amount0, amount1
	}
}

func liquidityForAmount0(sqrtPriceAX96, sqrtPriceBX96, amount0 *big.Int) *big.Int {
	sqrtPriceAX96, sqrtPriceBX96 = sortSqrtPrices(sqrtPriceAX96, sqrtPriceBX96)

	intermediate := new(big.Int).Mul(sqrtPriceAX96, sqrtPriceBX96)
	intermediate.Div(intermediate, Q96)

	num := new(big.Int).Mul(amount0, intermediate)
	den := new(big.Int).Sub(sqrtPriceBX96, sqrtPriceAX96)
	return num.Div(num, den)
}

func liquidityForAmount1(sqrtPriceAX96, sqrtPriceBX96, amount1 *big.Int) *big.Int {
	sqrtPriceAX96, sqrtPriceBX96 = sortSqrtPrices(sqrtPriceAX96, sqrtPriceBX96)

	num := new(big.Int).Mul(amount1, Q96)
	den := new(big.Int).Sub(sqrtPriceBX96, sqrtPriceAX96)
	return num.Div(num, den)
}

func amount0ForLiquidity(sqrtPriceAX96, sqrtPriceBX96, liquidity *big.Int) *big.Int {
	sqrtPriceAX96, sqrtPriceBX96 = sortSqrtPrices(sqrtPriceAX96, sqrtPriceBX96)

	out := new(big.Int).Mul(liquidity, Q96)
	out.Mul(out, new(big.Int).Sub(sqrtPriceBX96, sqrtPriceAX96))
	out.Div(out, sqrtPriceBX96)
	return out.Div(out, sqrtPriceAX96)
}

func amount1ForLiquidity(sqrtPriceAX96, sqrtPriceBX96, liquidity *big.Int) *big.Int {
	sqrtPriceAX96, sqrtPriceBX96 = sortSqrtPrices(sqrtPriceAX96, sqrtPriceBX96)

	out := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtPriceBX96, sqrtPriceAX96))
	return out.Div(out, Q96)
}

func sortSqrtPrices(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}
