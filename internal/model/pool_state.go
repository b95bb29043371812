package model

import "math/big"

// PoolState is a read-only snapshot of the pool taken once per poll.
type PoolState struct {
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96"`
	Tick         int32    `json:"tick"`
	TickSpacing  int32    `json:"tick_spacing"`
	Liquidity    *big.Int `json:"liquidity"`
	Fee          uint32   `json:"fee"`
	Token0       string   `json:"token0"`
	Token1       string   `json:"token1"`
}
