package model

import "math/big"

// TickRange is a pair of tick bounds, both aligned to the pool tick spacing.
type TickRange struct {
	Lower int32 `json:"lower"`
	Upper int32 `json:"upper"`
}

// Width returns the range size in ticks.
func (r TickRange) Width() int32 {
	return r.Upper - r.Lower
}

// Contains reports whether tick is inside the range. The upper bound is
// exclusive, matching the pool contract's in-range accounting.
func (r TickRange) Contains(tick int32) bool {
	return tick >= r.Lower && tick < r.Upper
}

// Position mirrors an on-chain position-manager NFT owned by the wallet.
type Position struct {
	TokenID     *big.Int  `json:"token_id"`
	Range       TickRange `json:"range"`
	Liquidity   *big.Int  `json:"liquidity"`
	TokensOwed0 *big.Int  `json:"tokens_owed0"`
	TokensOwed1 *big.Int  `json:"tokens_owed1"`
}
