package model

import "time"

// PoolSnapshot records one poll iteration for the journal.
type PoolSnapshot struct {
	Timestamp    time.Time `json:"ts"`
	Pool         string    `json:"pool"`
	Tick         int32     `json:"tick"`
	SqrtPriceX96 string    `json:"sqrt_price_x96"`
	Liquidity    string    `json:"liquidity"`
	Price        float64   `json:"price"`
	TokenID      string    `json:"token_id,omitempty"`
	TickLower    int32     `json:"tick_lower,omitempty"`
	TickUpper    int32     `json:"tick_upper,omitempty"`
	InRange      bool      `json:"in_range,omitempty"`
	Ratio        float64   `json:"ratio,omitempty"`
}

// RebalanceEvent records one close-and-reopen cycle.
type RebalanceEvent struct {
	Timestamp    time.Time `json:"ts"`
	Pool         string    `json:"pool"`
	TriggerTick  int32     `json:"trigger_tick"`
	OldTokenID   string    `json:"old_token_id"`
	OldTickLower int32     `json:"old_tick_lower"`
	OldTickUpper int32     `json:"old_tick_upper"`
	NewTokenID   string    `json:"new_token_id"`
	NewTickLower int32     `json:"new_tick_lower"`
	NewTickUpper int32     `json:"new_tick_upper"`
	Amount0      string    `json:"amount0"`
	Amount1      string    `json:"amount1"`
	RebalanceSeq int       `json:"rebalance_seq"`
}
