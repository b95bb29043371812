package storage

import (
	"context"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
)

// Journal is a sink for the bot's poll snapshots and rebalance records.
type Journal interface {
	PutSnapshot(ctx context.Context, snapshot model.PoolSnapshot) error
	PutRebalance(ctx context.Context, event model.RebalanceEvent) error
}

// Nop is a Journal that discards everything.
type Nop struct{}

func (Nop) PutSnapshot(context.Context, model.PoolSnapshot) error { return nil }

func (Nop) PutRebalance(context.Context, model.RebalanceEvent) error { return nil }
