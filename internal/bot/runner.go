package bot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
	"github.com/variousfoot/apestar-uniswap-auto/internal/pool"
	"github.com/variousfoot/apestar-uniswap-auto/internal/position"
	"github.com/variousfoot/apestar-uniswap-auto/internal/storage"
	"github.com/variousfoot/apestar-uniswap-auto/internal/tickmath"
)

type poolReader interface {
	Address() common.Address
	Meta(ctx context.Context) (pool.Meta, error)
	ReadState(ctx context.Context) (model.PoolState, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
}

type positionSlot interface {
	CurrentState() position.State
	Active() (model.Position, bool)
	Create(ctx context.Context, centerTick int32, amount0, amount1 *big.Int) (model.Position, error)
	Adopt(ctx context.Context) (model.Position, bool, error)
	Refresh(ctx context.Context) (model.Position, error)
	Close(ctx context.Context) (*big.Int, *big.Int, error)
}

// RunConfig holds runtime settings for the rebalance loop.
type RunConfig struct {
	Owner            common.Address
	CheckInterval    time.Duration
	ThresholdPercent float64
	MaxRetries       int
	RetryBackoff     time.Duration

	// InitialRebalanceSeq is the last sequence number already journaled,
	// so numbering continues across restarts. Zero starts fresh.
	InitialRebalanceSeq int
}

// Runner polls the pool and keeps the position centered on the current tick.
type Runner struct {
	cfg     RunConfig
	reader  poolReader
	slot    positionSlot
	journal storage.Journal
	logger  *zap.Logger

	rebalanceSeq int
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, reader poolReader, slot positionSlot, journal storage.Journal, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = storage.Nop{}
	}
	return &Runner{
		cfg:          cfg,
		reader:       reader,
		slot:         slot,
		journal:      journal,
		logger:       logger,
		rebalanceSeq: cfg.InitialRebalanceSeq,
	}
}

// Run executes the poll loop until the context is cancelled. Individual poll
// failures are logged and retried on the next interval.
func (r *Runner) Run(ctx context.Context) error {
	if r.reader == nil {
		return fmt.Errorf("pool reader is nil")
	}
	if r.slot == nil {
		return fmt.Errorf("position slot is nil")
	}
	if r.cfg.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be greater than zero")
	}

	if r.slot.CurrentState() == position.StateEmpty {
		adopted, ok, err := r.slot.Adopt(ctx)
		if err != nil {
			return fmt.Errorf("adopt position: %w", err)
		}
		if ok {
			r.logger.Info("adopted existing position",
				zap.String("token_id", adopted.TokenID.String()),
				zap.Int32("tick_lower", adopted.Range.Lower),
				zap.Int32("tick_upper", adopted.Range.Upper),
			)
		} else {
			r.logger.Info("no open position, watching pool only")
		}
	}

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		if err := r.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll runs one iteration: read the pool, journal a snapshot, and rebalance
// when the tick has drifted past the threshold.
func (r *Runner) poll(ctx context.Context) error {
	state, err := r.readStateWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("read pool state: %w", err)
	}

	meta, err := r.reader.Meta(ctx)
	if err != nil {
		return fmt.Errorf("read pool meta: %w", err)
	}
	price := tickmath.PriceFromSqrtX96(state.SqrtPriceX96, meta.Decimals0, meta.Decimals1)

	snapshot := model.PoolSnapshot{
		Timestamp:    time.Now().UTC(),
		Pool:         r.reader.Address().Hex(),
		Tick:         state.Tick,
		SqrtPriceX96: state.SqrtPriceX96.String(),
		Liquidity:    state.Liquidity.String(),
		Price:        price,
	}

	active, ok := r.slot.Active()
	if !ok {
		r.logger.Info("pool checked",
			zap.Int32("tick", state.Tick),
			zap.Float64("price", price),
			zap.String("position", "none"),
		)
		r.putSnapshot(ctx, snapshot)
		return nil
	}

	ratio := PositionRatio(state.Tick, active.Range)
	inRange := active.Range.Contains(state.Tick)

	snapshot.TokenID = active.TokenID.String()
	snapshot.TickLower = active.Range.Lower
	snapshot.TickUpper = active.Range.Upper
	snapshot.InRange = inRange
	snapshot.Ratio = ratio
	r.putSnapshot(ctx, snapshot)

	r.logger.Info("pool checked",
		zap.Int32("tick", state.Tick),
		zap.Float64("price", price),
		zap.String("token_id", active.TokenID.String()),
		zap.Bool("in_range", inRange),
		zap.Float64("ratio", ratio),
	)

	if !ShouldRebalance(state.Tick, active.Range, r.cfg.ThresholdPercent) {
		return nil
	}

	return r.rebalance(ctx, active, state.Tick)
}

// rebalance closes the active position and reopens it centered on the
// current tick, funding the new position from the wallet balances freed by
// the close.
func (r *Runner) rebalance(ctx context.Context, old model.Position, triggerTick int32) error {
	r.logger.Info("rebalance triggered",
		zap.Int32("tick", triggerTick),
		zap.String("token_id", old.TokenID.String()),
		zap.Int32("tick_lower", old.Range.Lower),
		zap.Int32("tick_upper", old.Range.Upper),
	)

	amount0, amount1, err := r.slot.Close(ctx)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}

	// The pool may have moved while the close transactions confirmed. Center
	// the new range on a fresh tick.
	state, err := r.readStateWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("read pool state after close: %w", err)
	}

	meta, err := r.reader.Meta(ctx)
	if err != nil {
		return fmt.Errorf("read pool meta: %w", err)
	}
	balance0, err := r.reader.TokenBalance(ctx, meta.Token0, r.cfg.Owner)
	if err != nil {
		return fmt.Errorf("token0 balance: %w", err)
	}
	balance1, err := r.reader.TokenBalance(ctx, meta.Token1, r.cfg.Owner)
	if err != nil {
		return fmt.Errorf("token1 balance: %w", err)
	}

	created, err := r.slot.Create(ctx, state.Tick, balance0, balance1)
	if err != nil {
		return fmt.Errorf("reopen position: %w", err)
	}

	r.rebalanceSeq++
	event := model.RebalanceEvent{
		Timestamp:    time.Now().UTC(),
		Pool:         r.reader.Address().Hex(),
		TriggerTick:  triggerTick,
		OldTokenID:   old.TokenID.String(),
		OldTickLower: old.Range.Lower,
		OldTickUpper: old.Range.Upper,
		NewTokenID:   created.TokenID.String(),
		NewTickLower: created.Range.Lower,
		NewTickUpper: created.Range.Upper,
		Amount0:      amount0.String(),
		Amount1:      amount1.String(),
		RebalanceSeq: r.rebalanceSeq,
	}
	if err := r.journal.PutRebalance(ctx, event); err != nil {
		r.logger.Warn("journal rebalance failed", zap.Error(err))
	}

	r.logger.Info("rebalance complete",
		zap.String("old_token_id", old.TokenID.String()),
		zap.String("new_token_id", created.TokenID.String()),
		zap.Int32("new_tick_lower", created.Range.Lower),
		zap.Int32("new_tick_upper", created.Range.Upper),
	)
	return nil
}

func (r *Runner) readStateWithRetry(ctx context.Context) (model.PoolState, error) {
	var state model.PoolState
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		state, err = r.reader.ReadState(ctx)
		if err != nil {
			r.logger.Warn("pool state read failed", zap.Error(err))
		}
		return err
	})
	return state, err
}

func (r *Runner) putSnapshot(ctx context.Context, snapshot model.PoolSnapshot) {
	if err := r.journal.PutSnapshot(ctx, snapshot); err != nil {
		r.logger.Warn("journal snapshot failed", zap.Error(err))
	}
}
