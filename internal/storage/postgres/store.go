package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
)

// Store provides Postgres persistence for the bot journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutSnapshot inserts one poll snapshot.
func (s *Store) PutSnapshot(ctx context.Context, snapshot model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			ts, pool_address, tick, sqrt_price_x96, liquidity, price,
			token_id, tick_lower, tick_upper, in_range, ratio
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		snapshot.Timestamp,
		snapshot.Pool,
		snapshot.Tick,
		snapshot.SqrtPriceX96,
		snapshot.Liquidity,
		snapshot.Price,
		snapshot.TokenID,
		snapshot.TickLower,
		snapshot.TickUpper,
		snapshot.InRange,
		snapshot.Ratio,
	)
	return err
}

// PutRebalance inserts one rebalance record.
func (s *Store) PutRebalance(ctx context.Context, event model.RebalanceEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rebalances (
			ts, pool_address, trigger_tick, old_token_id, old_tick_lower, old_tick_upper,
			new_token_id, new_tick_lower, new_tick_upper, amount0, amount1, rebalance_seq
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		event.Timestamp,
		event.Pool,
		event.TriggerTick,
		event.OldTokenID,
		event.OldTickLower,
		event.OldTickUpper,
		event.NewTokenID,
		event.NewTickLower,
		event.NewTickUpper,
		event.Amount0,
		event.Amount1,
		event.RebalanceSeq,
	)
	return err
}

// LastRebalanceSeq returns the highest recorded rebalance sequence number
// for a pool, or zero when none exist.
func (s *Store) LastRebalanceSeq(ctx context.Context, poolAddress string) (int, error) {
	var seq int
	row := s.pool.QueryRow(ctx, `
		SELECT rebalance_seq FROM rebalances
		WHERE pool_address = $1
		ORDER BY rebalance_seq DESC LIMIT 1
	`, poolAddress)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return seq, nil
}
