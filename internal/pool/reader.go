package pool

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/chain"
	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
)

// Meta holds the pool's immutable metadata, fetched once and cached.
type Meta struct {
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int32
	Decimals0   uint8
	Decimals1   uint8
	Symbol0     string
	Symbol1     string
}

// Reader queries pool state with read-only contract calls.
type Reader struct {
	caller  chain.Caller
	address common.Address
	logger  *zap.Logger

	mu   sync.Mutex
	meta *Meta
}

// NewReader builds a Reader for the pool at address.
func NewReader(caller chain.Caller, address common.Address, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, address: address, logger: logger}
}

// Address returns the pool contract address.
func (r *Reader) Address() common.Address {
	return r.address
}

// Meta returns the pool's immutable metadata, fetching it on first use.
func (r *Reader) Meta(ctx context.Context) (Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meta != nil {
		return *r.meta, nil
	}

	meta, err := r.fetchMeta(ctx)
	if err != nil {
		return Meta{}, err
	}
	r.meta = &meta
	r.logger.Debug("pool meta loaded",
		zap.String("token0", meta.Token0.Hex()),
		zap.String("token1", meta.Token1.Hex()),
		zap.Uint32("fee", meta.Fee),
		zap.Int32("tick_spacing", meta.TickSpacing),
	)
	return meta, nil
}

// ReadState fetches a fresh pool snapshot: slot0, liquidity, and the cached
// immutable metadata. Never returns stale data; any call failure surfaces to
// the caller.
func (r *Reader) ReadState(ctx context.Context) (model.PoolState, error) {
	meta, err := r.Meta(ctx)
	if err != nil {
		return model.PoolState{}, err
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := chain.Call(ctx, r.caller, r.address, poolABI, "slot0")
	if err != nil {
		return model.PoolState{}, err
	}
	if len(values) < 2 {
		return model.PoolState{}, fmt.Errorf("slot0 return size %d", len(values))
	}
	sqrtPriceX96, err := chain.AsBigInt(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("sqrt price: %w", err)
	}
	tickBig, err := chain.AsBigInt(values[1])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := chain.Int24FromBig(tickBig)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}

	values, err = chain.Call(ctx, r.caller, r.address, poolABI, "liquidity")
	if err != nil {
		return model.PoolState{}, err
	}
	liquidity, err := chain.AsBigInt(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("liquidity: %w", err)
	}

	return model.PoolState{
		SqrtPriceX96: sqrtPriceX96,
		Tick:         tick,
		TickSpacing:  meta.TickSpacing,
		Liquidity:    liquidity,
		Fee:          meta.Fee,
		Token0:       meta.Token0.Hex(),
		Token1:       meta.Token1.Hex(),
	}, nil
}

// TokenBalance returns an ERC-20 balance.
func (r *Reader) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	tokenABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := chain.Call(ctx, r.caller, token, tokenABI, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	balance, err := chain.AsBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return balance, nil
}

// Allowance returns an ERC-20 allowance.
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	tokenABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := chain.Call(ctx, r.caller, token, tokenABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	allowance, err := chain.AsBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return allowance, nil
}

func (r *Reader) fetchMeta(ctx context.Context) (Meta, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return Meta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := chain.Call(ctx, r.caller, r.address, poolABI, "token0")
	if err != nil {
		return Meta{}, err
	}
	token0, err := chain.AsAddress(values[0])
	if err != nil {
		return Meta{}, fmt.Errorf("token0: %w", err)
	}

	values, err = chain.Call(ctx, r.caller, r.address, poolABI, "token1")
	if err != nil {
		return Meta{}, err
	}
	token1, err := chain.AsAddress(values[0])
	if err != nil {
		return Meta{}, fmt.Errorf("token1: %w", err)
	}

	values, err = chain.Call(ctx, r.caller, r.address, poolABI, "fee")
	if err != nil {
		return Meta{}, err
	}
	feeBig, err := chain.AsBigInt(values[0])
	if err != nil {
		return Meta{}, fmt.Errorf("fee: %w", err)
	}

	values, err = chain.Call(ctx, r.caller, r.address, poolABI, "tickSpacing")
	if err != nil {
		return Meta{}, err
	}
	spacingBig, err := chain.AsBigInt(values[0])
	if err != nil {
		return Meta{}, fmt.Errorf("tick spacing: %w", err)
	}
	tickSpacing, err := chain.Int24FromBig(spacingBig)
	if err != nil {
		return Meta{}, fmt.Errorf("tick spacing: %w", err)
	}

	meta := Meta{
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(feeBig.Uint64()),
		TickSpacing: tickSpacing,
	}

	meta.Decimals0, meta.Symbol0, err = r.fetchTokenMeta(ctx, token0)
	if err != nil {
		return Meta{}, fmt.Errorf("token0 meta: %w", err)
	}
	meta.Decimals1, meta.Symbol1, err = r.fetchTokenMeta(ctx, token1)
	if err != nil {
		return Meta{}, fmt.Errorf("token1 meta: %w", err)
	}

	return meta, nil
}

func (r *Reader) fetchTokenMeta(ctx context.Context, token common.Address) (uint8, string, error) {
	tokenABI, err := ERC20ABI()
	if err != nil {
		return 0, "", fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := chain.Call(ctx, r.caller, token, tokenABI, "decimals")
	if err != nil {
		return 0, "", err
	}
	decimals, err := chain.AsUint8(values[0])
	if err != nil {
		return 0, "", fmt.Errorf("decimals: %w", err)
	}

	symbol := ""
	if values, err := chain.Call(ctx, r.caller, token, tokenABI, "symbol"); err == nil {
		if s, ok := values[0].(string); ok {
			symbol = s
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return decimals, symbol, nil
}
