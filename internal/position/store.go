package position

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
	"github.com/variousfoot/apestar-uniswap-auto/internal/pool"
	"github.com/variousfoot/apestar-uniswap-auto/internal/tickmath"
)

// State is the position slot's lifecycle state.
type State int

const (
	// StateEmpty means no position is tracked.
	StateEmpty State = iota
	// StateActive means one live position is tracked.
	StateActive
	// StateClosing means a close sequence started and has not finished.
	// Recovery is manual; the bot never resumes a close on its own.
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// contractManager is the slice of Manager the store drives.
type contractManager interface {
	Position(ctx context.Context, tokenID *big.Int) (NFTPosition, error)
	OwnedTokenIDs(ctx context.Context, owner common.Address) ([]*big.Int, error)
	Mint(ctx context.Context, req MintRequest) (*big.Int, error)
	DecreaseLiquidity(ctx context.Context, tokenID, liquidity *big.Int) error
	Collect(ctx context.Context, tokenID *big.Int) (*big.Int, *big.Int, error)
	Burn(ctx context.Context, tokenID *big.Int) error
	Approve(ctx context.Context, token common.Address, amount *big.Int) error
	TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) error
	Address() common.Address
}

// poolSource is the slice of pool.Reader the store needs.
type poolSource interface {
	Meta(ctx context.Context) (pool.Meta, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Config holds position-sizing policy.
type Config struct {
	// RangeWidth is the number of tick-spacing multiples on each side of
	// the aligned center tick.
	RangeWidth int32
	// SlippagePercent shrinks desired amounts into mint minimums.
	SlippagePercent float64
	// FeeRecipient receives FeePercent of every collection; zero address
	// disables the skim.
	FeeRecipient common.Address
	FeePercent   int
}

// Store tracks the single position slot as an explicit state machine:
// Empty -> Active via Create or Adopt, Active -> Closing -> Empty via Close.
type Store struct {
	cfg     Config
	reader  poolSource
	manager contractManager
	owner   common.Address
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	position model.Position
}

// NewStore builds a Store in the Empty state.
func NewStore(cfg Config, reader poolSource, manager contractManager, owner common.Address, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:     cfg,
		reader:  reader,
		manager: manager,
		owner:   owner,
		logger:  logger,
		state:   StateEmpty,
	}
}

// CurrentState returns the slot state.
func (s *Store) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns the tracked position when the slot is active.
func (s *Store) Active() (model.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return model.Position{}, false
	}
	return s.position, true
}

// Create mints a new position centered on centerTick. Valid only from Empty;
// the slot stays Empty when the mint fails.
func (s *Store) Create(ctx context.Context, centerTick int32, amount0, amount1 *big.Int) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEmpty {
		return model.Position{}, &InvalidStateError{Op: "create", State: s.state}
	}

	meta, err := s.reader.Meta(ctx)
	if err != nil {
		return model.Position{}, err
	}

	tickRange := tickmath.ComputeRange(centerTick, meta.TickSpacing, s.cfg.RangeWidth)

	if err := s.ensureApprovals(ctx, meta, amount0, amount1); err != nil {
		return model.Position{}, err
	}

	tokenID, err := s.manager.Mint(ctx, MintRequest{
		Token0:         meta.Token0,
		Token1:         meta.Token1,
		Fee:            meta.Fee,
		Range:          tickRange,
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     applySlippage(amount0, s.cfg.SlippagePercent),
		Amount1Min:     applySlippage(amount1, s.cfg.SlippagePercent),
	})
	if err != nil {
		return model.Position{}, err
	}

	created := model.Position{
		TokenID:     tokenID,
		Range:       tickRange,
		Liquidity:   big.NewInt(0),
		TokensOwed0: big.NewInt(0),
		TokensOwed1: big.NewInt(0),
	}
	if onchain, err := s.manager.Position(ctx, tokenID); err == nil {
		created = onchain.Position
	} else {
		s.logger.Warn("position readback failed after mint", zap.Error(err))
	}

	s.state = StateActive
	s.position = created
	return created, nil
}

// Adopt scans the wallet's position NFTs and, when one matches this pool and
// still holds liquidity, tracks it. Valid only from Empty. Returns false when
// no position matched. Drained NFTs are skipped; AdoptToken re-attaches those.
func (s *Store) Adopt(ctx context.Context) (model.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEmpty {
		return model.Position{}, false, &InvalidStateError{Op: "adopt", State: s.state}
	}

	meta, err := s.reader.Meta(ctx)
	if err != nil {
		return model.Position{}, false, err
	}

	tokenIDs, err := s.manager.OwnedTokenIDs(ctx, s.owner)
	if err != nil {
		return model.Position{}, false, err
	}

	for _, tokenID := range tokenIDs {
		onchain, err := s.manager.Position(ctx, tokenID)
		if err != nil {
			return model.Position{}, false, err
		}
		if onchain.Token0 != meta.Token0 || onchain.Token1 != meta.Token1 || onchain.Fee != meta.Fee {
			continue
		}
		if onchain.Liquidity.Sign() == 0 {
			continue
		}
		s.state = StateActive
		s.position = onchain.Position
		s.logger.Info("adopted existing position",
			zap.String("token_id", tokenID.String()),
			zap.Int32("tick_lower", onchain.Range.Lower),
			zap.Int32("tick_upper", onchain.Range.Upper),
		)
		return onchain.Position, true, nil
	}

	return model.Position{}, false, nil
}

// AdoptToken tracks a specific wallet NFT by token ID, even when its
// liquidity is zero. A close that failed between decreaseLiquidity and burn
// leaves exactly that shape, zero liquidity with principal still owed, which
// Adopt's scan skips. Valid only from Empty.
func (s *Store) AdoptToken(ctx context.Context, tokenID *big.Int) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEmpty {
		return model.Position{}, &InvalidStateError{Op: "adopt", State: s.state}
	}

	meta, err := s.reader.Meta(ctx)
	if err != nil {
		return model.Position{}, err
	}

	onchain, err := s.manager.Position(ctx, tokenID)
	if err != nil {
		return model.Position{}, err
	}
	if onchain.Token0 != meta.Token0 || onchain.Token1 != meta.Token1 || onchain.Fee != meta.Fee {
		return model.Position{}, fmt.Errorf("token %s is not a position in this pool", tokenID)
	}

	s.state = StateActive
	s.position = onchain.Position
	s.logger.Info("adopted position by token id",
		zap.String("token_id", tokenID.String()),
		zap.String("liquidity", onchain.Liquidity.String()),
	)
	return onchain.Position, nil
}

// Refresh re-reads the active position from chain.
func (s *Store) Refresh(ctx context.Context) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return model.Position{}, &InvalidStateError{Op: "refresh", State: s.state}
	}

	onchain, err := s.manager.Position(ctx, s.position.TokenID)
	if err != nil {
		return model.Position{}, err
	}
	s.position = onchain.Position
	return onchain.Position, nil
}

// CollectFees collects all accrued fees from the active position. Liquidity
// and range are unchanged. Collecting again with no new fees yields zeros.
func (s *Store) CollectFees(ctx context.Context) (*big.Int, *big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, nil, &InvalidStateError{Op: "collect", State: s.state}
	}
	return s.collectWithSkim(ctx, s.position.TokenID)
}

// Close runs decreaseLiquidity(100%) -> collect -> burn and empties the slot
// only after all three succeed. On partial failure the slot stays Closing
// for manual recovery; the returned amounts are the wallet's share of the
// collected principal plus fees.
func (s *Store) Close(ctx context.Context) (*big.Int, *big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, nil, &InvalidStateError{Op: "close", State: s.state}
	}

	tokenID := s.position.TokenID
	s.state = StateClosing

	onchain, err := s.manager.Position(ctx, tokenID)
	if err != nil {
		return nil, nil, err
	}

	if onchain.Liquidity.Sign() > 0 {
		if err := s.manager.DecreaseLiquidity(ctx, tokenID, onchain.Liquidity); err != nil {
			return nil, nil, err
		}
	}

	amount0, amount1, err := s.collectWithSkim(ctx, tokenID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.manager.Burn(ctx, tokenID); err != nil {
		return nil, nil, err
	}

	s.state = StateEmpty
	s.position = model.Position{}
	s.logger.Info("position closed",
		zap.String("token_id", tokenID.String()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
	)
	return amount0, amount1, nil
}

func (s *Store) collectWithSkim(ctx context.Context, tokenID *big.Int) (*big.Int, *big.Int, error) {
	amount0, amount1, err := s.manager.Collect(ctx, tokenID)
	if err != nil {
		return nil, nil, err
	}
	if s.cfg.FeePercent <= 0 || s.cfg.FeeRecipient == (common.Address{}) {
		return amount0, amount1, nil
	}

	meta, err := s.reader.Meta(ctx)
	if err != nil {
		return nil, nil, err
	}

	pct := big.NewInt(int64(s.cfg.FeePercent))
	fee0 := new(big.Int).Div(new(big.Int).Mul(amount0, pct), big.NewInt(100))
	fee1 := new(big.Int).Div(new(big.Int).Mul(amount1, pct), big.NewInt(100))

	if fee0.Sign() > 0 {
		if err := s.manager.TransferToken(ctx, meta.Token0, s.cfg.FeeRecipient, fee0); err != nil {
			return nil, nil, err
		}
		amount0 = new(big.Int).Sub(amount0, fee0)
	}
	if fee1.Sign() > 0 {
		if err := s.manager.TransferToken(ctx, meta.Token1, s.cfg.FeeRecipient, fee1); err != nil {
			return nil, nil, err
		}
		amount1 = new(big.Int).Sub(amount1, fee1)
	}

	return amount0, amount1, nil
}

func (s *Store) ensureApprovals(ctx context.Context, meta pool.Meta, amount0, amount1 *big.Int) error {
	spender := s.manager.Address()
	for _, pair := range []struct {
		token  common.Address
		amount *big.Int
	}{
		{meta.Token0, amount0},
		{meta.Token1, amount1},
	} {
		if pair.amount == nil || pair.amount.Sign() == 0 {
			continue
		}
		allowance, err := s.reader.Allowance(ctx, pair.token, s.owner, spender)
		if err != nil {
			return err
		}
		if allowance.Cmp(pair.amount) >= 0 {
			continue
		}
		s.logger.Info("approving token", zap.String("token", pair.token.Hex()))
		if err := s.manager.Approve(ctx, pair.token, nil); err != nil {
			return err
		}
	}
	return nil
}

func applySlippage(amount *big.Int, slippagePercent float64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	// Basis-point integer math to keep the bound exact.
	bps := int64(slippagePercent * 100)
	if bps < 0 {
		bps = 0
	}
	if bps > 10000 {
		bps = 10000
	}
	out := new(big.Int).Mul(amount, big.NewInt(10000-bps))
	return out.Div(out, big.NewInt(10000))
}
