package position

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
	"github.com/variousfoot/apestar-uniswap-auto/internal/pool"
)

var (
	storeToken0 = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	storeToken1 = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	storeOwner  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	storePM     = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
)

type fakePoolSource struct {
	meta      pool.Meta
	allowance *big.Int
}

func (f *fakePoolSource) Meta(context.Context) (pool.Meta, error) {
	return f.meta, nil
}

func (f *fakePoolSource) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return f.allowance, nil
}

type transferCall struct {
	token  common.Address
	to     common.Address
	amount *big.Int
}

type fakeManager struct {
	positions map[string]NFTPosition

	mintTokenID *big.Int
	mintErr     error
	lastMint    MintRequest

	collect0   *big.Int
	collect1   *big.Int
	collectErr error

	decreaseErr error
	burnErr     error

	ownedIDs  []*big.Int
	approved  []common.Address
	decreased []string
	burned    []string
	transfers []transferCall
	ops       []string
}

func (f *fakeManager) Address() common.Address { return storePM }

func (f *fakeManager) Position(_ context.Context, tokenID *big.Int) (NFTPosition, error) {
	p, ok := f.positions[tokenID.String()]
	if !ok {
		return NFTPosition{}, fmt.Errorf("unknown token %s", tokenID)
	}
	return p, nil
}

func (f *fakeManager) OwnedTokenIDs(context.Context, common.Address) ([]*big.Int, error) {
	return f.ownedIDs, nil
}

func (f *fakeManager) Mint(_ context.Context, req MintRequest) (*big.Int, error) {
	f.ops = append(f.ops, "mint")
	f.lastMint = req
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	f.positions[f.mintTokenID.String()] = NFTPosition{
		Position: model.Position{
			TokenID:     f.mintTokenID,
			Range:       req.Range,
			Liquidity:   big.NewInt(777),
			TokensOwed0: big.NewInt(0),
			TokensOwed1: big.NewInt(0),
		},
		Token0: req.Token0,
		Token1: req.Token1,
		Fee:    req.Fee,
	}
	return f.mintTokenID, nil
}

func (f *fakeManager) DecreaseLiquidity(_ context.Context, tokenID, _ *big.Int) error {
	f.ops = append(f.ops, "decrease")
	if f.decreaseErr != nil {
		return f.decreaseErr
	}
	f.decreased = append(f.decreased, tokenID.String())
	return nil
}

func (f *fakeManager) Collect(_ context.Context, tokenID *big.Int) (*big.Int, *big.Int, error) {
	f.ops = append(f.ops, "collect")
	if f.collectErr != nil {
		return nil, nil, f.collectErr
	}
	_ = tokenID
	return new(big.Int).Set(f.collect0), new(big.Int).Set(f.collect1), nil
}

func (f *fakeManager) Burn(_ context.Context, tokenID *big.Int) error {
	f.ops = append(f.ops, "burn")
	if f.burnErr != nil {
		return f.burnErr
	}
	f.burned = append(f.burned, tokenID.String())
	return nil
}

func (f *fakeManager) Approve(_ context.Context, token common.Address, _ *big.Int) error {
	f.approved = append(f.approved, token)
	return nil
}

func (f *fakeManager) TransferToken(_ context.Context, token, to common.Address, amount *big.Int) error {
	f.transfers = append(f.transfers, transferCall{token: token, to: to, amount: amount})
	return nil
}

func newTestStore(cfg Config, manager *fakeManager) *Store {
	source := &fakePoolSource{
		meta: pool.Meta{
			Token0:      storeToken0,
			Token1:      storeToken1,
			Fee:         500,
			TickSpacing: 10,
			Decimals0:   18,
			Decimals1:   6,
		},
		allowance: new(big.Int).Lsh(big.NewInt(1), 200),
	}
	return NewStore(cfg, source, manager, storeOwner, zap.NewNop())
}

func TestStoreCreate(t *testing.T) {
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(42),
	}
	store := newTestStore(Config{RangeWidth: 300, SlippagePercent: 0.5}, manager)

	created, err := store.Create(context.Background(), 1000, big.NewInt(1e18), big.NewInt(3000e6))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if store.CurrentState() != StateActive {
		t.Fatalf("state = %s, want active", store.CurrentState())
	}
	if created.TokenID.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("token id = %s, want 42", created.TokenID)
	}
	if created.Range.Lower != -2000 || created.Range.Upper != 4000 {
		t.Fatalf("range = %+v, want [-2000, 4000]", created.Range)
	}

	// 0.5% slippage: min = desired * 9950 / 10000.
	wantMin0 := big.NewInt(995e15)
	if manager.lastMint.Amount0Min.Cmp(wantMin0) != 0 {
		t.Fatalf("amount0 min = %s, want %s", manager.lastMint.Amount0Min, wantMin0)
	}
}

func TestStoreCreateFromActive(t *testing.T) {
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(42),
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	if _, err := store.Create(context.Background(), 1000, big.NewInt(1), big.NewInt(1)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := store.Create(context.Background(), 1000, big.NewInt(1), big.NewInt(1))
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.State != StateActive {
		t.Fatalf("error state = %s, want active", stateErr.State)
	}
}

func TestStoreCreateMintFailureStaysEmpty(t *testing.T) {
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(42),
		mintErr:     &TransactionError{Op: "mint", Err: errors.New("reverted")},
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	_, err := store.Create(context.Background(), 1000, big.NewInt(1), big.NewInt(1))
	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if store.CurrentState() != StateEmpty {
		t.Fatalf("state = %s, want empty after failed mint", store.CurrentState())
	}
}

func TestStoreClose(t *testing.T) {
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(7),
		collect0:    big.NewInt(100),
		collect1:    big.NewInt(200),
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	if _, err := store.Create(context.Background(), 0, big.NewInt(1), big.NewInt(1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	manager.ops = nil

	amount0, amount1, err := store.Close(context.Background())
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	wantOps := []string{"decrease", "collect", "burn"}
	if len(manager.ops) != len(wantOps) {
		t.Fatalf("ops = %v, want %v", manager.ops, wantOps)
	}
	for i, op := range wantOps {
		if manager.ops[i] != op {
			t.Fatalf("ops = %v, want %v", manager.ops, wantOps)
		}
	}
	if amount0.Cmp(big.NewInt(100)) != 0 || amount1.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("amounts = %s/%s, want 100/200", amount0, amount1)
	}
	if store.CurrentState() != StateEmpty {
		t.Fatalf("state = %s, want empty", store.CurrentState())
	}

	// Second close without an intervening create fails.
	_, _, err = store.Close(context.Background())
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError on double close, got %v", err)
	}
}

func TestStoreClosePartialFailureStaysClosing(t *testing.T) {
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(7),
		collect0:    big.NewInt(0),
		collect1:    big.NewInt(0),
		burnErr:     &TransactionError{Op: "burn", Err: errors.New("reverted")},
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	if _, err := store.Create(context.Background(), 0, big.NewInt(1), big.NewInt(1)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := store.Close(context.Background()); err == nil {
		t.Fatal("expected close failure")
	}
	if store.CurrentState() != StateClosing {
		t.Fatalf("state = %s, want closing for manual recovery", store.CurrentState())
	}
}

func TestStoreCollectFeesSkim(t *testing.T) {
	recipient := common.HexToAddress("0x78d038a8B89Eb58D99ccE6a64f91aA212Afda636")
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(9),
		collect0:    big.NewInt(1000),
		collect1:    big.NewInt(500),
	}
	store := newTestStore(Config{RangeWidth: 300, FeeRecipient: recipient, FeePercent: 20}, manager)

	if _, err := store.Create(context.Background(), 0, big.NewInt(1), big.NewInt(1)); err != nil {
		t.Fatalf("create: %v", err)
	}

	amount0, amount1, err := store.CollectFees(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if amount0.Cmp(big.NewInt(800)) != 0 || amount1.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("user amounts = %s/%s, want 800/400", amount0, amount1)
	}
	if len(manager.transfers) != 2 {
		t.Fatalf("transfers = %d, want 2", len(manager.transfers))
	}
	if manager.transfers[0].to != recipient || manager.transfers[0].amount.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("skim transfer0 = %+v", manager.transfers[0])
	}
}

func TestStoreCollectFromEmpty(t *testing.T) {
	manager := &fakeManager{positions: make(map[string]NFTPosition)}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	_, _, err := store.CollectFees(context.Background())
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestStoreAdopt(t *testing.T) {
	otherToken := common.HexToAddress("0x2222222222222222222222222222222222222222")
	manager := &fakeManager{
		positions: map[string]NFTPosition{
			"5": {
				Position: model.Position{
					TokenID:   big.NewInt(5),
					Range:     model.TickRange{Lower: -100, Upper: 100},
					Liquidity: big.NewInt(1),
				},
				Token0: otherToken,
				Token1: storeToken1,
				Fee:    500,
			},
			"6": {
				Position: model.Position{
					TokenID:   big.NewInt(6),
					Range:     model.TickRange{Lower: -2000, Upper: 4000},
					Liquidity: big.NewInt(999),
				},
				Token0: storeToken0,
				Token1: storeToken1,
				Fee:    500,
			},
		},
		ownedIDs: []*big.Int{big.NewInt(5), big.NewInt(6)},
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	adopted, ok, err := store.Adopt(context.Background())
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if !ok {
		t.Fatal("expected a position to be adopted")
	}
	if adopted.TokenID.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("adopted token = %s, want 6", adopted.TokenID)
	}
	if store.CurrentState() != StateActive {
		t.Fatalf("state = %s, want active", store.CurrentState())
	}
}

func TestStoreAdoptTokenRecoversDrainedPosition(t *testing.T) {
	// An interrupted close leaves the NFT with zero liquidity and nonzero
	// tokensOwed. The wallet scan must skip it, and adopting by token ID
	// must still allow a collect-and-burn close.
	manager := &fakeManager{
		positions: map[string]NFTPosition{
			"11": {
				Position: model.Position{
					TokenID:     big.NewInt(11),
					Range:       model.TickRange{Lower: -2000, Upper: 4000},
					Liquidity:   big.NewInt(0),
					TokensOwed0: big.NewInt(12345),
					TokensOwed1: big.NewInt(67890),
				},
				Token0: storeToken0,
				Token1: storeToken1,
				Fee:    500,
			},
		},
		ownedIDs: []*big.Int{big.NewInt(11)},
		collect0: big.NewInt(12345),
		collect1: big.NewInt(67890),
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	if _, ok, err := store.Adopt(context.Background()); err != nil || ok {
		t.Fatalf("adopt scan = %v ok=%v, want skip of drained position", err, ok)
	}

	adopted, err := store.AdoptToken(context.Background(), big.NewInt(11))
	if err != nil {
		t.Fatalf("adopt token: %v", err)
	}
	if adopted.Liquidity.Sign() != 0 || adopted.TokensOwed0.Cmp(big.NewInt(12345)) != 0 {
		t.Fatalf("adopted = %+v, want drained position with owed amounts", adopted)
	}
	if store.CurrentState() != StateActive {
		t.Fatalf("state = %s, want active", store.CurrentState())
	}

	amount0, amount1, err := store.Close(context.Background())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	wantOps := []string{"collect", "burn"}
	if len(manager.ops) != len(wantOps) || manager.ops[0] != "collect" || manager.ops[1] != "burn" {
		t.Fatalf("ops = %v, want %v (no decrease on zero liquidity)", manager.ops, wantOps)
	}
	if amount0.Cmp(big.NewInt(12345)) != 0 || amount1.Cmp(big.NewInt(67890)) != 0 {
		t.Fatalf("amounts = %s/%s, want 12345/67890", amount0, amount1)
	}
	if store.CurrentState() != StateEmpty {
		t.Fatalf("state = %s, want empty", store.CurrentState())
	}
}

func TestStoreAdoptTokenWrongPool(t *testing.T) {
	otherToken := common.HexToAddress("0x2222222222222222222222222222222222222222")
	manager := &fakeManager{
		positions: map[string]NFTPosition{
			"12": {
				Position: model.Position{
					TokenID:   big.NewInt(12),
					Liquidity: big.NewInt(5),
				},
				Token0: otherToken,
				Token1: storeToken1,
				Fee:    500,
			},
		},
	}
	store := newTestStore(Config{RangeWidth: 300}, manager)

	if _, err := store.AdoptToken(context.Background(), big.NewInt(12)); err == nil {
		t.Fatal("expected error adopting a position from another pool")
	}
	if store.CurrentState() != StateEmpty {
		t.Fatalf("state = %s, want empty", store.CurrentState())
	}
}

func TestStoreApprovalWhenAllowanceShort(t *testing.T) {
	manager := &fakeManager{
		positions:   make(map[string]NFTPosition),
		mintTokenID: big.NewInt(3),
	}
	source := &fakePoolSource{
		meta: pool.Meta{
			Token0:      storeToken0,
			Token1:      storeToken1,
			Fee:         500,
			TickSpacing: 10,
		},
		allowance: big.NewInt(0),
	}
	store := NewStore(Config{RangeWidth: 300}, source, manager, storeOwner, zap.NewNop())

	if _, err := store.Create(context.Background(), 0, big.NewInt(100), big.NewInt(100)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(manager.approved) != 2 {
		t.Fatalf("approved = %v, want both tokens", manager.approved)
	}
}
