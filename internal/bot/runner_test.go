package bot

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
	"github.com/variousfoot/apestar-uniswap-auto/internal/pool"
	"github.com/variousfoot/apestar-uniswap-auto/internal/position"
	"github.com/variousfoot/apestar-uniswap-auto/internal/tickmath"
)

var (
	runToken0 = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	runToken1 = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	runOwner  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	runPool   = common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0")
)

type fakeReader struct {
	states []model.PoolState
	idx    int
}

func (f *fakeReader) Address() common.Address { return runPool }

func (f *fakeReader) Meta(context.Context) (pool.Meta, error) {
	return pool.Meta{
		Token0:      runToken0,
		Token1:      runToken1,
		Fee:         500,
		TickSpacing: 10,
		Decimals0:   18,
		Decimals1:   6,
	}, nil
}

func (f *fakeReader) ReadState(context.Context) (model.PoolState, error) {
	state := f.states[f.idx]
	if f.idx < len(f.states)-1 {
		f.idx++
	}
	return state, nil
}

func (f *fakeReader) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	if token == runToken0 {
		return big.NewInt(5e17), nil
	}
	return big.NewInt(1500e6), nil
}

type fakeSlot struct {
	state  position.State
	active model.Position

	adoptCalled  bool
	closeCalled  bool
	closeErr     error
	createCenter int32
	created      *model.Position
}

func (f *fakeSlot) CurrentState() position.State { return f.state }

func (f *fakeSlot) Active() (model.Position, bool) {
	if f.state != position.StateActive {
		return model.Position{}, false
	}
	return f.active, true
}

func (f *fakeSlot) Create(_ context.Context, centerTick int32, _, _ *big.Int) (model.Position, error) {
	f.createCenter = centerTick
	created := model.Position{
		TokenID:   big.NewInt(100),
		Range:     tickmath.ComputeRange(centerTick, 10, 300),
		Liquidity: big.NewInt(1),
	}
	f.created = &created
	f.state = position.StateActive
	f.active = created
	return created, nil
}

func (f *fakeSlot) Adopt(context.Context) (model.Position, bool, error) {
	f.adoptCalled = true
	return model.Position{}, false, nil
}

func (f *fakeSlot) Refresh(context.Context) (model.Position, error) {
	return f.active, nil
}

func (f *fakeSlot) Close(context.Context) (*big.Int, *big.Int, error) {
	f.closeCalled = true
	if f.closeErr != nil {
		return nil, nil, f.closeErr
	}
	f.state = position.StateEmpty
	return big.NewInt(111), big.NewInt(222), nil
}

type fakeJournal struct {
	snapshots  []model.PoolSnapshot
	rebalances []model.RebalanceEvent
}

func (f *fakeJournal) PutSnapshot(_ context.Context, s model.PoolSnapshot) error {
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeJournal) PutRebalance(_ context.Context, e model.RebalanceEvent) error {
	f.rebalances = append(f.rebalances, e)
	return nil
}

func poolState(tick int32) model.PoolState {
	return model.PoolState{
		SqrtPriceX96: tickmath.SqrtX96FromTick(tick),
		Tick:         tick,
		TickSpacing:  10,
		Liquidity:    big.NewInt(1e15),
		Fee:          500,
	}
}

func newTestRunner(reader *fakeReader, slot *fakeSlot, journal *fakeJournal) *Runner {
	cfg := RunConfig{
		Owner:            runOwner,
		CheckInterval:    time.Minute,
		ThresholdPercent: 80,
	}
	return NewRunner(cfg, reader, slot, journal, zap.NewNop())
}

func TestPollNoPosition(t *testing.T) {
	reader := &fakeReader{states: []model.PoolState{poolState(1000)}}
	slot := &fakeSlot{state: position.StateEmpty}
	journal := &fakeJournal{}
	runner := newTestRunner(reader, slot, journal)

	if err := runner.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if slot.closeCalled || slot.created != nil {
		t.Fatal("no transactions expected without a position")
	}
	if len(journal.snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(journal.snapshots))
	}
	if journal.snapshots[0].TokenID != "" {
		t.Fatalf("snapshot token id = %q, want empty", journal.snapshots[0].TokenID)
	}
}

func TestPollHoldsNearCenter(t *testing.T) {
	reader := &fakeReader{states: []model.PoolState{poolState(1000)}}
	slot := &fakeSlot{
		state: position.StateActive,
		active: model.Position{
			TokenID:   big.NewInt(7),
			Range:     model.TickRange{Lower: -2000, Upper: 4000},
			Liquidity: big.NewInt(1),
		},
	}
	journal := &fakeJournal{}
	runner := newTestRunner(reader, slot, journal)

	if err := runner.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if slot.closeCalled {
		t.Fatal("position should be held near the range center")
	}
	if len(journal.snapshots) != 1 || !journal.snapshots[0].InRange {
		t.Fatalf("snapshots = %+v", journal.snapshots)
	}
}

func TestPollRebalancesOnDrift(t *testing.T) {
	// First read triggers the rebalance, second is the fresh tick after the
	// close confirms.
	reader := &fakeReader{states: []model.PoolState{poolState(4500), poolState(4600)}}
	slot := &fakeSlot{
		state: position.StateActive,
		active: model.Position{
			TokenID:   big.NewInt(7),
			Range:     model.TickRange{Lower: -2000, Upper: 4000},
			Liquidity: big.NewInt(1),
		},
	}
	journal := &fakeJournal{}
	runner := newTestRunner(reader, slot, journal)

	if err := runner.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !slot.closeCalled {
		t.Fatal("close expected")
	}
	if slot.created == nil {
		t.Fatal("create expected")
	}
	if slot.createCenter != 4600 {
		t.Fatalf("create center = %d, want fresh tick 4600", slot.createCenter)
	}

	if len(journal.rebalances) != 1 {
		t.Fatalf("rebalances = %d, want 1", len(journal.rebalances))
	}
	event := journal.rebalances[0]
	if event.TriggerTick != 4500 {
		t.Fatalf("trigger tick = %d, want 4500", event.TriggerTick)
	}
	if event.OldTokenID != "7" || event.NewTokenID != "100" {
		t.Fatalf("event tokens = %s -> %s", event.OldTokenID, event.NewTokenID)
	}
	if event.Amount0 != "111" || event.Amount1 != "222" {
		t.Fatalf("event amounts = %s/%s", event.Amount0, event.Amount1)
	}
	if event.RebalanceSeq != 1 {
		t.Fatalf("seq = %d, want 1", event.RebalanceSeq)
	}
}

func TestRebalanceSeqContinuesAcrossRestart(t *testing.T) {
	reader := &fakeReader{states: []model.PoolState{poolState(4500), poolState(4600)}}
	slot := &fakeSlot{
		state: position.StateActive,
		active: model.Position{
			TokenID:   big.NewInt(7),
			Range:     model.TickRange{Lower: -2000, Upper: 4000},
			Liquidity: big.NewInt(1),
		},
	}
	journal := &fakeJournal{}
	runner := NewRunner(RunConfig{
		Owner:               runOwner,
		CheckInterval:       time.Minute,
		ThresholdPercent:    80,
		InitialRebalanceSeq: 41,
	}, reader, slot, journal, zap.NewNop())

	if err := runner.poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(journal.rebalances) != 1 {
		t.Fatalf("rebalances = %d, want 1", len(journal.rebalances))
	}
	if got := journal.rebalances[0].RebalanceSeq; got != 42 {
		t.Fatalf("seq = %d, want 42 after seeding with 41", got)
	}
}

func TestPollCloseFailureReturnsError(t *testing.T) {
	reader := &fakeReader{states: []model.PoolState{poolState(4500)}}
	slot := &fakeSlot{
		state: position.StateActive,
		active: model.Position{
			TokenID:   big.NewInt(7),
			Range:     model.TickRange{Lower: -2000, Upper: 4000},
			Liquidity: big.NewInt(1),
		},
		closeErr: errors.New("tx reverted"),
	}
	journal := &fakeJournal{}
	runner := newTestRunner(reader, slot, journal)

	if err := runner.poll(context.Background()); err == nil {
		t.Fatal("expected error from failed close")
	}
	if slot.created != nil {
		t.Fatal("no create expected after failed close")
	}
	if len(journal.rebalances) != 0 {
		t.Fatal("no rebalance event expected after failed close")
	}
}

func TestRunAdoptsOnStart(t *testing.T) {
	reader := &fakeReader{states: []model.PoolState{poolState(1000)}}
	slot := &fakeSlot{state: position.StateEmpty}
	runner := NewRunner(RunConfig{
		Owner:            runOwner,
		CheckInterval:    10 * time.Millisecond,
		ThresholdPercent: 80,
	}, reader, slot, &fakeJournal{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := runner.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run returned %v, want deadline exceeded", err)
	}
	if !slot.adoptCalled {
		t.Fatal("adopt expected at startup")
	}
}

func TestWithRetryBacksOff(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryExhausts(t *testing.T) {
	wantErr := errors.New("permanent")
	err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("withRetry = %v, want %v", err, wantErr)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	tests := []struct {
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{500 * time.Millisecond, 0, 500 * time.Millisecond},
		{500 * time.Millisecond, 1, time.Second},
		{500 * time.Millisecond, 2, 2 * time.Second},
		{500 * time.Millisecond, 6, maxRetryDelay},
		{time.Second, 100, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.base, tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%v, %d) = %v, want %v", tt.base, tt.attempt, got, tt.want)
		}
	}
}
