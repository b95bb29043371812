package position

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/chain"
	"github.com/variousfoot/apestar-uniswap-auto/internal/model"
	"github.com/variousfoot/apestar-uniswap-auto/internal/pool"
)

// MaxUint128 is the collect-everything sentinel for amount0Max/amount1Max.
var MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const txDeadline = 10 * time.Minute

// NFTPosition is the full on-chain record behind a position NFT.
type NFTPosition struct {
	model.Position
	Token0 common.Address
	Token1 common.Address
	Fee    uint32
}

// MintRequest carries the parameters for a mint transaction.
type MintRequest struct {
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	Range          model.TickRange
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
}

type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type decreaseLiquidityParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// Manager submits and reads NonfungiblePositionManager calls.
type Manager struct {
	caller  chain.Caller
	sender  chain.Sender
	address common.Address
	logger  *zap.Logger
}

// NewManager builds a Manager for the position-manager contract at address.
// sender may be nil for read-only use.
func NewManager(caller chain.Caller, sender chain.Sender, address common.Address, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{caller: caller, sender: sender, address: address, logger: logger}
}

// Address returns the position-manager contract address.
func (m *Manager) Address() common.Address {
	return m.address
}

// Position reads the on-chain record for a token ID.
func (m *Manager) Position(ctx context.Context, tokenID *big.Int) (NFTPosition, error) {
	managerABI, err := ManagerABI()
	if err != nil {
		return NFTPosition{}, fmt.Errorf("parse manager abi: %w", err)
	}

	values, err := chain.Call(ctx, m.caller, m.address, managerABI, "positions", tokenID)
	if err != nil {
		return NFTPosition{}, err
	}
	if len(values) != 12 {
		return NFTPosition{}, fmt.Errorf("positions return size %d", len(values))
	}

	token0, err := chain.AsAddress(values[2])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := chain.AsAddress(values[3])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("token1: %w", err)
	}
	feeBig, err := chain.AsBigInt(values[4])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("fee: %w", err)
	}
	lowerBig, err := chain.AsBigInt(values[5])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("tick lower: %w", err)
	}
	lower, err := chain.Int24FromBig(lowerBig)
	if err != nil {
		return NFTPosition{}, fmt.Errorf("tick lower: %w", err)
	}
	upperBig, err := chain.AsBigInt(values[6])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("tick upper: %w", err)
	}
	upper, err := chain.Int24FromBig(upperBig)
	if err != nil {
		return NFTPosition{}, fmt.Errorf("tick upper: %w", err)
	}
	liquidity, err := chain.AsBigInt(values[7])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("liquidity: %w", err)
	}
	owed0, err := chain.AsBigInt(values[10])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("tokens owed0: %w", err)
	}
	owed1, err := chain.AsBigInt(values[11])
	if err != nil {
		return NFTPosition{}, fmt.Errorf("tokens owed1: %w", err)
	}

	return NFTPosition{
		Position: model.Position{
			TokenID:     new(big.Int).Set(tokenID),
			Range:       model.TickRange{Lower: lower, Upper: upper},
			Liquidity:   liquidity,
			TokensOwed0: owed0,
			TokensOwed1: owed1,
		},
		Token0: token0,
		Token1: token1,
		Fee:    uint32(feeBig.Uint64()),
	}, nil
}

// OwnedTokenIDs enumerates the wallet's position NFTs.
func (m *Manager) OwnedTokenIDs(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	managerABI, err := ManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse manager abi: %w", err)
	}

	values, err := chain.Call(ctx, m.caller, m.address, managerABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, err := chain.AsBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}

	count := balance.Int64()
	tokenIDs := make([]*big.Int, 0, count)
	for i := int64(0); i < count; i++ {
		values, err := chain.Call(ctx, m.caller, m.address, managerABI, "tokenOfOwnerByIndex", owner, big.NewInt(i))
		if err != nil {
			return nil, err
		}
		tokenID, err := chain.AsBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex: %w", err)
		}
		tokenIDs = append(tokenIDs, tokenID)
	}

	return tokenIDs, nil
}

// Mint submits a mint transaction and returns the new token ID, parsed from
// the ERC-721 Transfer log in the receipt.
func (m *Manager) Mint(ctx context.Context, req MintRequest) (*big.Int, error) {
	managerABI, err := ManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse manager abi: %w", err)
	}
	if m.sender == nil {
		return nil, &TransactionError{Op: "mint", Err: fmt.Errorf("no sender configured")}
	}

	data, err := managerABI.Pack("mint", mintParams{
		Token0:         req.Token0,
		Token1:         req.Token1,
		Fee:            new(big.Int).SetUint64(uint64(req.Fee)),
		TickLower:      big.NewInt(int64(req.Range.Lower)),
		TickUpper:      big.NewInt(int64(req.Range.Upper)),
		Amount0Desired: req.Amount0Desired,
		Amount1Desired: req.Amount1Desired,
		Amount0Min:     req.Amount0Min,
		Amount1Min:     req.Amount1Min,
		Recipient:      m.sender.From(),
		Deadline:       deadline(),
	})
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}

	receipt, err := m.sender.Send(ctx, m.address, data, nil)
	if err != nil {
		return nil, &TransactionError{Op: "mint", TxHash: receiptHash(receipt), Err: err}
	}

	tokenID, err := tokenIDFromReceipt(receipt)
	if err != nil {
		return nil, &TransactionError{Op: "mint", TxHash: receipt.TxHash, Err: err}
	}

	m.logger.Info("position minted",
		zap.String("token_id", tokenID.String()),
		zap.Int32("tick_lower", req.Range.Lower),
		zap.Int32("tick_upper", req.Range.Upper),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return tokenID, nil
}

// DecreaseLiquidity removes the given liquidity from a position. The removed
// principal becomes tokensOwed and is paid out by a following collect.
func (m *Manager) DecreaseLiquidity(ctx context.Context, tokenID, liquidity *big.Int) error {
	managerABI, err := ManagerABI()
	if err != nil {
		return fmt.Errorf("parse manager abi: %w", err)
	}
	if m.sender == nil {
		return &TransactionError{Op: "decrease liquidity", Err: fmt.Errorf("no sender configured")}
	}

	data, err := managerABI.Pack("decreaseLiquidity", decreaseLiquidityParams{
		TokenId:    tokenID,
		Liquidity:  liquidity,
		Amount0Min: big.NewInt(0),
		Amount1Min: big.NewInt(0),
		Deadline:   deadline(),
	})
	if err != nil {
		return fmt.Errorf("pack decreaseLiquidity: %w", err)
	}

	receipt, err := m.sender.Send(ctx, m.address, data, nil)
	if err != nil {
		return &TransactionError{Op: "decrease liquidity", TxHash: receiptHash(receipt), Err: err}
	}

	m.logger.Info("liquidity decreased",
		zap.String("token_id", tokenID.String()),
		zap.String("liquidity", liquidity.String()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return nil
}

// Collect pays out all tokens owed to the wallet and returns the collected
// amounts, parsed from the Collect log in the receipt.
func (m *Manager) Collect(ctx context.Context, tokenID *big.Int) (*big.Int, *big.Int, error) {
	managerABI, err := ManagerABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse manager abi: %w", err)
	}
	if m.sender == nil {
		return nil, nil, &TransactionError{Op: "collect", Err: fmt.Errorf("no sender configured")}
	}

	data, err := managerABI.Pack("collect", collectParams{
		TokenId:    tokenID,
		Recipient:  m.sender.From(),
		Amount0Max: MaxUint128,
		Amount1Max: MaxUint128,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pack collect: %w", err)
	}

	receipt, err := m.sender.Send(ctx, m.address, data, nil)
	if err != nil {
		return nil, nil, &TransactionError{Op: "collect", TxHash: receiptHash(receipt), Err: err}
	}

	amount0, amount1, err := collectedFromReceipt(managerABI, receipt, tokenID)
	if err != nil {
		return nil, nil, &TransactionError{Op: "collect", TxHash: receipt.TxHash, Err: err}
	}

	m.logger.Info("fees collected",
		zap.String("token_id", tokenID.String()),
		zap.String("amount0", amount0.String()),
		zap.String("amount1", amount1.String()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return amount0, amount1, nil
}

// Burn destroys a position NFT. The position must have zero liquidity and
// zero tokens owed.
func (m *Manager) Burn(ctx context.Context, tokenID *big.Int) error {
	managerABI, err := ManagerABI()
	if err != nil {
		return fmt.Errorf("parse manager abi: %w", err)
	}
	if m.sender == nil {
		return &TransactionError{Op: "burn", Err: fmt.Errorf("no sender configured")}
	}

	data, err := managerABI.Pack("burn", tokenID)
	if err != nil {
		return fmt.Errorf("pack burn: %w", err)
	}

	receipt, err := m.sender.Send(ctx, m.address, data, nil)
	if err != nil {
		return &TransactionError{Op: "burn", TxHash: receiptHash(receipt), Err: err}
	}

	m.logger.Info("position burned",
		zap.String("token_id", tokenID.String()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return nil
}

// Approve grants the position manager spending rights on an ERC-20 token.
func (m *Manager) Approve(ctx context.Context, token common.Address, amount *big.Int) error {
	tokenABI, err := pool.ERC20ABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	if m.sender == nil {
		return &TransactionError{Op: "approve", Err: fmt.Errorf("no sender configured")}
	}
	if amount == nil {
		amount = maxUint256
	}

	data, err := tokenABI.Pack("approve", m.address, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}

	receipt, err := m.sender.Send(ctx, token, data, nil)
	if err != nil {
		return &TransactionError{Op: "approve", TxHash: receiptHash(receipt), Err: err}
	}

	m.logger.Info("token approved",
		zap.String("token", token.Hex()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return nil
}

// TransferToken sends an ERC-20 amount from the wallet to a recipient.
func (m *Manager) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) error {
	tokenABI, err := pool.ERC20ABI()
	if err != nil {
		return fmt.Errorf("parse erc20 abi: %w", err)
	}
	if m.sender == nil {
		return &TransactionError{Op: "transfer", Err: fmt.Errorf("no sender configured")}
	}

	data, err := tokenABI.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}

	receipt, err := m.sender.Send(ctx, token, data, nil)
	if err != nil {
		return &TransactionError{Op: "transfer", TxHash: receiptHash(receipt), Err: err}
	}
	return nil
}

func deadline() *big.Int {
	return big.NewInt(time.Now().Add(txDeadline).Unix())
}

func receiptHash(receipt *types.Receipt) common.Hash {
	if receipt == nil {
		return common.Hash{}
	}
	return receipt.TxHash
}

var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// tokenIDFromReceipt finds the ERC-721 Transfer log for a mint (from the
// zero address) and extracts the token ID from its third topic.
func tokenIDFromReceipt(receipt *types.Receipt) (*big.Int, error) {
	for _, log := range receipt.Logs {
		if len(log.Topics) != 4 || log.Topics[0] != transferTopic {
			continue
		}
		if log.Topics[1] != (common.Hash{}) {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[3].Bytes()), nil
	}
	return nil, fmt.Errorf("no mint Transfer log in receipt")
}

func collectedFromReceipt(managerABI abi.ABI, receipt *types.Receipt, tokenID *big.Int) (*big.Int, *big.Int, error) {
	collectID := managerABI.Events["Collect"].ID
	for _, log := range receipt.Logs {
		if len(log.Topics) != 2 || log.Topics[0] != collectID {
			continue
		}
		if new(big.Int).SetBytes(log.Topics[1].Bytes()).Cmp(tokenID) != 0 {
			continue
		}
		values, err := managerABI.Events["Collect"].Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack Collect log: %w", err)
		}
		if len(values) != 3 {
			return nil, nil, fmt.Errorf("Collect log size %d", len(values))
		}
		amount0, err := chain.AsBigInt(values[1])
		if err != nil {
			return nil, nil, fmt.Errorf("amount0: %w", err)
		}
		amount1, err := chain.AsBigInt(values[2])
		if err != nil {
			return nil, nil, fmt.Errorf("amount1: %w", err)
		}
		return amount0, amount1, nil
	}
	return nil, nil, fmt.Errorf("no Collect log in receipt")
}
