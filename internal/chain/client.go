package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Sender submits state-changing contract calls and waits for inclusion.
type Sender interface {
	Send(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error)
	From() common.Address
}

// Client wraps go-ethereum RPC and provides read-call and send-transaction
// helpers. The signer is optional; read-only commands run without one.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	chainID       *big.Int
	transactOpts  *bind.TransactOpts
	gasMultiplier float64
	maxFeePerGas  *big.Int
}

// NewClient creates a chain client from the RPC URL. privateKeyHex may be
// empty, in which case Send returns an error. maxFeeGwei bounds the fee cap
// of submitted transactions; zero disables the bound.
func NewClient(ctx context.Context, rpcURL, privateKeyHex string, gasMultiplier, maxFeeGwei float64) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &RPCError{Op: "dial", Err: err}
	}

	ethClient := ethclient.NewClient(rpcClient)
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, &RPCError{Op: "chain id", Err: err}
	}

	client := &Client{
		rpcClient:     rpcClient,
		ethClient:     ethClient,
		chainID:       chainID,
		gasMultiplier: gasMultiplier,
	}
	if client.gasMultiplier < 1 {
		client.gasMultiplier = 1
	}
	if maxFeeGwei > 0 {
		client.maxFeePerGas = gweiToWei(maxFeeGwei)
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("build transactor: %w", err)
		}
		client.transactOpts = opts
	}

	return client, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// From returns the signer address, or the zero address without a signer.
func (c *Client) From() common.Address {
	if c.transactOpts == nil {
		return common.Address{}
	}
	return c.transactOpts.From
}

// HasSigner reports whether the client can submit transactions.
func (c *Client) HasSigner() bool {
	return c.transactOpts != nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, &RPCError{Op: "call", Err: err}
	}
	return out, nil
}

// NativeBalance returns an account's native ETH balance.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.ethClient.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, &RPCError{Op: "balance", Err: err}
	}
	return balance, nil
}

// Send builds, signs, and submits a transaction to the given contract and
// waits for its receipt. A mined-but-reverted transaction is returned with
// its receipt and an error so callers can report the tx hash.
func (c *Client) Send(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if c.transactOpts == nil {
		return nil, fmt.Errorf("no signer configured")
	}

	from := c.transactOpts.From
	nonce, err := c.ethClient.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, &RPCError{Op: "nonce", Err: err}
	}

	gasTipCap, err := c.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, &RPCError{Op: "gas tip", Err: err}
	}
	head, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, &RPCError{Op: "head", Err: err}
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	if err := c.checkFeeCap(gasFeeCap); err != nil {
		return nil, err
	}

	gasLimit, err := c.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, &RPCError{Op: "estimate gas", Err: err}
	}
	gasLimit = uint64(float64(gasLimit) * c.gasMultiplier)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := c.transactOpts.Signer(from, tx)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return nil, &RPCError{Op: "send tx", Err: err}
	}

	receipt, err := bind.WaitMined(ctx, c.ethClient, signed)
	if err != nil {
		return nil, &RPCError{Op: "wait mined", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}

	return receipt, nil
}

// checkFeeCap rejects a transaction whose fee cap exceeds the configured
// maximum, leaving it to the next poll to retry under calmer gas.
func (c *Client) checkFeeCap(gasFeeCap *big.Int) error {
	if c.maxFeePerGas == nil {
		return nil
	}
	if gasFeeCap.Cmp(c.maxFeePerGas) > 0 {
		return fmt.Errorf("gas fee cap %s wei exceeds maximum %s wei", gasFeeCap, c.maxFeePerGas)
	}
	return nil
}

func gweiToWei(gwei float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}
