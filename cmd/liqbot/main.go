package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/variousfoot/apestar-uniswap-auto/internal/chain"
	"github.com/variousfoot/apestar-uniswap-auto/internal/config"
	"github.com/variousfoot/apestar-uniswap-auto/internal/pool"
	"github.com/variousfoot/apestar-uniswap-auto/internal/position"
)

var zeroAddress common.Address

func main() {
	root := &cobra.Command{
		Use:          "liqbot",
		Short:        "Uniswap V3 liquidity rebalance bot for ETH/USDC on Arbitrum",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newPositionsCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newCollectCmd())
	root.AddCommand(newRebalanceCmd())
	root.AddCommand(newCloseCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc-url", "", "Arbitrum RPC URL")
	cmd.Flags().String("private-key", "", "wallet private key (hex)")
	cmd.Flags().String("pool-address", config.DefaultPoolAddress, "V3 pool address")
	cmd.Flags().String("position-manager", config.DefaultPositionManager, "NonfungiblePositionManager address")
	cmd.Flags().Float64("gas-limit-multiplier", 1.2, "gas estimate headroom multiplier")
	cmd.Flags().Float64("max-gas-price-gwei", 0.1, "abort transactions when the fee cap exceeds this, 0 disables")
	cmd.Flags().Float64("slippage-tolerance-percent", 0.5, "mint slippage tolerance")
	cmd.Flags().Int32("tick-range", 300, "range half-width in tick spacings")
	cmd.Flags().Int("max-retries", 5, "maximum RPC retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// app wires the shared dependencies behind every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	client  *chain.Client
	reader  *pool.Reader
	manager *position.Manager
	store   *position.Store
}

func newApp(ctx context.Context, cmd *cobra.Command, needSigner bool) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if needSigner && cfg.PrivateKey == "" {
		return nil, &config.ConfigError{Field: "private-key", Reason: "required for transactions"}
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL, cfg.PrivateKey, cfg.GasLimitMultiplier, cfg.MaxGasPriceGwei)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	reader := pool.NewReader(client, common.HexToAddress(cfg.PoolAddress), logger)

	var sender chain.Sender
	if client.HasSigner() {
		sender = client
	}
	manager := position.NewManager(client, sender, common.HexToAddress(cfg.PositionManager), logger)

	store := position.NewStore(position.Config{
		RangeWidth:      cfg.TickRange,
		SlippagePercent: cfg.SlippageTolerancePercent,
		FeeRecipient:    common.HexToAddress(cfg.FeeRecipient),
		FeePercent:      cfg.FeePercent,
	}, reader, manager, client.From(), logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		reader:  reader,
		manager: manager,
		store:   store,
	}, nil
}

func (a *app) close() {
	a.client.Close()
	a.logger.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
