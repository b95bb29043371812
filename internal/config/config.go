package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Arbitrum One mainnet defaults for the ETH/USDC 0.05% pool.
const (
	DefaultPoolAddress     = "0xC6962004f452bE9203591991D15f6b388e09E8D0"
	DefaultPositionManager = "0xC36442b4a4522E871399CD717aBDD847Ab11FE88"
	DefaultFeeRecipient    = "0x78d038a8B89Eb58D99ccE6a64f91aA212Afda636"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	PrivateKey      string
	PoolAddress     string
	PositionManager string

	TickRange                 int32
	CheckIntervalSeconds      int
	RebalanceThresholdPercent float64
	SlippageTolerancePercent  float64
	GasLimitMultiplier        float64
	MaxGasPriceGwei           float64

	FeeRecipient string
	FeePercent   int

	SnapshotOut  string
	RebalanceOut string
	PgDSN        string

	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// ConfigError reports an invalid or missing configuration value. It is
// always fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Load merges config file, environment variables, and flags into Config.
// Environment variables carry no prefix, so RPC_URL maps to rpc-url.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pool-address", DefaultPoolAddress)
	v.SetDefault("position-manager", DefaultPositionManager)
	v.SetDefault("tick-range", 300)
	v.SetDefault("check-interval-seconds", 60)
	v.SetDefault("rebalance-threshold-percent", 80.0)
	v.SetDefault("slippage-tolerance-percent", 0.5)
	v.SetDefault("gas-limit-multiplier", 1.2)
	v.SetDefault("max-gas-price-gwei", 0.1)
	v.SetDefault("fee-recipient", DefaultFeeRecipient)
	v.SetDefault("fee-percent", 20)
	v.SetDefault("snapshot-out", "./data/snapshots.jsonl")
	v.SetDefault("rebalance-out", "./data/rebalances.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:                    v.GetString("rpc-url"),
		PrivateKey:                strings.TrimPrefix(v.GetString("private-key"), "0x"),
		PoolAddress:               v.GetString("pool-address"),
		PositionManager:           v.GetString("position-manager"),
		TickRange:                 v.GetInt32("tick-range"),
		CheckIntervalSeconds:      v.GetInt("check-interval-seconds"),
		RebalanceThresholdPercent: v.GetFloat64("rebalance-threshold-percent"),
		SlippageTolerancePercent:  v.GetFloat64("slippage-tolerance-percent"),
		GasLimitMultiplier:        v.GetFloat64("gas-limit-multiplier"),
		MaxGasPriceGwei:           v.GetFloat64("max-gas-price-gwei"),
		FeeRecipient:              v.GetString("fee-recipient"),
		FeePercent:                v.GetInt("fee-percent"),
		SnapshotOut:               v.GetString("snapshot-out"),
		RebalanceOut:              v.GetString("rebalance-out"),
		PgDSN:                     v.GetString("pg-dsn"),
		MaxRetries:                v.GetInt("max-retries"),
		RetryBackoff:              v.GetDuration("retry-backoff"),
		LogLevel:                  v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks that the loaded values can drive the bot. All violations
// are ConfigError and abort startup.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return &ConfigError{Field: "rpc-url", Reason: "required"}
	}
	if !common.IsHexAddress(c.PoolAddress) {
		return &ConfigError{Field: "pool-address", Reason: "not a hex address"}
	}
	if !common.IsHexAddress(c.PositionManager) {
		return &ConfigError{Field: "position-manager", Reason: "not a hex address"}
	}
	if c.TickRange <= 0 {
		return &ConfigError{Field: "tick-range", Reason: "must be greater than zero"}
	}
	if c.CheckIntervalSeconds <= 0 {
		return &ConfigError{Field: "check-interval-seconds", Reason: "must be greater than zero"}
	}
	if c.RebalanceThresholdPercent <= 0 || c.RebalanceThresholdPercent > 100 {
		return &ConfigError{Field: "rebalance-threshold-percent", Reason: "must be in (0, 100]"}
	}
	if c.SlippageTolerancePercent < 0 || c.SlippageTolerancePercent >= 100 {
		return &ConfigError{Field: "slippage-tolerance-percent", Reason: "must be in [0, 100)"}
	}
	if c.GasLimitMultiplier < 1 {
		return &ConfigError{Field: "gas-limit-multiplier", Reason: "must be at least 1"}
	}
	if c.MaxGasPriceGwei < 0 {
		return &ConfigError{Field: "max-gas-price-gwei", Reason: "must not be negative"}
	}
	if c.FeePercent < 0 || c.FeePercent > 100 {
		return &ConfigError{Field: "fee-percent", Reason: "must be in [0, 100]"}
	}
	if c.FeePercent > 0 && !common.IsHexAddress(c.FeeRecipient) {
		return &ConfigError{Field: "fee-recipient", Reason: "not a hex address"}
	}
	return nil
}

// CheckInterval returns the poll interval as a duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}
