package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/variousfoot/apestar-uniswap-auto/internal/amount"
	"github.com/variousfoot/apestar-uniswap-auto/internal/bot"
	"github.com/variousfoot/apestar-uniswap-auto/internal/config"
	"github.com/variousfoot/apestar-uniswap-auto/internal/tickmath"
)

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a position centered on the current tick",
		RunE:  runCreate,
	}
	addCommonFlags(cmd)
	cmd.Flags().String("amount0", "0", "token0 amount in display units")
	cmd.Flags().String("amount1", "0", "token1 amount in display units")
	return cmd
}

func runCreate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.close()

	meta, err := app.reader.Meta(ctx)
	if err != nil {
		return err
	}

	amount0Flag, _ := cmd.Flags().GetString("amount0")
	amount1Flag, _ := cmd.Flags().GetString("amount1")
	amount0, err := amount.Parse(amount0Flag, meta.Decimals0)
	if err != nil {
		return err
	}
	amount1, err := amount.Parse(amount1Flag, meta.Decimals1)
	if err != nil {
		return err
	}
	if amount0.Sign() == 0 && amount1.Sign() == 0 {
		return fmt.Errorf("at least one of --amount0/--amount1 is required")
	}

	state, err := app.reader.ReadState(ctx)
	if err != nil {
		return err
	}

	preview := tickmath.ComputeRange(state.Tick, meta.TickSpacing, app.cfg.TickRange)
	estimate := tickmath.LiquidityForAmounts(
		state.SqrtPriceX96,
		tickmath.SqrtX96FromTick(preview.Lower),
		tickmath.SqrtX96FromTick(preview.Upper),
		amount0, amount1,
	)
	fmt.Printf("minting into [%d, %d), estimated liquidity %s\n",
		preview.Lower, preview.Upper, estimate)

	created, err := app.store.Create(ctx, state.Tick, amount0, amount1)
	if err != nil {
		return err
	}

	fmt.Printf("minted position #%s ticks [%d, %d)\n",
		created.TokenID, created.Range.Lower, created.Range.Upper)
	return nil
}

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect accrued fees from the open position",
		RunE:  runCollect,
	}
	addCommonFlags(cmd)
	cmd.Flags().String("fee-recipient", config.DefaultFeeRecipient, "protocol fee recipient")
	cmd.Flags().Int("fee-percent", 20, "protocol fee percent taken from collections")
	return cmd
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.close()

	if err := adoptOrFail(ctx, app); err != nil {
		return err
	}

	amount0, amount1, err := app.store.CollectFees(ctx)
	if err != nil {
		return err
	}

	meta, err := app.reader.Meta(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("collected %s %s and %s %s\n",
		amount.Format(amount0, meta.Decimals0, 6), meta.Symbol0,
		amount.Format(amount1, meta.Decimals1, 2), meta.Symbol1,
	)
	return nil
}

func newCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the open position and collect everything",
		RunE:  runClose,
	}
	addCommonFlags(cmd)
	cmd.Flags().String("token-id", "", "close this position NFT instead of scanning the wallet")
	cmd.Flags().String("fee-recipient", config.DefaultFeeRecipient, "protocol fee recipient")
	cmd.Flags().Int("fee-percent", 20, "protocol fee percent taken from collections")
	return cmd
}

func runClose(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.close()

	// An explicit token ID reaches NFTs the wallet scan skips, in particular
	// a drained position left behind by an interrupted close.
	if tokenIDFlag, _ := cmd.Flags().GetString("token-id"); tokenIDFlag != "" {
		tokenID, ok := new(big.Int).SetString(tokenIDFlag, 10)
		if !ok {
			return fmt.Errorf("invalid --token-id %q", tokenIDFlag)
		}
		if _, err := app.store.AdoptToken(ctx, tokenID); err != nil {
			return err
		}
	} else if err := adoptOrFail(ctx, app); err != nil {
		return err
	}

	amount0, amount1, err := app.store.Close(ctx)
	if err != nil {
		return err
	}

	meta, err := app.reader.Meta(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("closed position, returned %s %s and %s %s\n",
		amount.Format(amount0, meta.Decimals0, 6), meta.Symbol0,
		amount.Format(amount1, meta.Decimals1, 2), meta.Symbol1,
	)
	return nil
}

func newRebalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Close and reopen the position centered on the current tick",
		RunE:  runRebalance,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("force", false, "rebalance even when the tick is inside the threshold")
	cmd.Flags().Float64("rebalance-threshold-percent", 80, "tolerated drift as percent of the half-range")
	cmd.Flags().String("fee-recipient", config.DefaultFeeRecipient, "protocol fee recipient")
	cmd.Flags().Int("fee-percent", 20, "protocol fee percent taken from collections")
	return cmd
}

func runRebalance(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.close()

	if err := adoptOrFail(ctx, app); err != nil {
		return err
	}

	active, ok := app.store.Active()
	if !ok {
		return fmt.Errorf("no open position")
	}

	state, err := app.reader.ReadState(ctx)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if !force && !bot.ShouldRebalance(state.Tick, active.Range, app.cfg.RebalanceThresholdPercent) {
		fmt.Printf("tick %d is inside the threshold for [%d, %d), nothing to do\n",
			state.Tick, active.Range.Lower, active.Range.Upper)
		return nil
	}

	if _, _, err := app.store.Close(ctx); err != nil {
		return err
	}

	meta, err := app.reader.Meta(ctx)
	if err != nil {
		return err
	}
	owner := app.client.From()
	balance0, err := app.reader.TokenBalance(ctx, meta.Token0, owner)
	if err != nil {
		return err
	}
	balance1, err := app.reader.TokenBalance(ctx, meta.Token1, owner)
	if err != nil {
		return err
	}

	state, err = app.reader.ReadState(ctx)
	if err != nil {
		return err
	}

	created, err := app.store.Create(ctx, state.Tick, balance0, balance1)
	if err != nil {
		return err
	}

	fmt.Printf("rebalanced: old #%s, new #%s ticks [%d, %d)\n",
		active.TokenID, created.TokenID, created.Range.Lower, created.Range.Upper)
	return nil
}

func adoptOrFail(ctx context.Context, app *app) error {
	_, ok, err := app.store.Adopt(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no open position for wallet %s", app.client.From().Hex())
	}
	return nil
}
