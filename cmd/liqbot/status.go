package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/variousfoot/apestar-uniswap-auto/internal/amount"
	"github.com/variousfoot/apestar-uniswap-auto/internal/bot"
	"github.com/variousfoot/apestar-uniswap-auto/internal/tickmath"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pool state and wallet balances",
		RunE:  runStatus,
	}
	addCommonFlags(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer app.close()

	meta, err := app.reader.Meta(ctx)
	if err != nil {
		return err
	}
	state, err := app.reader.ReadState(ctx)
	if err != nil {
		return err
	}

	price := tickmath.PriceFromSqrtX96(state.SqrtPriceX96, meta.Decimals0, meta.Decimals1)

	fmt.Printf("pool        %s (%s/%s %.2f%%)\n",
		app.reader.Address().Hex(), meta.Symbol0, meta.Symbol1, float64(meta.Fee)/10000)
	fmt.Printf("tick        %d (spacing %d)\n", state.Tick, state.TickSpacing)
	fmt.Printf("price       %.4f %s per %s\n", price, meta.Symbol1, meta.Symbol0)
	fmt.Printf("liquidity   %s\n", state.Liquidity)

	owner := app.client.From()
	if owner == (zeroAddress) {
		return nil
	}

	native, err := app.client.NativeBalance(ctx, owner)
	if err != nil {
		return err
	}
	balance0, err := app.reader.TokenBalance(ctx, meta.Token0, owner)
	if err != nil {
		return err
	}
	balance1, err := app.reader.TokenBalance(ctx, meta.Token1, owner)
	if err != nil {
		return err
	}

	fmt.Printf("wallet      %s\n", owner.Hex())
	fmt.Printf("  ETH       %s\n", amount.Format(native, 18, 6))
	fmt.Printf("  %-8s  %s\n", meta.Symbol0, amount.Format(balance0, meta.Decimals0, 6))
	fmt.Printf("  %-8s  %s\n", meta.Symbol1, amount.Format(balance1, meta.Decimals1, 2))

	adopted, ok, err := app.store.Adopt(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("position    none")
		return nil
	}

	ratio := bot.PositionRatio(state.Tick, adopted.Range)
	fmt.Printf("position    #%s ticks [%d, %d) liquidity %s\n",
		adopted.TokenID, adopted.Range.Lower, adopted.Range.Upper, adopted.Liquidity)
	fmt.Printf("  in range  %v (ratio %.4f)\n", adopted.Range.Contains(state.Tick), ratio)

	held0, held1 := tickmath.AmountsForLiquidity(
		state.SqrtPriceX96,
		tickmath.SqrtX96FromTick(adopted.Range.Lower),
		tickmath.SqrtX96FromTick(adopted.Range.Upper),
		adopted.Liquidity,
	)
	fmt.Printf("  holds     %s %s + %s %s\n",
		amount.Format(held0, meta.Decimals0, 6), meta.Symbol0,
		amount.Format(held1, meta.Decimals1, 2), meta.Symbol1,
	)
	return nil
}

func newPositionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List the wallet's position NFTs",
		RunE:  runPositions,
	}
	addCommonFlags(cmd)
	return cmd
}

func runPositions(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer app.close()

	owner := app.client.From()
	if owner == (zeroAddress) {
		return fmt.Errorf("private key or wallet address is required to list positions")
	}

	tokenIDs, err := app.manager.OwnedTokenIDs(ctx, owner)
	if err != nil {
		return err
	}
	if len(tokenIDs) == 0 {
		fmt.Println("no positions")
		return nil
	}

	for _, tokenID := range tokenIDs {
		record, err := app.manager.Position(ctx, tokenID)
		if err != nil {
			return err
		}
		fmt.Printf("#%-8s %s/%s fee %d ticks [%d, %d) liquidity %s owed %s/%s\n",
			tokenID,
			record.Token0.Hex(), record.Token1.Hex(), record.Fee,
			record.Range.Lower, record.Range.Upper,
			record.Liquidity, record.TokensOwed0, record.TokensOwed1,
		)
	}
	return nil
}
