package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/variousfoot/apestar-uniswap-auto/internal/bot"
	"github.com/variousfoot/apestar-uniswap-auto/internal/config"
	"github.com/variousfoot/apestar-uniswap-auto/internal/storage"
	"github.com/variousfoot/apestar-uniswap-auto/internal/storage/postgres"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the rebalance loop",
		RunE:  runBot,
	}
	addCommonFlags(cmd)
	cmd.Flags().Int("check-interval-seconds", 60, "seconds between pool checks")
	cmd.Flags().Float64("rebalance-threshold-percent", 80, "tolerated drift as percent of the half-range")
	cmd.Flags().String("fee-recipient", config.DefaultFeeRecipient, "protocol fee recipient")
	cmd.Flags().Int("fee-percent", 20, "protocol fee percent taken from collections")
	cmd.Flags().String("snapshot-out", "./data/snapshots.jsonl", "snapshot journal JSONL path")
	cmd.Flags().String("rebalance-out", "./data/rebalances.jsonl", "rebalance journal JSONL path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the journal")
	return cmd
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer app.close()

	var journal storage.Journal
	var lastSeq int
	if app.cfg.PgDSN != "" {
		pgStore, err := postgres.NewStore(ctx, app.cfg.PgDSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		journal = pgStore

		// Continue the sequence numbering from earlier runs.
		lastSeq, err = pgStore.LastRebalanceSeq(ctx, app.reader.Address().Hex())
		if err != nil {
			return err
		}
	} else {
		journal = storage.NewJsonlJournal(app.cfg.SnapshotOut, app.cfg.RebalanceOut)
	}

	runner := bot.NewRunner(bot.RunConfig{
		Owner:               app.client.From(),
		CheckInterval:       app.cfg.CheckInterval(),
		ThresholdPercent:    app.cfg.RebalanceThresholdPercent,
		MaxRetries:          app.cfg.MaxRetries,
		RetryBackoff:        app.cfg.RetryBackoff,
		InitialRebalanceSeq: lastSeq,
	}, app.reader, app.store, journal, app.logger)

	app.logger.Info("bot start",
		zap.String("pool", app.cfg.PoolAddress),
		zap.String("wallet", app.client.From().Hex()),
		zap.Int32("tick_range", app.cfg.TickRange),
		zap.Int("check_interval_s", app.cfg.CheckIntervalSeconds),
		zap.Float64("threshold_percent", app.cfg.RebalanceThresholdPercent),
	)

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		app.logger.Info("bot stopped")
		return nil
	}
	return err
}
