package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/config"
	"cpamm/internal/host"
	"cpamm/internal/ledger"
	"cpamm/internal/model"
	"cpamm/internal/replay"
	"cpamm/internal/state"
	"cpamm/internal/storage"
	"cpamm/internal/storage/postgres"
)

func runCreatePool(cmd *cobra.Command, _ []string) error {
	op := model.Operation{Kind: model.OpCreatePool}
	op.Caller, _ = cmd.Flags().GetString("caller")
	op.AssetA, _ = cmd.Flags().GetString("asset-a")
	op.AssetB, _ = cmd.Flags().GetString("asset-b")
	op.FeeRateBps, _ = cmd.Flags().GetUint16("fee-rate-bps")
	return runOperation(cmd, op)
}

func runFund(cmd *cobra.Command, _ []string) error {
	op := model.Operation{Kind: model.OpFund}
	op.Caller, _ = cmd.Flags().GetString("owner")
	op.Asset, _ = cmd.Flags().GetString("asset")
	op.Amount, _ = cmd.Flags().GetUint64("amount")
	return runOperation(cmd, op)
}

func runAddLiquidity(cmd *cobra.Command, _ []string) error {
	op := poolOperation(cmd, model.OpAddLiquidity)
	op.AmountADesired, _ = cmd.Flags().GetUint64("amount-a")
	op.AmountBDesired, _ = cmd.Flags().GetUint64("amount-b")
	op.AmountAMin, _ = cmd.Flags().GetUint64("amount-a-min")
	op.AmountBMin, _ = cmd.Flags().GetUint64("amount-b-min")
	return runOperation(cmd, op)
}

func runRemoveLiquidity(cmd *cobra.Command, _ []string) error {
	op := poolOperation(cmd, model.OpRemoveLiquidity)
	op.Shares, _ = cmd.Flags().GetUint64("shares")
	op.AmountAMin, _ = cmd.Flags().GetUint64("amount-a-min")
	op.AmountBMin, _ = cmd.Flags().GetUint64("amount-b-min")
	return runOperation(cmd, op)
}

func runSwap(cmd *cobra.Command, _ []string) error {
	op := poolOperation(cmd, model.OpSwap)
	op.AmountIn, _ = cmd.Flags().GetUint64("amount-in")
	op.MinimumAmountOut, _ = cmd.Flags().GetUint64("min-out")
	op.Direction, _ = cmd.Flags().GetString("direction")
	return runOperation(cmd, op)
}

func poolOperation(cmd *cobra.Command, kind string) model.Operation {
	op := model.Operation{Kind: kind}
	op.Caller, _ = cmd.Flags().GetString("caller")
	op.Pool, _ = cmd.Flags().GetString("pool")
	op.AssetA, _ = cmd.Flags().GetString("asset-a")
	op.AssetB, _ = cmd.Flags().GetString("asset-b")
	return op
}

// runOperation loads host state, applies one operation and saves state only
// when the operation succeeds.
func runOperation(cmd *cobra.Command, op model.Operation) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := openSinks(ctx, cfg.EventsOut, cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	exec := host.New(ledger.NewMemory(), host.WithLogger(logger), host.WithSink(sink))
	store := state.NewFileStore(cfg.StateFile)
	snap, ok, err := store.Load()
	if err != nil {
		return err
	}
	if ok {
		if err := exec.Restore(snap); err != nil {
			return fmt.Errorf("restore state: %w", err)
		}
	}

	outcome, err := replay.Apply(ctx, exec, op)
	if err != nil {
		return fmt.Errorf("%s: %w", op.Kind, err)
	}
	if err := store.Save(exec.Snapshot(snap.LastOperation)); err != nil {
		return err
	}

	logger.Info("operation applied",
		zap.String("kind", op.Kind),
		zap.String("pool", outcome.Pool.Hex()),
		zap.String("state_file", cfg.StateFile),
	)
	return printJSON(cmd, outcome)
}

// openSinks builds the event sinks for a host session. The JSONL sink is
// skipped when eventsOut is empty and Postgres when dsn is empty.
func openSinks(ctx context.Context, eventsOut, dsn string, logger *zap.Logger) (storage.EventSink, func(), error) {
	var sinks storage.Multi
	closeFn := func() {}

	if eventsOut != "" {
		sinks = append(sinks, storage.NewJsonlStorage(eventsOut))
	}
	if dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Debug("postgres sink enabled", zap.String("pg_dsn", redactDSN(dsn)))
		sinks = append(sinks, store)
		closeFn = store.Close
	}
	return sinks, closeFn, nil
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
