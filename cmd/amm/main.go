package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "amm",
		Short:        "Constant-product AMM pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Manage pools",
	}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pool for an ordered asset pair",
		RunE:  runCreatePool,
	}
	addStateFlags(createCmd)
	createCmd.Flags().String("caller", "", "pool authority address")
	createCmd.Flags().String("asset-a", "", "asset A address")
	createCmd.Flags().String("asset-b", "", "asset B address")
	createCmd.Flags().Uint16("fee-rate-bps", 30, "recorded fee rate in basis points")
	poolCmd.AddCommand(createCmd)
	root.AddCommand(poolCmd)

	fundCmd := &cobra.Command{
		Use:   "fund",
		Short: "Credit a plain asset balance to an owner",
		RunE:  runFund,
	}
	addStateFlags(fundCmd)
	fundCmd.Flags().String("owner", "", "owner address")
	fundCmd.Flags().String("asset", "", "asset address")
	fundCmd.Flags().Uint64("amount", 0, "amount to credit")
	root.AddCommand(fundCmd)

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Deposit liquidity into a pool",
		RunE:  runAddLiquidity,
	}
	addStateFlags(addCmd)
	addPoolFlags(addCmd)
	addCmd.Flags().Uint64("amount-a", 0, "desired amount of asset A")
	addCmd.Flags().Uint64("amount-b", 0, "desired amount of asset B")
	addCmd.Flags().Uint64("amount-a-min", 0, "minimum amount of asset A")
	addCmd.Flags().Uint64("amount-b-min", 0, "minimum amount of asset B")
	root.AddCommand(addCmd)

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Burn pool shares for a pro-rata withdrawal",
		RunE:  runRemoveLiquidity,
	}
	addStateFlags(removeCmd)
	addPoolFlags(removeCmd)
	removeCmd.Flags().Uint64("shares", 0, "shares to burn")
	removeCmd.Flags().Uint64("amount-a-min", 0, "minimum amount of asset A")
	removeCmd.Flags().Uint64("amount-b-min", 0, "minimum amount of asset B")
	root.AddCommand(removeCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap one pool asset for the other",
		RunE:  runSwap,
	}
	addStateFlags(swapCmd)
	addPoolFlags(swapCmd)
	swapCmd.Flags().Uint64("amount-in", 0, "input amount")
	swapCmd.Flags().Uint64("min-out", 0, "minimum acceptable output")
	swapCmd.Flags().String("direction", "a_to_b", "swap direction (a_to_b, b_to_a)")
	root.AddCommand(swapCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an operations JSONL file with checkpoints",
		RunE:  runReplay,
	}
	addStateFlags(replayCmd)
	replayCmd.Flags().String("in", "./data/operations.jsonl", "input operations JSONL")
	replayCmd.Flags().String("errors", "./data/operation_errors.jsonl", "rejected operations JSONL")
	replayCmd.Flags().Uint64("batch-size", 500, "operations per checkpoint")
	replayCmd.Flags().Bool("stop-on-error", false, "abort at the first rejected operation")
	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a live constant-product pair",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("rpc", "", "JSON-RPC URL")
	quoteCmd.Flags().StringSlice("pair", nil, "pair addresses (comma-separated)")
	quoteCmd.Flags().Uint64("amount-in", 0, "input amount, 0 only prints pair state")
	quoteCmd.Flags().String("direction", "a_to_b", "a_to_b sells token0, b_to_a sells token1")
	quoteCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	quoteCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	quoteCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(quoteCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate pool events into window metrics",
		RunE:  runStats,
	}
	statsCmd.Flags().String("in", "./data/events.jsonl", "input pool events JSONL")
	statsCmd.Flags().String("out", "", "output metrics JSONL when no Postgres DSN is given")
	statsCmd.Flags().String("pools-out", "", "optional output pool records JSONL")
	statsCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	statsCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	statsCmd.Flags().Int("batch-size", 1000, "batch size for writes")
	statsCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	statsCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	statsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(statsCmd)

	return root
}

func addStateFlags(cmd *cobra.Command) {
	cmd.Flags().String("state-file", "./data/state.json", "host state file")
	cmd.Flags().String("events-out", "./data/events.jsonl", "pool events JSONL, empty disables")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for pool events")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("caller", "", "caller address")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("asset-a", "", "asset A address, used with asset-b when pool is empty")
	cmd.Flags().String("asset-b", "", "asset B address")
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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
