package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpamm/internal/config"
	"cpamm/internal/host"
	"cpamm/internal/ledger"
	"cpamm/internal/replay"
	"cpamm/internal/state"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
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
	runner := replay.NewRunner(replay.RunConfig{
		OperationsPath: cfg.In,
		ErrorsPath:     cfg.Errors,
		BatchSize:      cfg.BatchSize,
		StopOnError:    cfg.StopOnError,
	}, exec, state.NewFileStore(cfg.StateFile), logger)

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("errors", cfg.Errors),
		zap.String("state_file", cfg.StateFile),
		zap.String("events_out", cfg.EventsOut),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("batch_size", cfg.BatchSize),
	)

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("replay complete",
		zap.Int("applied", summary.Applied),
		zap.Int("rejected", summary.Rejected),
		zap.Int("skipped", summary.Skipped),
		zap.Uint64("last_operation", summary.LastOperation),
		zap.Uint64("event_sequence", exec.Sequence()),
	)
	return nil
}
