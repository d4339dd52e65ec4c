package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"cpamm/internal/model"
	"cpamm/internal/state"
	"cpamm/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	OperationsPath string
	ErrorsPath     string
	BatchSize      uint64
	// StopOnError aborts the run at the first rejected operation instead of
	// recording it and moving on.
	StopOnError bool
}

// Executor is a Host whose full state can be captured and restored.
type Executor interface {
	Host
	Snapshot(lastOperation uint64) state.Snapshot
	Restore(snap state.Snapshot) error
}

// Summary reports what a run did.
type Summary struct {
	Applied       int
	Rejected      int
	Skipped       int
	LastOperation uint64
}

// Runner replays an operations file against an executor with checkpoints.
type Runner struct {
	cfg    RunConfig
	exec   Executor
	store  *state.FileStore
	logger *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, exec Executor, store *state.FileStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		exec:   exec,
		store:  store,
		logger: logger,
	}
}

// Run resumes from the state file and applies every operation past its checkpoint.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if r.exec == nil {
		return summary, fmt.Errorf("executor is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.OperationsPath == "" {
		return summary, fmt.Errorf("operations path is required")
	}

	last, err := r.resume()
	if err != nil {
		return summary, err
	}
	summary.LastOperation = last

	ops, skipped, err := LoadOperations(ctx, r.cfg.OperationsPath, last)
	if err != nil {
		return summary, err
	}
	summary.Skipped = skipped
	if len(ops) == 0 {
		r.logger.Info("nothing to replay", zap.Uint64("last_operation", last))
		return summary, nil
	}

	ranges, err := SplitRange(0, uint64(len(ops)-1), r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	var errWriter *storage.JSONLWriter
	if r.cfg.ErrorsPath != "" {
		errWriter, err = storage.NewJSONLWriter(r.cfg.ErrorsPath, true)
		if err != nil {
			return summary, err
		}
		defer errWriter.Close()
	}

	for _, batch := range ranges {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		applied, rejected := 0, 0
		for _, op := range ops[batch.From : batch.To+1] {
			if _, err := Apply(ctx, r.exec, op); err != nil {
				if r.cfg.StopOnError {
					return summary, fmt.Errorf("operation %d (%s): %w", op.ID, op.Kind, err)
				}
				rejected++
				r.logger.Debug("operation rejected", zap.Uint64("id", op.ID), zap.String("kind", op.Kind), zap.Error(err))
				if errWriter != nil {
					if err := errWriter.Write(operationError(op, err)); err != nil {
						return summary, err
					}
				}
			} else {
				applied++
			}
			summary.LastOperation = op.ID
		}
		summary.Applied += applied
		summary.Rejected += rejected

		if errWriter != nil {
			if err := errWriter.Flush(); err != nil {
				return summary, err
			}
		}
		if err := r.checkpoint(summary.LastOperation); err != nil {
			return summary, err
		}

		r.logger.Info("batch complete",
			zap.Int("applied", applied),
			zap.Int("rejected", rejected),
			zap.Uint64("from_id", ops[batch.From].ID),
			zap.Uint64("to_id", ops[batch.To].ID),
		)
	}

	return summary, nil
}

func (r *Runner) resume() (uint64, error) {
	if r.store == nil {
		return 0, nil
	}
	snap, ok, err := r.store.Load()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if err := r.exec.Restore(snap); err != nil {
		return 0, fmt.Errorf("restore state: %w", err)
	}
	r.logger.Info("resume from state", zap.Uint64("last_operation", snap.LastOperation), zap.Int("pools", len(snap.Pools)))
	return snap.LastOperation, nil
}

func (r *Runner) checkpoint(lastOperation uint64) error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(r.exec.Snapshot(lastOperation))
}

// LoadOperations reads operations with ids above after. Ids must increase
// strictly through the file.
func LoadOperations(ctx context.Context, path string, after uint64) ([]model.Operation, int, error) {
	var (
		ops     []model.Operation
		skipped int
		prev    uint64
		seen    bool
	)
	err := storage.ScanJSONL(ctx, path, func(line []byte) error {
		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return fmt.Errorf("decode operation: %w", err)
		}
		if seen && op.ID <= prev {
			return fmt.Errorf("operation id %d is not above %d", op.ID, prev)
		}
		prev, seen = op.ID, true
		if op.ID <= after {
			skipped++
			return nil
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ops, skipped, nil
}

func operationError(op model.Operation, err error) model.OperationError {
	return model.OperationError{
		OperationID: op.ID,
		Kind:        op.Kind,
		Caller:      op.Caller,
		Pool:        op.Pool,
		Error:       err.Error(),
	}
}
