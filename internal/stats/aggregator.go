package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cpamm/internal/model"
	"cpamm/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives pool records and closed windows. *postgres.Store satisfies it.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates pool events into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	firstSeen    map[string]uint64
	authorities  map[string]string
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		firstSeen:    make(map[string]uint64),
		authorities:  make(map[string]string),
	}
}

// Run executes aggregation over a pool events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 256)
	maxTs := startTs
	var total, windows, skipped, failed int

	err = storage.ScanJSONL(ctx, inputPath, func(line []byte) error {
		total++

		var record model.PoolEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode pool event", zap.Error(err))
			return nil
		}

		if record.Timestamp <= startTs {
			skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(record.Pool)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(acc)
			batch = append(batch, metrics)
			pools = append(pools, pool)
			windows++
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Pool), zap.String("event", record.EventName))
			return nil
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(acc)
		batch = append(batch, metrics)
		pools = append(pools, pool)
		windows++
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("stats complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records a timestamp below every open window, so a restart
// recomputes open windows from their first event.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (model.PoolWindowMetrics, model.Pool) {
	yieldA, yieldB := computeFeeYields(acc.FeeA, acc.FeeB, acc.State.ReserveA, acc.State.ReserveB)

	metrics := model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeA:        formatAmount(acc.VolumeA),
		VolumeB:        formatAmount(acc.VolumeB),
		FeeA:           formatAmount(acc.FeeA),
		FeeB:           formatAmount(acc.FeeB),
		ReserveA:       acc.State.ReserveA,
		ReserveB:       acc.State.ReserveB,
		FeeYieldA:      yieldA,
		FeeYieldB:      yieldB,
		APR:            computeAPR(yieldA, yieldB, a.cfg.WindowSeconds),
	}

	return metrics, a.poolRecord(acc)
}

func (a *Aggregator) poolRecord(acc *Accumulator) model.Pool {
	key := poolKey(acc.PoolAddress)
	first, ok := a.firstSeen[key]
	if !ok || acc.FirstSequence < first {
		first = acc.FirstSequence
		a.firstSeen[key] = first
	}
	if acc.Authority != "" {
		a.authorities[key] = acc.Authority
	}

	return model.Pool{
		Address:       acc.PoolAddress,
		AssetA:        acc.State.AssetA,
		AssetB:        acc.State.AssetB,
		ShareAsset:    acc.State.ShareAsset,
		FeeRateBps:    acc.State.FeeRateBps,
		Authority:     a.authorities[key],
		ReserveA:      acc.State.ReserveA,
		ReserveB:      acc.State.ReserveB,
		ShareSupply:   acc.State.ShareSupply,
		FirstSequence: first,
		LastSequence:  acc.LastSequence,
	}
}

// JSONLSink writes window metrics, and optionally pool records, as JSON lines.
type JSONLSink struct {
	MetricsPath string
	PoolsPath   string
}

func (s *JSONLSink) UpsertPools(_ context.Context, pools []model.Pool) error {
	if s.PoolsPath == "" {
		return nil
	}
	return appendLines(s.PoolsPath, len(pools), func(w *storage.JSONLWriter, i int) error {
		return w.Write(pools[i])
	})
}

func (s *JSONLSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	return appendLines(s.MetricsPath, len(metrics), func(w *storage.JSONLWriter, i int) error {
		return w.Write(metrics[i])
	})
}

func appendLines(path string, n int, write func(*storage.JSONLWriter, int) error) error {
	if n == 0 {
		return nil
	}
	w, err := storage.NewJSONLWriter(path, true)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := write(w, i); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var lowest uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if lowest == 0 || entry.WindowStart < lowest {
			lowest = entry.WindowStart
		}
	}
	return lowest
}
