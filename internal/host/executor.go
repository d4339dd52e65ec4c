package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/amm"
	"cpamm/internal/ledger"
	"cpamm/internal/model"
	"cpamm/internal/state"
	"cpamm/internal/storage"
)

var (
	ErrPoolNotFound  = errors.New("pool not found")
	ErrPoolExists    = errors.New("pool already exists")
	ErrInvalidCaller = errors.New("invalid caller")
)

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSink sets where committed events are published.
func WithSink(sink storage.EventSink) Option {
	return func(e *Executor) {
		e.sink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor runs pool operations against an in-memory ledger. Operations on
// the same pool are serialized; each one either commits every ledger change
// and the new pool record, or nothing.
type Executor struct {
	ledger *ledger.Memory
	engine *amm.Engine
	sink   storage.EventSink
	logger *zap.Logger
	now    func() time.Time
	locks  *lockmap

	// mu guards pools and orders commits against snapshots.
	mu       sync.RWMutex
	pools    map[common.Address]*amm.Pool
	sequence atomic.Uint64
}

func New(l *ledger.Memory, opts ...Option) *Executor {
	e := &Executor{
		ledger: l,
		engine: amm.NewEngine(l),
		logger: zap.NewNop(),
		now:    time.Now,
		locks:  newLockmap(16),
		pools:  make(map[common.Address]*amm.Pool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreatePool initializes the pool for (assetA, assetB) and registers its
// share asset with the ledger.
func (e *Executor) CreatePool(ctx context.Context, caller, assetA, assetB common.Address, feeRateBps uint16) (amm.Pool, error) {
	if err := validateCaller(caller); err != nil {
		return amm.Pool{}, err
	}
	pool, err := amm.Initialize(assetA, assetB, feeRateBps, caller)
	if err != nil {
		return amm.Pool{}, err
	}

	e.locks.Lock(pool.Address)
	defer e.locks.Unlock(pool.Address)

	e.mu.Lock()
	if _, ok := e.pools[pool.Address]; ok {
		e.mu.Unlock()
		return amm.Pool{}, fmt.Errorf("%w: %s", ErrPoolExists, pool.Address.Hex())
	}
	if err := e.ledger.RegisterAsset(pool.ShareAsset, pool.Address); err != nil {
		e.mu.Unlock()
		return amm.Pool{}, fmt.Errorf("register share asset: %w", err)
	}
	e.pools[pool.Address] = pool
	e.mu.Unlock()

	e.logger.Info("pool created",
		zap.String("pool", pool.Address.Hex()),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
		zap.Uint16("fee_rate_bps", feeRateBps),
	)
	e.emit(ctx, *pool, caller, model.EventPoolInitialized, model.PoolInitializedData{
		Authority:  caller.Hex(),
		AssetA:     pool.AssetA.Hex(),
		AssetB:     pool.AssetB.Hex(),
		ShareAsset: pool.ShareAsset.Hex(),
		FeeRateBps: pool.FeeRateBps,
	})
	return *pool, nil
}

// Fund credits a plain asset to owner.
func (e *Executor) Fund(_ context.Context, asset, owner common.Address, amount uint64) error {
	if err := validateCaller(owner); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ledger.Credit(asset, owner, amount); err != nil {
		return err
	}
	e.logger.Debug("funded", zap.String("asset", asset.Hex()), zap.String("owner", owner.Hex()), zap.Uint64("amount", amount))
	return nil
}

func (e *Executor) AddLiquidity(ctx context.Context, caller, poolAddr common.Address, params amm.AddLiquidityParams) (amm.AddLiquidityResult, error) {
	var res amm.AddLiquidityResult
	err := e.execute(ctx, caller, poolAddr, func(pool *amm.Pool, tx *ledger.Tx, auth amm.Authority) (string, interface{}, error) {
		var err error
		res, err = e.engine.AddLiquidity(ctx, pool, tx, auth, params)
		return model.EventLiquidityAdded, model.LiquidityAddedData{
			Provider: caller.Hex(),
			AmountA:  formatAmount(res.AmountA),
			AmountB:  formatAmount(res.AmountB),
			Shares:   formatAmount(res.Shares),
			Locked:   formatAmount(res.Locked),
		}, err
	})
	if err != nil {
		return amm.AddLiquidityResult{}, err
	}
	return res, nil
}

func (e *Executor) RemoveLiquidity(ctx context.Context, caller, poolAddr common.Address, params amm.RemoveLiquidityParams) (amm.RemoveLiquidityResult, error) {
	var res amm.RemoveLiquidityResult
	err := e.execute(ctx, caller, poolAddr, func(pool *amm.Pool, tx *ledger.Tx, auth amm.Authority) (string, interface{}, error) {
		var err error
		res, err = e.engine.RemoveLiquidity(ctx, pool, tx, auth, params)
		return model.EventLiquidityRemoved, model.LiquidityRemovedData{
			Provider: caller.Hex(),
			AmountA:  formatAmount(res.AmountA),
			AmountB:  formatAmount(res.AmountB),
			Shares:   formatAmount(params.Shares),
		}, err
	})
	if err != nil {
		return amm.RemoveLiquidityResult{}, err
	}
	return res, nil
}

func (e *Executor) Swap(ctx context.Context, caller, poolAddr common.Address, params amm.SwapParams) (uint64, error) {
	var out uint64
	err := e.execute(ctx, caller, poolAddr, func(pool *amm.Pool, tx *ledger.Tx, auth amm.Authority) (string, interface{}, error) {
		var err error
		out, err = e.engine.Swap(ctx, pool, tx, auth, params)
		assetIn, assetOut := pool.Assets(params.Direction)
		return model.EventSwap, model.SwapData{
			Trader:    caller.Hex(),
			Direction: params.Direction.String(),
			AssetIn:   assetIn.Hex(),
			AssetOut:  assetOut.Hex(),
			AmountIn:  formatAmount(params.AmountIn),
			AmountOut: formatAmount(out),
		}, err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

// Quote previews a swap against the current reserves.
func (e *Executor) Quote(poolAddr common.Address, amountIn uint64, dir amm.Direction) (uint64, error) {
	e.locks.RLock(poolAddr)
	defer e.locks.RUnlock(poolAddr)

	pool, err := e.Pool(poolAddr)
	if err != nil {
		return 0, err
	}
	return e.engine.Preview(&pool, amountIn, dir)
}

// Pool returns a copy of the pool record.
func (e *Executor) Pool(poolAddr common.Address) (amm.Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, ok := e.pools[poolAddr]
	if !ok {
		return amm.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, poolAddr.Hex())
	}
	return *pool, nil
}

// Pools returns copies of every pool ordered by address.
func (e *Executor) Pools() []amm.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedPools()
}

func (e *Executor) Balance(asset, owner common.Address) uint64 {
	return e.ledger.Balance(asset, owner)
}

// Sequence is the sequence number of the last emitted event.
func (e *Executor) Sequence() uint64 {
	return e.sequence.Load()
}

// Snapshot captures pools, ledger and event sequence consistently.
func (e *Executor) Snapshot(lastOperation uint64) state.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return state.Snapshot{
		LastOperation: lastOperation,
		EventSequence: e.sequence.Load(),
		Pools:         e.sortedPools(),
		Ledger:        e.ledger.Export(),
	}
}

// Restore replaces all host state with snap after checking that every pool
// agrees with the ledger.
func (e *Executor) Restore(snap state.Snapshot) error {
	restored := ledger.NewMemory()
	if err := restored.Import(snap.Ledger); err != nil {
		return fmt.Errorf("import ledger: %w", err)
	}

	pools := make(map[common.Address]*amm.Pool, len(snap.Pools))
	for i := range snap.Pools {
		pool := snap.Pools[i]
		if pool.Address != amm.PoolAddress(pool.AssetA, pool.AssetB) {
			return fmt.Errorf("pool %s: address does not match its asset pair", pool.Address.Hex())
		}
		if pool.ShareAsset != amm.ShareAssetAddress(pool.Address) {
			return fmt.Errorf("pool %s: share asset mismatch", pool.Address.Hex())
		}
		if _, dup := pools[pool.Address]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrPoolExists, pool.Address.Hex())
		}
		if got := restored.Balance(pool.AssetA, pool.Address); got != pool.ReserveA {
			return fmt.Errorf("pool %s: reserve A %d, ledger holds %d", pool.Address.Hex(), pool.ReserveA, got)
		}
		if got := restored.Balance(pool.AssetB, pool.Address); got != pool.ReserveB {
			return fmt.Errorf("pool %s: reserve B %d, ledger holds %d", pool.Address.Hex(), pool.ReserveB, got)
		}
		if got := restored.Supply(pool.ShareAsset); got != pool.ShareSupply {
			return fmt.Errorf("pool %s: share supply %d, ledger has %d", pool.Address.Hex(), pool.ShareSupply, got)
		}
		pools[pool.Address] = &pool
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ledger.Import(snap.Ledger); err != nil {
		return fmt.Errorf("import ledger: %w", err)
	}
	e.pools = pools
	e.sequence.Store(snap.EventSequence)
	return nil
}

type operation func(pool *amm.Pool, tx *ledger.Tx, auth amm.Authority) (eventName string, data interface{}, err error)

func (e *Executor) execute(ctx context.Context, caller, poolAddr common.Address, op operation) error {
	if err := validateCaller(caller); err != nil {
		return err
	}

	if _, err := e.Pool(caller); err == nil {
		return fmt.Errorf("%w: %s is a pool", ErrInvalidCaller, caller.Hex())
	}

	e.locks.Lock(poolAddr)
	defer e.locks.Unlock(poolAddr)

	current, err := e.Pool(poolAddr)
	if err != nil {
		return err
	}

	work := current
	tx := e.ledger.Begin()
	eventName, data, err := op(&work, tx, e.ledger.UserAuthority(caller))
	if err != nil {
		tx.Rollback()
		e.logRejected(poolAddr, caller, eventName, err)
		return err
	}

	e.mu.Lock()
	if err := tx.Commit(); err != nil {
		e.mu.Unlock()
		e.logRejected(poolAddr, caller, eventName, err)
		return fmt.Errorf("commit ledger: %w", err)
	}
	e.pools[poolAddr] = &work
	e.mu.Unlock()

	e.emit(ctx, work, caller, eventName, data)
	return nil
}

func (e *Executor) emit(ctx context.Context, pool amm.Pool, actor common.Address, eventName string, data interface{}) {
	event := model.PoolEvent{
		Sequence:  e.sequence.Add(1),
		Pool:      pool.Address.Hex(),
		Actor:     actor.Hex(),
		EventName: eventName,
		Timestamp: uint64(e.now().Unix()),
		Decoded:   data,
		State:     PoolState(pool),
	}
	if e.sink == nil {
		return
	}
	// The operation is already committed; a sink failure is reported only.
	if err := e.sink.PutEvents(ctx, []model.PoolEvent{event}); err != nil {
		e.logger.Warn("publish event failed",
			zap.Error(err),
			zap.Uint64("sequence", event.Sequence),
			zap.String("pool", event.Pool),
			zap.String("event", eventName),
		)
	}
}

func (e *Executor) logRejected(poolAddr, caller common.Address, eventName string, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("pool", poolAddr.Hex()),
		zap.String("caller", caller.Hex()),
		zap.String("event", eventName),
	}
	if errors.Is(err, amm.ErrArithmeticOverflow) {
		e.logger.Error("arithmetic overflow", fields...)
		return
	}
	e.logger.Debug("operation rejected", fields...)
}

func (e *Executor) sortedPools() []amm.Pool {
	out := make([]amm.Pool, 0, len(e.pools))
	for _, pool := range e.pools {
		out = append(out, *pool)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// PoolState renders a pool for an event record.
func PoolState(pool amm.Pool) model.PoolState {
	return model.PoolState{
		AssetA:      pool.AssetA.Hex(),
		AssetB:      pool.AssetB.Hex(),
		ShareAsset:  pool.ShareAsset.Hex(),
		FeeRateBps:  pool.FeeRateBps,
		ReserveA:    formatAmount(pool.ReserveA),
		ReserveB:    formatAmount(pool.ReserveB),
		ShareSupply: formatAmount(pool.ShareSupply),
	}
}

func validateCaller(caller common.Address) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidCaller)
	}
	return nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}
