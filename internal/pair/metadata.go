package pair

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"cpamm/internal/model"
)

// Caller performs eth_call requests. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Reader loads pair state and token metadata over RPC.
type Reader struct {
	Caller Caller
	Tokens *TokenMetaCache
	Retry  RetryConfig
	Logger *zap.Logger
}

// State is a pair snapshot with raw on-chain reserves.
type State struct {
	Address            common.Address
	Token0             common.Address
	Token1             common.Address
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// FetchState reads token0, token1 and getReserves at a block height (nil for latest).
func (r *Reader) FetchState(ctx context.Context, pair common.Address, block *big.Int) (State, error) {
	if r.Caller == nil {
		return State{}, fmt.Errorf("chain client is nil")
	}
	pairABI, err := V2PairABI()
	if err != nil {
		return State{}, fmt.Errorf("parse pair abi: %w", err)
	}

	state := State{Address: pair}

	values, err := r.call(ctx, pair, pairABI, "token0", block)
	if err != nil {
		return State{}, err
	}
	if state.Token0, err = asAddress(values[0]); err != nil {
		return State{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.call(ctx, pair, pairABI, "token1", block)
	if err != nil {
		return State{}, err
	}
	if state.Token1, err = asAddress(values[0]); err != nil {
		return State{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.call(ctx, pair, pairABI, "getReserves", block)
	if err != nil {
		return State{}, err
	}
	if len(values) < 3 {
		return State{}, fmt.Errorf("getReserves: expected 3 values, got %d", len(values))
	}
	if state.Reserve0, err = asBigInt(values[0]); err != nil {
		return State{}, fmt.Errorf("reserve0: %w", err)
	}
	if state.Reserve1, err = asBigInt(values[1]); err != nil {
		return State{}, fmt.Errorf("reserve1: %w", err)
	}
	ts, ok := values[2].(uint32)
	if !ok {
		return State{}, fmt.Errorf("blockTimestampLast: unsupported type %T", values[2])
	}
	state.BlockTimestampLast = ts

	return state, nil
}

// FetchPairMeta reads pair state and decorates it with cached token metadata.
func (r *Reader) FetchPairMeta(ctx context.Context, pair common.Address) (model.PairMeta, State, error) {
	state, err := r.FetchState(ctx, pair, nil)
	if err != nil {
		return model.PairMeta{}, State{}, err
	}
	meta := model.PairMeta{
		Address:            pair.Hex(),
		Token0:             r.tokenMeta(ctx, state.Token0),
		Token1:             r.tokenMeta(ctx, state.Token1),
		Reserve0:           state.Reserve0.String(),
		Reserve1:           state.Reserve1.String(),
		BlockTimestampLast: state.BlockTimestampLast,
	}
	return meta, state, nil
}

func (r *Reader) tokenMeta(ctx context.Context, token common.Address) model.TokenMeta {
	if r.Tokens != nil {
		if meta, ok := r.Tokens.Get(token); ok {
			return meta
		}
	}
	meta, err := r.FetchTokenMeta(ctx, token)
	if err != nil {
		r.logger().Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	if r.Tokens != nil {
		r.Tokens.Set(token, meta)
	}
	return meta
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func (r *Reader) FetchTokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if r.Caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := r.call(ctx, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger().Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := r.call(ctx, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		r.logger().Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = withRetry(ctx, r.Retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.Caller.CallContract(ctx, msg, block)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func (r *Reader) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
