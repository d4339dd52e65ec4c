package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAssetExists         = errors.New("asset already registered")
	ErrTxClosed            = errors.New("ledger transaction already closed")
)

type balanceKey struct {
	asset common.Address
	owner common.Address
}

// Memory is an in-process ledger. Reads and commits are safe for concurrent
// use; a Tx is not.
type Memory struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64
	supply   map[common.Address]uint64
	// minters maps a mintable asset to the pool allowed to mint and burn it.
	minters map[common.Address]common.Address
	pools   map[common.Address]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[balanceKey]uint64),
		supply:   make(map[common.Address]uint64),
		minters:  make(map[common.Address]common.Address),
		pools:    make(map[common.Address]struct{}),
	}
}

type authority struct {
	issuer    *Memory
	principal common.Address
	pool      bool
}

func (a *authority) Principal() common.Address {
	return a.principal
}

// UserAuthority returns a capability to spend owner's balances. The caller is
// responsible for having authenticated owner.
func (m *Memory) UserAuthority(owner common.Address) amm.Authority {
	return &authority{issuer: m, principal: owner}
}

// PoolAuthority returns the pool's own signing capability.
func (m *Memory) PoolAuthority(pool common.Address) amm.Authority {
	return &authority{issuer: m, principal: pool, pool: true}
}

// RegisterAsset installs asset as mintable only by pool.
func (m *Memory) RegisterAsset(asset, pool common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.minters[asset]; ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, asset.Hex())
	}
	if m.supply[asset] != 0 {
		return fmt.Errorf("%w: %s already has supply", ErrAssetExists, asset.Hex())
	}
	m.minters[asset] = pool
	m.pools[pool] = struct{}{}
	return nil
}

// Credit issues amount of a plain asset to owner.
func (m *Memory) Credit(asset, owner common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.minters[asset]; ok {
		return fmt.Errorf("%w: %s is minted by its pool", ErrUnauthorized, asset.Hex())
	}
	if _, ok := m.pools[owner]; ok {
		return fmt.Errorf("%w: cannot credit pool custody %s", ErrUnauthorized, owner.Hex())
	}
	key := balanceKey{asset: asset, owner: owner}
	balance, err := add(m.balances[key], amount)
	if err != nil {
		return err
	}
	supply, err := add(m.supply[asset], amount)
	if err != nil {
		return err
	}
	m.balances[key] = balance
	m.supply[asset] = supply
	return nil
}

func (m *Memory) Balance(asset, owner common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[balanceKey{asset: asset, owner: owner}]
}

func (m *Memory) Supply(asset common.Address) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supply[asset]
}

// Begin opens a transaction. Nothing it does is visible until Commit.
func (m *Memory) Begin() *Tx {
	return &Tx{
		ledger:  m,
		credits: make(map[balanceKey]uint64),
		debits:  make(map[balanceKey]uint64),
		minted:  make(map[common.Address]uint64),
		burned:  make(map[common.Address]uint64),
	}
}

// Tx buffers ledger requests for one operation. It implements amm.Ledger.
type Tx struct {
	ledger  *Memory
	credits map[balanceKey]uint64
	debits  map[balanceKey]uint64
	minted  map[common.Address]uint64
	burned  map[common.Address]uint64
	closed  bool
}

var _ amm.Ledger = (*Tx)(nil)

func (tx *Tx) Transfer(ctx context.Context, asset, from, to common.Address, amount uint64, auth amm.Authority) error {
	if err := tx.usable(ctx); err != nil {
		return err
	}
	a, err := tx.ledger.verify(auth)
	if err != nil {
		return err
	}
	if a.principal != from {
		return fmt.Errorf("%w: %s cannot spend from %s", ErrUnauthorized, a.principal.Hex(), from.Hex())
	}
	if tx.ledger.isPool(from) && !a.pool {
		return fmt.Errorf("%w: pool custody %s requires pool authority", ErrUnauthorized, from.Hex())
	}
	if amount == 0 || from == to {
		return nil
	}
	if err := tx.debit(balanceKey{asset: asset, owner: from}, amount); err != nil {
		return err
	}
	return tx.credit(balanceKey{asset: asset, owner: to}, amount)
}

func (tx *Tx) Mint(ctx context.Context, asset, to common.Address, amount uint64, auth amm.Authority) error {
	if err := tx.usable(ctx); err != nil {
		return err
	}
	if err := tx.ledger.verifyMinter(asset, auth); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	supply, err := tx.CurrentSupply(ctx, asset)
	if err != nil {
		return err
	}
	if _, err := add(supply, amount); err != nil {
		return err
	}
	if err := tx.credit(balanceKey{asset: asset, owner: to}, amount); err != nil {
		return err
	}
	tx.minted[asset] += amount
	return nil
}

func (tx *Tx) Burn(ctx context.Context, asset, from common.Address, amount uint64, auth amm.Authority) error {
	if err := tx.usable(ctx); err != nil {
		return err
	}
	if err := tx.ledger.verifyMinter(asset, auth); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := tx.debit(balanceKey{asset: asset, owner: from}, amount); err != nil {
		return err
	}
	tx.burned[asset] += amount
	return nil
}

func (tx *Tx) CurrentSupply(ctx context.Context, asset common.Address) (uint64, error) {
	if err := tx.usable(ctx); err != nil {
		return 0, err
	}
	base := tx.ledger.Supply(asset)
	supply, err := add(base, tx.minted[asset])
	if err != nil {
		return 0, err
	}
	if supply < tx.burned[asset] {
		return 0, fmt.Errorf("%w: supply of %s", ErrInsufficientBalance, asset.Hex())
	}
	return supply - tx.burned[asset], nil
}

// Commit re-validates every touched balance against the current ledger and
// applies all of them, or none.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true

	m := tx.ledger
	m.mu.Lock()
	defer m.mu.Unlock()

	balances := make(map[balanceKey]uint64, len(tx.credits)+len(tx.debits))
	for key := range tx.credits {
		balances[key] = 0
	}
	for key := range tx.debits {
		balances[key] = 0
	}
	for key := range balances {
		next, err := apply(m.balances[key], tx.credits[key], tx.debits[key])
		if err != nil {
			return fmt.Errorf("%s of %s: %w", key.asset.Hex(), key.owner.Hex(), err)
		}
		balances[key] = next
	}

	supplies := make(map[common.Address]uint64, len(tx.minted)+len(tx.burned))
	for asset := range tx.minted {
		supplies[asset] = 0
	}
	for asset := range tx.burned {
		supplies[asset] = 0
	}
	for asset := range supplies {
		next, err := apply(m.supply[asset], tx.minted[asset], tx.burned[asset])
		if err != nil {
			return fmt.Errorf("supply of %s: %w", asset.Hex(), err)
		}
		supplies[asset] = next
	}

	for key, value := range balances {
		if value == 0 {
			delete(m.balances, key)
			continue
		}
		m.balances[key] = value
	}
	for asset, value := range supplies {
		m.supply[asset] = value
	}
	return nil
}

// Rollback discards the transaction. It is safe to call after Commit.
func (tx *Tx) Rollback() {
	tx.closed = true
}

func (tx *Tx) usable(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	return ctx.Err()
}

func (tx *Tx) balance(key balanceKey) (uint64, error) {
	base := tx.ledger.Balance(key.asset, key.owner)
	return apply(base, tx.credits[key], tx.debits[key])
}

func (tx *Tx) debit(key balanceKey, amount uint64) error {
	current, err := tx.balance(key)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%w: %s holds %d of %s, needs %d", ErrInsufficientBalance, key.owner.Hex(), current, key.asset.Hex(), amount)
	}
	debit, err := add(tx.debits[key], amount)
	if err != nil {
		return err
	}
	tx.debits[key] = debit
	return nil
}

func (tx *Tx) credit(key balanceKey, amount uint64) error {
	current, err := tx.balance(key)
	if err != nil {
		return err
	}
	if _, err := add(current, amount); err != nil {
		return err
	}
	credit, err := add(tx.credits[key], amount)
	if err != nil {
		return err
	}
	tx.credits[key] = credit
	return nil
}

func (m *Memory) verify(auth amm.Authority) (*authority, error) {
	a, ok := auth.(*authority)
	if !ok || a == nil || a.issuer != m {
		return nil, fmt.Errorf("%w: authority not issued by this ledger", ErrUnauthorized)
	}
	return a, nil
}

func (m *Memory) verifyMinter(asset common.Address, auth amm.Authority) error {
	a, err := m.verify(auth)
	if err != nil {
		return err
	}
	m.mu.RLock()
	minter, ok := m.minters[asset]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s is not mintable", ErrUnauthorized, asset.Hex())
	}
	if !a.pool || a.principal != minter {
		return fmt.Errorf("%w: %s cannot mint or burn %s", ErrUnauthorized, a.principal.Hex(), asset.Hex())
	}
	return nil
}

func (m *Memory) isPool(addr common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pools[addr]
	return ok
}

// Balance is one exported (asset, owner) entry.
type Balance struct {
	Asset  common.Address `json:"asset"`
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount,string"`
}

// Asset is one exported asset with its supply and, for share assets, the
// pool that mints it.
type Asset struct {
	Asset  common.Address  `json:"asset"`
	Supply uint64          `json:"supply,string"`
	Minter *common.Address `json:"minter,omitempty"`
}

// Snapshot is the whole ledger in a deterministic order.
type Snapshot struct {
	Assets   []Asset   `json:"assets"`
	Balances []Balance `json:"balances"`
}

func (m *Memory) Export() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	known := make(map[common.Address]struct{}, len(m.supply)+len(m.minters))
	for asset := range m.supply {
		known[asset] = struct{}{}
	}
	for asset := range m.minters {
		known[asset] = struct{}{}
	}

	snap := Snapshot{
		Assets:   make([]Asset, 0, len(known)),
		Balances: make([]Balance, 0, len(m.balances)),
	}
	for asset := range known {
		entry := Asset{Asset: asset, Supply: m.supply[asset]}
		if minter, ok := m.minters[asset]; ok {
			minter := minter
			entry.Minter = &minter
		}
		snap.Assets = append(snap.Assets, entry)
	}
	for key, amount := range m.balances {
		snap.Balances = append(snap.Balances, Balance{Asset: key.asset, Owner: key.owner, Amount: amount})
	}

	sort.Slice(snap.Assets, func(i, j int) bool {
		return bytes.Compare(snap.Assets[i].Asset[:], snap.Assets[j].Asset[:]) < 0
	})
	sort.Slice(snap.Balances, func(i, j int) bool {
		if c := bytes.Compare(snap.Balances[i].Asset[:], snap.Balances[j].Asset[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(snap.Balances[i].Owner[:], snap.Balances[j].Owner[:]) < 0
	})
	return snap
}

// Import replaces the ledger contents with snap after checking that balances
// add up to each asset's supply.
func (m *Memory) Import(snap Snapshot) error {
	balances := make(map[balanceKey]uint64, len(snap.Balances))
	supply := make(map[common.Address]uint64, len(snap.Assets))
	minters := make(map[common.Address]common.Address)
	pools := make(map[common.Address]struct{})
	totals := make(map[common.Address]uint64, len(snap.Assets))

	for _, asset := range snap.Assets {
		if _, dup := supply[asset.Asset]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrAssetExists, asset.Asset.Hex())
		}
		supply[asset.Asset] = asset.Supply
		if asset.Minter != nil {
			minters[asset.Asset] = *asset.Minter
			pools[*asset.Minter] = struct{}{}
		}
	}
	for _, b := range snap.Balances {
		key := balanceKey{asset: b.Asset, owner: b.Owner}
		if _, dup := balances[key]; dup {
			return fmt.Errorf("duplicate balance for %s of %s", b.Asset.Hex(), b.Owner.Hex())
		}
		if b.Amount == 0 {
			continue
		}
		balances[key] = b.Amount
		total, err := add(totals[b.Asset], b.Amount)
		if err != nil {
			return err
		}
		totals[b.Asset] = total
	}
	for asset, total := range totals {
		if supply[asset] != total {
			return fmt.Errorf("asset %s: balances sum to %d, supply is %d", asset.Hex(), total, supply[asset])
		}
	}
	for asset, s := range supply {
		if totals[asset] != s {
			return fmt.Errorf("asset %s: balances sum to %d, supply is %d", asset.Hex(), totals[asset], s)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = balances
	m.supply = supply
	m.minters = minters
	m.pools = pools
	return nil
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", amm.ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}

// apply returns base + credit - debit, failing if the result is negative.
func apply(base, credit, debit uint64) (uint64, error) {
	total, err := add(base, credit)
	if err != nil {
		return 0, err
	}
	if total < debit {
		return 0, fmt.Errorf("%w: %d available, %d debited", ErrInsufficientBalance, total, debit)
	}
	return total - debit, nil
}
