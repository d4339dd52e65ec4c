package host

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type holderLock struct {
	holders int
	mu      sync.RWMutex
}

// lockmap hands out one RWMutex per pool address and drops it once the last
// holder releases it.
type lockmap struct {
	l sync.Mutex
	m map[common.Address]*holderLock
}

func newLockmap(initSize int) *lockmap {
	return &lockmap{m: make(map[common.Address]*holderLock, initSize)}
}

func (l *lockmap) Lock(key common.Address) {
	l.acquire(key).mu.Lock()
}

func (l *lockmap) Unlock(key common.Address) {
	hl := l.holder(key)
	hl.mu.Unlock()
	l.release(key)
}

func (l *lockmap) RLock(key common.Address) {
	l.acquire(key).mu.RLock()
}

func (l *lockmap) RUnlock(key common.Address) {
	hl := l.holder(key)
	hl.mu.RUnlock()
	l.release(key)
}

func (l *lockmap) acquire(key common.Address) *holderLock {
	l.l.Lock()
	defer l.l.Unlock()
	hl, ok := l.m[key]
	if !ok {
		hl = &holderLock{}
		l.m[key] = hl
	}
	hl.holders++
	return hl
}

func (l *lockmap) holder(key common.Address) *holderLock {
	l.l.Lock()
	defer l.l.Unlock()
	return l.m[key]
}

func (l *lockmap) release(key common.Address) {
	l.l.Lock()
	defer l.l.Unlock()
	hl := l.m[key]
	hl.holders--
	if hl.holders == 0 {
		delete(l.m, key)
	}
}

// Locks returns the number of pools with a live holder.
func (l *lockmap) Locks() int {
	l.l.Lock()
	defer l.l.Unlock()
	return len(l.m)
}
