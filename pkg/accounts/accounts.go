// Package accounts defines the read-only account repository contract
// the dispatcher needs from the wallet's account storage: whether an
// address is known, and whether it is watch-only (tracked for display
// with no signing capability).
package accounts

import (
	"context"
	"sync"
)

// Account is the slice of wallet account data the core observes.
type Account struct {
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	WatchOnly bool   `json:"watch_only"`
}

// Repository answers account capability queries. Implementations live
// with the wallet's CRUD layer; the core only reads.
type Repository interface {
	IsKnown(ctx context.Context, address string) (bool, error)
	IsWatchOnly(ctx context.Context, address string) (bool, error)
}

// MemoryRepository is an in-memory Repository for tests and the demo
// daemon.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryRepository(accts ...Account) *MemoryRepository {
	r := &MemoryRepository{accounts: make(map[string]Account, len(accts))}
	for _, a := range accts {
		r.accounts[a.Address] = a
	}
	return r
}

// Put adds or replaces an account.
func (r *MemoryRepository) Put(a Account) {
	r.mu.Lock()
	r.accounts[a.Address] = a
	r.mu.Unlock()
}

func (r *MemoryRepository) IsKnown(_ context.Context, address string) (bool, error) {
	r.mu.RLock()
	_, ok := r.accounts[address]
	r.mu.RUnlock()
	return ok, nil
}

func (r *MemoryRepository) IsWatchOnly(_ context.Context, address string) (bool, error) {
	r.mu.RLock()
	a, ok := r.accounts[address]
	r.mu.RUnlock()
	return ok && a.WatchOnly, nil
}
