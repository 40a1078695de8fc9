// Package ledger provides the token ledger abstraction the filesystem bills
// against, plus an escrow ledger that holds contract funds until settlement.
package ledger

import (
	"fmt"
	"sync"
)

// Ledger is the injected balance/transfer abstraction. Settlement finality
// is out of scope; implementations only need atomic balance arithmetic.
type Ledger interface {
	Balance(account string) uint64
	Transfer(from, to string, amount uint64) error
	Mint(account string, amount uint64)
}

// MemoryLedger is an in-process Ledger used by tests and the demo CLI.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]uint64)}
}

func (l *MemoryLedger) Balance(account string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

func (l *MemoryLedger) Transfer(from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("account %s has %d, cannot transfer %d", from, l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemoryLedger) Mint(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}
