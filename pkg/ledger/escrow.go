package ledger

import (
	"fmt"
	"sync"

	"dfs/pkg/types"
)

// vaultAccount holds every contract's locked funds on the underlying
// ledger. Per-contract balances are tracked here, keyed by contract ID, so
// payouts can never collide with user account names.
const vaultAccount = "dfs_escrow_vault"

// Escrow locks client funds per contract and releases them as node
// payments or client refunds. For any contract, the sum of payments and
// the final refund always equals the locked amount.
type Escrow struct {
	mu     sync.Mutex
	ledger Ledger
	held   map[types.ContractID]uint64
}

func NewEscrow(l Ledger) *Escrow {
	return &Escrow{ledger: l, held: make(map[types.ContractID]uint64)}
}

// Lock debits amount from client into the vault and credits the contract's
// escrow balance. Fails without side effects when the client balance is
// short.
func (e *Escrow) Lock(contractID types.ContractID, client string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if available := e.ledger.Balance(client); available < amount {
		return &types.InsufficientFundsError{Required: amount, Available: available}
	}
	if err := e.ledger.Transfer(client, vaultAccount, amount); err != nil {
		return fmt.Errorf("%w: %v", types.ErrEscrow, err)
	}
	e.held[contractID] += amount
	return nil
}

// Pay releases amount from the contract's escrow balance to a payee.
func (e *Escrow) Pay(contractID types.ContractID, payee string, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held[contractID] < amount {
		return fmt.Errorf("%w: contract %s holds %d, cannot pay %d",
			types.ErrEscrow, contractID, e.held[contractID], amount)
	}
	if err := e.ledger.Transfer(vaultAccount, payee, amount); err != nil {
		return fmt.Errorf("%w: %v", types.ErrEscrow, err)
	}
	e.held[contractID] -= amount
	return nil
}

// Refund returns the contract's entire remaining escrow balance to the
// client and reports the amount moved.
func (e *Escrow) Refund(contractID types.ContractID, client string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := e.held[contractID]
	if remaining == 0 {
		delete(e.held, contractID)
		return 0, nil
	}
	if err := e.ledger.Transfer(vaultAccount, client, remaining); err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrEscrow, err)
	}
	delete(e.held, contractID)
	return remaining, nil
}

// Held reports the contract's current escrow balance.
func (e *Escrow) Held(contractID types.ContractID) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.held[contractID]
}
