// Package ledger keeps the balance, allowance, and supply bookkeeping.
// Every mutating operation validates fully before touching state, so a
// returned error guarantees nothing changed. Arithmetic never wraps: an
// addition that would overflow aborts the operation instead.
package ledger

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/shared"
)

type allowanceKey struct {
	owner   identity.Identity
	spender identity.Identity
}

// Ledger holds balances, allowances, and the two supply counters.
// Invariant: the sum of all balances equals TotalSupply at all times.
// TotalRedeemed is monotonically non-decreasing.
type Ledger struct {
	mu            sync.RWMutex
	balances      map[identity.Identity]uint64
	allowances    map[allowanceKey]uint64
	totalSupply   uint64
	totalRedeemed uint64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[identity.Identity]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

// BalanceOf returns the balance of id.
func (l *Ledger) BalanceOf(id identity.Identity) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[id]
}

// Allowance returns the remaining amount spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender identity.Identity) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[allowanceKey{owner: owner, spender: spender}]
}

// TotalSupply returns the current total supply.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply
}

// TotalRedeemed returns the cumulative amount burned through redemptions.
func (l *Ledger) TotalRedeemed() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalRedeemed
}

// Mint credits amount to `to`, growing total supply.
func (l *Ledger) Mint(to identity.Identity, amount uint64) error {
	if to.IsZero() {
		return fmt.Errorf("ledger: mint: %w", shared.ErrInvalidIdentity)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	newSupply, carry := bits.Add64(l.totalSupply, amount, 0)
	if carry != 0 {
		return fmt.Errorf("ledger: mint supply: %w", shared.ErrAmountOverflow)
	}
	newBalance, carry := bits.Add64(l.balances[to], amount, 0)
	if carry != 0 {
		return fmt.Errorf("ledger: mint balance: %w", shared.ErrAmountOverflow)
	}
	l.totalSupply = newSupply
	l.balances[to] = newBalance
	return nil
}

// Burn debits amount from `from`, shrinking total supply and growing the
// redeemed counter by exactly the burned amount.
func (l *Ledger) Burn(from identity.Identity, amount uint64) error {
	if from.IsZero() {
		return fmt.Errorf("ledger: burn: %w", shared.ErrInvalidIdentity)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[from]
	if amount > balance {
		return fmt.Errorf("ledger: burn: %w", shared.ErrInsufficientBalance)
	}
	newRedeemed, carry := bits.Add64(l.totalRedeemed, amount, 0)
	if carry != 0 {
		return fmt.Errorf("ledger: burn redeemed: %w", shared.ErrAmountOverflow)
	}
	l.balances[from] = balance - amount
	l.totalSupply -= amount
	l.totalRedeemed = newRedeemed
	return nil
}

// Move transfers amount from one holder to another.
func (l *Ledger) Move(from, to identity.Identity, amount uint64) error {
	if to.IsZero() {
		return fmt.Errorf("ledger: move: %w", shared.ErrInvalidIdentity)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.balances[from]
	if amount > balance {
		return fmt.Errorf("ledger: move: %w", shared.ErrInsufficientBalance)
	}
	newBalance, carry := bits.Add64(l.balances[to], amount, 0)
	if carry != 0 {
		return fmt.Errorf("ledger: move: %w", shared.ErrAmountOverflow)
	}
	l.balances[from] = balance - amount
	l.balances[to] = newBalance
	return nil
}

// Approve overwrites the allowance from owner to spender.
func (l *Ledger) Approve(owner, spender identity.Identity, amount uint64) error {
	if owner.IsZero() || spender.IsZero() {
		return fmt.Errorf("ledger: approve: %w", shared.ErrInvalidIdentity)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner: owner, spender: spender}] = amount
	return nil
}

// SpendAllowance decrements the allowance by exactly amount.
func (l *Ledger) SpendAllowance(owner, spender identity.Identity, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{owner: owner, spender: spender}
	current := l.allowances[key]
	if amount > current {
		return fmt.Errorf("ledger: spend allowance: %w", shared.ErrInsufficientAllowance)
	}
	l.allowances[key] = current - amount
	return nil
}

// CheckMove reports whether Move would succeed, without mutating. The token
// service uses it to validate multi-step operations up front so the whole
// operation stays all-or-nothing.
func (l *Ledger) CheckMove(from, to identity.Identity, amount uint64) error {
	if to.IsZero() {
		return fmt.Errorf("ledger: move: %w", shared.ErrInvalidIdentity)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if amount > l.balances[from] {
		return fmt.Errorf("ledger: move: %w", shared.ErrInsufficientBalance)
	}
	if _, carry := bits.Add64(l.balances[to], amount, 0); carry != 0 {
		return fmt.Errorf("ledger: move: %w", shared.ErrAmountOverflow)
	}
	return nil
}

// CheckBurn reports whether Burn would succeed, without mutating.
func (l *Ledger) CheckBurn(from identity.Identity, amount uint64) error {
	if from.IsZero() {
		return fmt.Errorf("ledger: burn: %w", shared.ErrInvalidIdentity)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if amount > l.balances[from] {
		return fmt.Errorf("ledger: burn: %w", shared.ErrInsufficientBalance)
	}
	if _, carry := bits.Add64(l.totalRedeemed, amount, 0); carry != 0 {
		return fmt.Errorf("ledger: burn: %w", shared.ErrAmountOverflow)
	}
	return nil
}

// SumBalances adds up every balance. Exposed for invariant checks in tests
// and the integrity sweep.
func (l *Ledger) SumBalances() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum uint64
	for _, b := range l.balances {
		sum += b
	}
	return sum
}
