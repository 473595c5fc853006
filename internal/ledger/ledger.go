// Package ledger provides checked-arithmetic value accounting for the
// marketplace. Every escrow deposit, reward, fee, refund, and slash moves
// through a Book so that value is never created or destroyed by accident.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Common errors for ledger operations.
var (
	// ErrInsufficientFunds indicates a debit larger than the account balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOverflow indicates a checked arithmetic operation overflowed.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrZeroAccount indicates an empty account name.
	ErrZeroAccount = errors.New("account name must not be empty")
)

// Well-known account names.
const (
	// TreasuryAccount collects protocol fees and slashed stakes.
	TreasuryAccount = "treasury"
	// StakePoolAccount aggregates value bonded by agents.
	StakePoolAccount = "stakepool"
)

// EscrowAccount returns the ledger account name backing a task's escrow.
func EscrowAccount(taskID string) string {
	return "escrow/" + taskID
}

// AgentAccount returns the spendable ledger account of an authority.
func AgentAccount(authority string) string {
	return "agent/" + authority
}

// Add returns a+b, failing on overflow.
func Add(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a-b, failing on underflow.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*b, failing on overflow.
func Mul(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// Book tracks named balances. All mutations are checked: a failed operation
// leaves every balance untouched.
type Book struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

// NewBook creates an empty ledger book.
func NewBook() *Book {
	return &Book{balances: make(map[string]uint64)}
}

// Balance returns the current balance of an account (0 if never used).
func (b *Book) Balance(account string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[account]
}

// Credit adds amount to an account.
func (b *Book) Credit(account string, amount uint64) error {
	if account == "" {
		return ErrZeroAccount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	next, err := Add(b.balances[account], amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	b.balances[account] = next
	return nil
}

// Debit removes amount from an account, failing on insufficient balance.
func (b *Book) Debit(account string, amount uint64) error {
	if account == "" {
		return ErrZeroAccount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balances[account]
	if amount > cur {
		return fmt.Errorf("debit %s: %w", account, ErrInsufficientFunds)
	}
	b.balances[account] = cur - amount
	return nil
}

// Transfer atomically moves amount from one account to another.
func (b *Book) Transfer(from, to string, amount uint64) error {
	if from == "" || to == "" {
		return ErrZeroAccount
	}
	if amount == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balances[from]
	if amount > cur {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, ErrInsufficientFunds)
	}
	next, err := Add(b.balances[to], amount)
	if err != nil {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, err)
	}
	b.balances[from] = cur - amount
	b.balances[to] = next
	return nil
}

// Accounts returns all account names with a nonzero balance, sorted.
func (b *Book) Accounts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.balances))
	for name, bal := range b.balances {
		if bal > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Total returns the sum of all balances, failing on overflow.
func (b *Book) Total() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total uint64
	var err error
	for _, bal := range b.balances {
		total, err = Add(total, bal)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// SetBalance overwrites an account balance. Used by the state store when
// restoring a persisted ledger, never by engine operations.
func (b *Book) SetBalance(account string, amount uint64) error {
	if account == "" {
		return ErrZeroAccount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = amount
	return nil
}
