// Package assets provides an in-memory asset-token ledger for local runs and
// tests. Production deployments are expected to adapt a real token boundary
// to the engine's AssetLedger interface.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// ErrInsufficientFunds indicates a transfer larger than the source balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is a thread-safe in-memory balance table.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]sdkmath.Int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]sdkmath.Int)}
}

// Mint credits an account out of thin air; it exists to seed balances.
func (l *Ledger) Mint(account string, amount sdkmath.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balance(account).Add(amount)
}

// BalanceOf reports an account's balance; unknown accounts hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, account string) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.Int{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(account), nil
}

// Transfer moves amount between accounts, failing without partial effect when
// the source balance is short.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("transfer amount must be non-negative, got %s", amount)
	}
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	source := l.balance(from)
	if source.LT(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, source, amount)
	}
	l.balances[from] = source.Sub(amount)
	l.balances[to] = l.balance(to).Add(amount)
	return nil
}

func (l *Ledger) balance(account string) sdkmath.Int {
	if v, ok := l.balances[account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}
