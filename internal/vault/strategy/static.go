// Package strategy provides a simple yield-strategy implementation backing
// the vault's liquidity contract in local runs and tests.
package strategy

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/vault/domain"
)

// Ledger is the asset-moving surface the strategy needs.
type Ledger interface {
	BalanceOf(ctx context.Context, account string) (sdkmath.Int, error)
	Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error
}

// Static holds its assets in one ledger account and treats a configurable
// locked portion as not immediately withdrawable. It earns nothing; price
// movement in local runs comes from minting into or out of its account.
type Static struct {
	mu sync.Mutex

	ledger  Ledger
	account string
	vault   string
	locked  sdkmath.Int
}

// NewStatic returns a strategy holding assets in account and paying
// liquidity into vault.
func NewStatic(ledger Ledger, account, vault string) *Static {
	return &Static{
		ledger:  ledger,
		account: account,
		vault:   vault,
		locked:  sdkmath.ZeroInt(),
	}
}

// SetLocked marks a portion of the strategy's balance as not withdrawable.
func (s *Static) SetLocked(amount sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = amount
}

// AssetsUnderManagement reports the strategy's full ledger balance, locked
// portion included.
func (s *Static) AssetsUnderManagement(ctx context.Context) (sdkmath.Int, error) {
	return s.ledger.BalanceOf(ctx, s.account)
}

// ProvideLiquidity transfers up to the requested amount from the withdrawable
// tier into the vault account, reporting what it actually moved.
func (s *Static) ProvideLiquidity(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	available, err := s.withdrawable(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	take := sdkmath.MinInt(amount, available)
	if !take.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if err := s.ledger.Transfer(ctx, s.account, s.vault, take); err != nil {
		return sdkmath.Int{}, err
	}
	return take, nil
}

// FlushWithdrawable releases the whole withdrawable tier into the vault.
func (s *Static) FlushWithdrawable(ctx context.Context) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	available, err := s.withdrawable(ctx)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !available.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if err := s.ledger.Transfer(ctx, s.account, s.vault, available); err != nil {
		return sdkmath.Int{}, err
	}
	return available, nil
}

func (s *Static) withdrawable(ctx context.Context) (sdkmath.Int, error) {
	balance, err := s.ledger.BalanceOf(ctx, s.account)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return domain.SubClamped(balance, s.locked), nil
}
