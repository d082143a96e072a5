// Package engine implements the epoch-settled vault: the request ledger,
// settlement engine, and claim processor, serialized behind one vault-wide
// lock so every mutating operation observes a fully-applied state.
package engine

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrUnauthorized indicates the caller is neither owner/controller nor an
	// approved operator.
	ErrUnauthorized = errors.New("caller is not owner or approved operator")
	// ErrVaultPaused indicates the vault is temporarily not accepting requests.
	ErrVaultPaused = errors.New("vault is paused")
	// ErrVaultHalted indicates the vault is permanently halted.
	ErrVaultHalted = errors.New("vault is halted")
	// ErrZeroAmount indicates a zero or negative amount.
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrDepositLimitExceeded indicates a per-user or pool-wide limit breach.
	ErrDepositLimitExceeded = errors.New("deposit limit exceeded")
	// ErrInsufficientClaimable indicates a claim exceeding what is claimable
	// across the lookback window.
	ErrInsufficientClaimable = errors.New("insufficient claimable across window")
	// ErrInsufficientLiquidity indicates idle assets cannot cover a redeem
	// claim right now.
	ErrInsufficientLiquidity = errors.New("insufficient idle liquidity")
	// ErrEpochSource indicates the external epoch source is unreachable;
	// fatal to any operation that needs the current epoch.
	ErrEpochSource = errors.New("epoch source unavailable")
	// ErrStrategySource indicates the strategy could not report its assets.
	ErrStrategySource = errors.New("strategy unavailable")
	// ErrFutureEpoch indicates a settlement trigger ahead of the epoch source.
	ErrFutureEpoch = errors.New("epoch is ahead of the epoch source")
	// ErrUnknownAccount indicates an operation against an account with no state.
	ErrUnknownAccount = errors.New("unknown account")
)

// EpochSource reports the current epoch of the external pricing market. It
// must be side-effect free.
type EpochSource interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// AssetLedger is the external asset-token boundary. Transfers perform
// pre-flight balance checks and fail without partial effect.
type AssetLedger interface {
	BalanceOf(ctx context.Context, account string) (sdkmath.Int, error)
	Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error
}

// Status is the vault's administrative state.
type Status int

const (
	// StatusActive accepts all operations.
	StatusActive Status = iota
	// StatusPaused rejects new requests; settlement and claims continue.
	StatusPaused
	// StatusHalted is terminal: only claims remain possible.
	StatusHalted
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusHalted:
		return "halted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
