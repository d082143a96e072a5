package domain

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// DefaultClaimWindowEpochs bounds how far back a claim scans for settled
// remainders.
const DefaultClaimWindowEpochs = 50

var (
	// ErrInvalidParams indicates a malformed parameter set.
	ErrInvalidParams = errors.New("invalid vault parameters")
)

// Params are the vault's economic parameters. Amount fields use asset units;
// rates are basis points.
type Params struct {
	// EntryCost is a fixed asset cost deducted from every deposit request and
	// forwarded to the fee recipient immediately.
	EntryCost sdkmath.Int
	// ExitCost is a fixed asset cost deducted from every redeem claim.
	ExitCost sdkmath.Int
	// ManagementRateBps is the annual dilution rate minted to the fee
	// recipient at settlement.
	ManagementRateBps int64
	// PerformanceRateBps is charged on profit above the hurdle at redemption.
	PerformanceRateBps int64
	// HurdleBps is the minimum return over WAEP before performance fee applies.
	HurdleBps int64
	// MaxUserDeposit caps one user's holdings plus pending deposits; zero
	// means unlimited.
	MaxUserDeposit sdkmath.Int
	// MaxPoolDeposit caps the pool's total assets; zero means unlimited.
	MaxPoolDeposit sdkmath.Int
	// ClaimWindowEpochs bounds the per-account epoch scan during claims.
	ClaimWindowEpochs int
	// FeeRecipient is the account credited with every fee.
	FeeRecipient string
}

// DefaultParams returns a zero-fee parameter set with the standard claim
// window, suitable as a base for tests and local runs.
func DefaultParams(feeRecipient string) Params {
	return Params{
		EntryCost:         sdkmath.ZeroInt(),
		ExitCost:          sdkmath.ZeroInt(),
		MaxUserDeposit:    sdkmath.ZeroInt(),
		MaxPoolDeposit:    sdkmath.ZeroInt(),
		ClaimWindowEpochs: DefaultClaimWindowEpochs,
		FeeRecipient:      feeRecipient,
	}
}

// Validate checks internal consistency of the parameter set.
func (p Params) Validate() error {
	if strings.TrimSpace(p.FeeRecipient) == "" {
		return fmt.Errorf("%w: fee recipient is required", ErrInvalidParams)
	}
	if p.EntryCost.IsNil() || p.EntryCost.IsNegative() {
		return fmt.Errorf("%w: entry cost must be non-negative", ErrInvalidParams)
	}
	if p.ExitCost.IsNil() || p.ExitCost.IsNegative() {
		return fmt.Errorf("%w: exit cost must be non-negative", ErrInvalidParams)
	}
	if p.ManagementRateBps < 0 || p.ManagementRateBps > BpsDenominator {
		return fmt.Errorf("%w: management rate out of range", ErrInvalidParams)
	}
	if p.PerformanceRateBps < 0 || p.PerformanceRateBps > BpsDenominator {
		return fmt.Errorf("%w: performance rate out of range", ErrInvalidParams)
	}
	if p.HurdleBps < 0 {
		return fmt.Errorf("%w: hurdle rate must be non-negative", ErrInvalidParams)
	}
	if p.MaxUserDeposit.IsNil() || p.MaxUserDeposit.IsNegative() {
		return fmt.Errorf("%w: max user deposit must be non-negative", ErrInvalidParams)
	}
	if p.MaxPoolDeposit.IsNil() || p.MaxPoolDeposit.IsNegative() {
		return fmt.Errorf("%w: max pool deposit must be non-negative", ErrInvalidParams)
	}
	if p.ClaimWindowEpochs <= 0 {
		return fmt.Errorf("%w: claim window must be positive", ErrInvalidParams)
	}
	return nil
}
