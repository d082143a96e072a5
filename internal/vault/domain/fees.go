package domain

import (
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	// BpsDenominator is the basis-point scale used for all fee rates.
	BpsDenominator = 10_000
	// SecondsPerYear is the accrual base for the management fee.
	SecondsPerYear = 365 * 24 * 60 * 60
)

// FeeCursor tracks fee accrual across settlements.
type FeeCursor struct {
	// LastFeeAt is the timestamp management fee was last accrued to. A zero
	// value means accrual has not started; the first settlement stamps it
	// without charging anything.
	LastFeeAt time.Time
	// TotalCollected is the cumulative fee value collected, in assets.
	TotalCollected sdkmath.Int
}

// NewFeeCursor returns a zeroed cursor.
func NewFeeCursor() FeeCursor {
	return FeeCursor{TotalCollected: sdkmath.ZeroInt()}
}

// ManagementFeeShares computes the dilutive share mint for one accrual
// period: effectiveSupply * annualRateBps * elapsedSeconds / (bps * secondsPerYear).
func ManagementFeeShares(effectiveSupply sdkmath.Int, annualRateBps int64, elapsed time.Duration) (sdkmath.Int, error) {
	seconds := int64(elapsed / time.Second)
	if annualRateBps <= 0 || seconds <= 0 || !effectiveSupply.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	num := new(big.Int).Mul(effectiveSupply.BigInt(), big.NewInt(annualRateBps))
	num.Mul(num, big.NewInt(seconds))
	num.Quo(num, big.NewInt(BpsDenominator*int64(SecondsPerYear)))
	if num.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(num), nil
}

// PerformanceFee computes the fee, in assets, owed on redeeming shares at the
// given settlement price against a WAEP cost basis. Only profit above the
// hurdle threshold is fee-eligible; a position at a loss or at the hurdle
// pays nothing.
func PerformanceFee(price, waep, shares sdkmath.Int, perfRateBps, hurdleBps int64) (sdkmath.Int, error) {
	if perfRateBps <= 0 || !shares.IsPositive() || waep.IsNil() || !waep.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	profitPerShare := SubClamped(price, waep)
	if profitPerShare.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if hurdleBps > 0 {
		hurdle, err := MulDiv(waep, sdkmath.NewInt(hurdleBps), sdkmath.NewInt(BpsDenominator))
		if err != nil {
			return sdkmath.Int{}, err
		}
		profitPerShare = SubClamped(profitPerShare, hurdle)
		if profitPerShare.IsZero() {
			return sdkmath.ZeroInt(), nil
		}
	}
	// profitPerShare is price-scaled; multiply by shares and unscale to assets.
	profit, err := MulDiv(profitPerShare, shares, PriceScaleInt())
	if err != nil {
		return sdkmath.Int{}, err
	}
	return MulDiv(profit, sdkmath.NewInt(perfRateBps), sdkmath.NewInt(BpsDenominator))
}
