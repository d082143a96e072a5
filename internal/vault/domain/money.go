// Package domain holds the pure accounting core of the vault: share
// conversion math, epoch settlement records, request lifecycles, account
// cost-basis tracking, and fee computation. Nothing in this package touches
// storage, transport, or the clock; callers inject every external fact.
package domain

import (
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

// PriceScale is the fixed-point scale for share prices. A share price of
// PriceScale means one share is worth exactly one asset unit.
const PriceScale = 1_000_000

var (
	// ErrOverflow indicates a computation exceeded the 256-bit integer range.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrDivisionByZero indicates a division with a non-positive denominator.
	ErrDivisionByZero = errors.New("division by non-positive denominator")
)

// PriceScaleInt returns PriceScale as an Int.
func PriceScaleInt() sdkmath.Int {
	return sdkmath.NewInt(PriceScale)
}

// MulDiv computes a*num/den with an unbounded intermediate product, truncating
// toward zero. The denominator must be positive; a result outside the 256-bit
// range is ErrOverflow.
func MulDiv(a, num, den sdkmath.Int) (sdkmath.Int, error) {
	if !den.IsPositive() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(a.BigInt(), num.BigInt())
	prod.Quo(prod, den.BigInt())
	if prod.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(prod), nil
}

// SubClamped returns a-b, clamped to zero when b exceeds a.
func SubClamped(a, b sdkmath.Int) sdkmath.Int {
	if b.GTE(a) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

// AddChecked returns a+b, mapping range violations to ErrOverflow.
func AddChecked(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.Int{}, ErrOverflow
	}
	return sum, nil
}

// WeightedAverage returns (priceA*weightA + priceB*weightB) / (weightA+weightB),
// the running-average rule used for cost-basis blending. The combined weight
// must be positive.
func WeightedAverage(priceA, weightA, priceB, weightB sdkmath.Int) (sdkmath.Int, error) {
	total, err := AddChecked(weightA, weightB)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !total.IsPositive() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	sum := new(big.Int).Mul(priceA.BigInt(), weightA.BigInt())
	sum.Add(sum, new(big.Int).Mul(priceB.BigInt(), weightB.BigInt()))
	sum.Quo(sum, total.BigInt())
	if sum.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(sum), nil
}
