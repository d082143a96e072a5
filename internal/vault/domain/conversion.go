package domain

import (
	sdkmath "cosmossdk.io/math"
)

// AssetsToShares converts an asset amount into shares at the pool's current
// ratio. The +1 offsets keep the empty pool at a defined 1:1 ratio and make
// first-depositor donation attacks uneconomical.
func AssetsToShares(assets, totalAssets, effectiveSupply sdkmath.Int) (sdkmath.Int, error) {
	return MulDiv(assets, effectiveSupply.AddRaw(1), totalAssets.AddRaw(1))
}

// SharesToAssets converts a share amount into assets at the pool's current
// ratio, with the same +1 offsets as AssetsToShares.
func SharesToAssets(shares, totalAssets, effectiveSupply sdkmath.Int) (sdkmath.Int, error) {
	return MulDiv(shares, totalAssets.AddRaw(1), effectiveSupply.AddRaw(1))
}

// SharePrice returns the price of one share scaled by PriceScale. An empty
// pool prices at exactly 1.0.
func SharePrice(totalAssets, effectiveSupply sdkmath.Int) (sdkmath.Int, error) {
	if effectiveSupply.IsZero() {
		return PriceScaleInt(), nil
	}
	return MulDiv(totalAssets, PriceScaleInt(), effectiveSupply)
}

// SharesAtPrice converts assets into shares at a recorded settlement price.
func SharesAtPrice(assets, price sdkmath.Int) (sdkmath.Int, error) {
	return MulDiv(assets, PriceScaleInt(), price)
}

// AssetsAtPrice converts shares into assets at a recorded settlement price.
func AssetsAtPrice(shares, price sdkmath.Int) (sdkmath.Int, error) {
	return MulDiv(shares, price, PriceScaleInt())
}
