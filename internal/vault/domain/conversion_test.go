package domain

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestAssetsToSharesEmptyPool(t *testing.T) {
	shares, err := AssetsToShares(sdkmath.NewInt(1000), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !shares.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("expected 1:1 on empty pool, got %s", shares)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		assets int64
		total  int64
		supply int64
	}{
		{name: "par", assets: 500, total: 1000, supply: 1000},
		{name: "appreciated", assets: 500, total: 1500, supply: 1000},
		{name: "depreciated", assets: 500, total: 700, supply: 1000},
		{name: "uneven ratio", assets: 333, total: 997, supply: 761},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := sdkmath.NewInt(tt.total)
			supply := sdkmath.NewInt(tt.supply)
			shares, err := AssetsToShares(sdkmath.NewInt(tt.assets), total, supply)
			if err != nil {
				t.Fatalf("to shares: %v", err)
			}
			back, err := SharesToAssets(shares, total, supply)
			if err != nil {
				t.Fatalf("to assets: %v", err)
			}
			diff := sdkmath.NewInt(tt.assets).Sub(back).Abs()
			if diff.GT(sdkmath.OneInt()) {
				t.Fatalf("round trip drifted by %s: %d -> %s -> %s", diff, tt.assets, shares, back)
			}
			// Truncation must never favor the converter.
			if back.GT(sdkmath.NewInt(tt.assets)) {
				t.Fatalf("round trip inflated: %d -> %s", tt.assets, back)
			}
		})
	}
}

func TestSharePrice(t *testing.T) {
	price, err := SharePrice(sdkmath.NewInt(1500), sdkmath.NewInt(1000))
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Equal(sdkmath.NewInt(1_500_000)) {
		t.Fatalf("expected 1500000, got %s", price)
	}

	empty, err := SharePrice(sdkmath.ZeroInt(), sdkmath.ZeroInt())
	if err != nil {
		t.Fatalf("empty price: %v", err)
	}
	if !empty.Equal(PriceScaleInt()) {
		t.Fatalf("expected empty pool at par, got %s", empty)
	}
}

func TestPriceConversionsInverse(t *testing.T) {
	price := sdkmath.NewInt(1_250_000)
	shares, err := SharesAtPrice(sdkmath.NewInt(1000), price)
	if err != nil {
		t.Fatalf("shares at price: %v", err)
	}
	if !shares.Equal(sdkmath.NewInt(800)) {
		t.Fatalf("expected 800, got %s", shares)
	}
	assets, err := AssetsAtPrice(shares, price)
	if err != nil {
		t.Fatalf("assets at price: %v", err)
	}
	if !assets.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("expected 1000, got %s", assets)
	}
}
