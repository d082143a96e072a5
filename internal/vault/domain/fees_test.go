package domain

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
)

func TestManagementFeeShares(t *testing.T) {
	supply := sdkmath.NewInt(1_000_000)

	// 200 bps over a full year dilutes by 2%.
	fee, err := ManagementFeeShares(supply, 200, 365*24*time.Hour)
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if !fee.Equal(sdkmath.NewInt(20_000)) {
		t.Fatalf("expected 20000, got %s", fee)
	}

	// Half a year accrues half.
	fee, err = ManagementFeeShares(supply, 200, 365*12*time.Hour)
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if !fee.Equal(sdkmath.NewInt(10_000)) {
		t.Fatalf("expected 10000, got %s", fee)
	}

	// Zero rate, zero elapsed, or zero supply accrue nothing.
	for _, tc := range []struct {
		rate    int64
		elapsed time.Duration
		supply  sdkmath.Int
	}{
		{0, time.Hour, supply},
		{200, 0, supply},
		{200, time.Hour, sdkmath.ZeroInt()},
	} {
		fee, err := ManagementFeeShares(tc.supply, tc.rate, tc.elapsed)
		if err != nil {
			t.Fatalf("fee: %v", err)
		}
		if !fee.IsZero() {
			t.Fatalf("expected zero fee for rate=%d elapsed=%s supply=%s, got %s",
				tc.rate, tc.elapsed, tc.supply, fee)
		}
	}
}

func TestPerformanceFee(t *testing.T) {
	tests := []struct {
		name   string
		price  int64
		waep   int64
		shares int64
		rate   int64
		hurdle int64
		want   int64
	}{
		{
			// Entry at 1.0, exit at 1.5, 20% of the 500 profit.
			name: "profit above basis", price: 1_500_000, waep: 1_000_000,
			shares: 1000, rate: 2000, want: 100,
		},
		{
			name: "position at a loss", price: 900_000, waep: 1_000_000,
			shares: 1000, rate: 2000, want: 0,
		},
		{
			name: "flat position", price: 1_000_000, waep: 1_000_000,
			shares: 1000, rate: 2000, want: 0,
		},
		{
			// 10% hurdle on a 1.0 basis exempts the first 100000 per share.
			name: "hurdle absorbs part", price: 1_500_000, waep: 1_000_000,
			shares: 1000, rate: 2000, hurdle: 1000, want: 80,
		},
		{
			name: "hurdle absorbs all", price: 1_050_000, waep: 1_000_000,
			shares: 1000, rate: 2000, hurdle: 1000, want: 0,
		},
		{
			name: "zero rate", price: 2_000_000, waep: 1_000_000,
			shares: 1000, rate: 0, want: 0,
		},
		{
			name: "zero basis charges nothing", price: 1_500_000, waep: 0,
			shares: 1000, rate: 2000, want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PerformanceFee(sdkmath.NewInt(tt.price), sdkmath.NewInt(tt.waep),
				sdkmath.NewInt(tt.shares), tt.rate, tt.hurdle)
			if err != nil {
				t.Fatalf("fee: %v", err)
			}
			if !got.Equal(sdkmath.NewInt(tt.want)) {
				t.Fatalf("expected %d, got %s", tt.want, got)
			}
		})
	}
}
