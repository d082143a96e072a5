package domain

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestWAEPBlendsMints(t *testing.T) {
	acct := NewAccount("alice")

	if err := acct.Mint(sdkmath.NewInt(1_000_000), sdkmath.NewInt(100), 0); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	if !acct.WAEP.Price.Equal(sdkmath.NewInt(1_000_000)) {
		t.Fatalf("expected basis 1000000, got %s", acct.WAEP.Price)
	}

	if err := acct.Mint(sdkmath.NewInt(2_000_000), sdkmath.NewInt(100), 1); err != nil {
		t.Fatalf("second mint: %v", err)
	}
	if !acct.WAEP.Price.Equal(sdkmath.NewInt(1_500_000)) {
		t.Fatalf("expected blended basis 1500000, got %s", acct.WAEP.Price)
	}
	if !acct.Shares.Equal(sdkmath.NewInt(200)) {
		t.Fatalf("expected 200 shares, got %s", acct.Shares)
	}
}

func TestBurnKeepsBasis(t *testing.T) {
	acct := NewAccount("alice")
	if err := acct.Mint(sdkmath.NewInt(1_500_000), sdkmath.NewInt(200), 0); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := acct.Burn(sdkmath.NewInt(50), 1); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if !acct.WAEP.Price.Equal(sdkmath.NewInt(1_500_000)) {
		t.Fatalf("burn changed the basis to %s", acct.WAEP.Price)
	}
	if !acct.Shares.Equal(sdkmath.NewInt(150)) {
		t.Fatalf("expected 150 shares, got %s", acct.Shares)
	}

	if err := acct.Burn(sdkmath.NewInt(151), 2); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestEpochListOrderAndWindow(t *testing.T) {
	var list EpochList
	for _, epoch := range []uint64{1, 1, 2, 5, 5, 9} {
		list.Append(epoch)
	}
	want := []uint64{1, 2, 5, 9}
	if len(list.Epochs) != len(want) {
		t.Fatalf("expected %v, got %v", want, list.Epochs)
	}

	window := list.Window(2)
	if len(window) != 2 || window[0] != 5 || window[1] != 9 {
		t.Fatalf("expected window [5 9], got %v", window)
	}

	list.Remove(2)
	if list.Contains(2) {
		t.Fatalf("expected 2 removed, got %v", list.Epochs)
	}
	if list.Epochs[0] != 1 || list.Epochs[1] != 5 {
		t.Fatalf("removal broke ordering: %v", list.Epochs)
	}
}

func TestAllowanceLifecycle(t *testing.T) {
	acct := NewAccount("alice")
	acct.SetAllowance("bob", sdkmath.NewInt(100))

	if err := acct.SpendAllowance("bob", sdkmath.NewInt(40)); err != nil {
		t.Fatalf("spend: %v", err)
	}
	if !acct.Allowance("bob").Equal(sdkmath.NewInt(60)) {
		t.Fatalf("expected 60 remaining, got %s", acct.Allowance("bob"))
	}
	if err := acct.SpendAllowance("bob", sdkmath.NewInt(61)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if err := acct.SpendAllowance("carol", sdkmath.NewInt(1)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected zero allowance for stranger, got %v", err)
	}
}

func TestRedeemRequestBlendsEntryPrice(t *testing.T) {
	req := NewRedeemRequest(0, sdkmath.NewInt(1_000_000))
	if err := req.Add(sdkmath.NewInt(100), sdkmath.NewInt(1_000_000)); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := req.Add(sdkmath.NewInt(300), sdkmath.NewInt(2_000_000)); err != nil {
		t.Fatalf("second add: %v", err)
	}
	if !req.EntryPrice.Equal(sdkmath.NewInt(1_750_000)) {
		t.Fatalf("expected blended entry 1750000, got %s", req.EntryPrice)
	}

	req.Commit()
	if err := req.Add(sdkmath.NewInt(1), sdkmath.NewInt(1)); err == nil {
		t.Fatal("expected committed request to reject additions")
	}
}
