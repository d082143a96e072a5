package domain

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Phase is the lifecycle of a request. Requests are created in PhaseRequested,
// move to PhaseCommitted when their epoch settles, and end in PhaseClaimed
// once the whole requested amount has been claimed.
type Phase int

const (
	PhaseRequested Phase = iota
	PhaseCommitted
	PhaseClaimed
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseRequested:
		return "requested"
	case PhaseCommitted:
		return "committed"
	case PhaseClaimed:
		return "claimed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// DepositRequest tracks one controller's deposit activity within one epoch.
// Same-epoch requests are fungible and additive.
type DepositRequest struct {
	Epoch         uint64
	NetAssets     sdkmath.Int
	ClaimedAssets sdkmath.Int
	Phase         Phase
}

// NewDepositRequest returns an empty request for the given epoch.
func NewDepositRequest(epoch uint64) *DepositRequest {
	return &DepositRequest{
		Epoch:         epoch,
		NetAssets:     sdkmath.ZeroInt(),
		ClaimedAssets: sdkmath.ZeroInt(),
		Phase:         PhaseRequested,
	}
}

// Add folds additional net assets into the request. Only open requests accept
// additions; the epoch's settlement freezes the requested total.
func (r *DepositRequest) Add(netAssets sdkmath.Int) error {
	if r.Phase != PhaseRequested {
		return fmt.Errorf("deposit request for epoch %d is %s, cannot add", r.Epoch, r.Phase)
	}
	sum, err := AddChecked(r.NetAssets, netAssets)
	if err != nil {
		return err
	}
	r.NetAssets = sum
	return nil
}

// Commit marks the request as settled-but-unclaimed.
func (r *DepositRequest) Commit() {
	if r.Phase == PhaseRequested {
		r.Phase = PhaseCommitted
	}
}

// Remaining returns the requested assets not yet claimed.
func (r *DepositRequest) Remaining() sdkmath.Int {
	return SubClamped(r.NetAssets, r.ClaimedAssets)
}

// Claim consumes assets from the remainder, enforcing claimed <= requested,
// and transitions to PhaseClaimed when the remainder is exhausted.
func (r *DepositRequest) Claim(assets sdkmath.Int) error {
	next := r.ClaimedAssets.Add(assets)
	if next.GT(r.NetAssets) {
		return fmt.Errorf("%w: deposit epoch %d claim %s over %s", ErrClaimExceedsRequest,
			r.Epoch, next, r.NetAssets)
	}
	r.ClaimedAssets = next
	if r.ClaimedAssets.Equal(r.NetAssets) {
		r.Phase = PhaseClaimed
	}
	return nil
}

// Exhausted reports whether the whole requested amount has been claimed.
func (r *DepositRequest) Exhausted() bool {
	return r.ClaimedAssets.GTE(r.NetAssets)
}

// RedeemRequest tracks one controller's redemption activity within one epoch.
// The shares were burned from the owner's balance at request time.
type RedeemRequest struct {
	Epoch         uint64
	Shares        sdkmath.Int
	ClaimedShares sdkmath.Int
	// EntryPrice is the controller's WAEP captured at request time, used to
	// compute the performance fee when the claim pays out.
	EntryPrice sdkmath.Int
	Phase      Phase
}

// NewRedeemRequest returns an empty request for the given epoch.
func NewRedeemRequest(epoch uint64, entryPrice sdkmath.Int) *RedeemRequest {
	return &RedeemRequest{
		Epoch:         epoch,
		Shares:        sdkmath.ZeroInt(),
		ClaimedShares: sdkmath.ZeroInt(),
		EntryPrice:    entryPrice,
		Phase:         PhaseRequested,
	}
}

// Add folds additional shares into the request, blending the entry price as a
// share-weighted average so the performance fee basis stays fair.
func (r *RedeemRequest) Add(shares, entryPrice sdkmath.Int) error {
	if r.Phase != PhaseRequested {
		return fmt.Errorf("redeem request for epoch %d is %s, cannot add", r.Epoch, r.Phase)
	}
	sum, err := AddChecked(r.Shares, shares)
	if err != nil {
		return err
	}
	if r.Shares.IsZero() {
		r.EntryPrice = entryPrice
	} else {
		blended, err := WeightedAverage(r.EntryPrice, r.Shares, entryPrice, shares)
		if err != nil {
			return err
		}
		r.EntryPrice = blended
	}
	r.Shares = sum
	return nil
}

// Commit marks the request as settled-but-unclaimed.
func (r *RedeemRequest) Commit() {
	if r.Phase == PhaseRequested {
		r.Phase = PhaseCommitted
	}
}

// Remaining returns the requested shares not yet paid out.
func (r *RedeemRequest) Remaining() sdkmath.Int {
	return SubClamped(r.Shares, r.ClaimedShares)
}

// Claim consumes shares from the remainder, enforcing claimed <= requested,
// and transitions to PhaseClaimed when the remainder is exhausted.
func (r *RedeemRequest) Claim(shares sdkmath.Int) error {
	next := r.ClaimedShares.Add(shares)
	if next.GT(r.Shares) {
		return fmt.Errorf("%w: redeem epoch %d claim %s over %s", ErrClaimExceedsRequest,
			r.Epoch, next, r.Shares)
	}
	r.ClaimedShares = next
	if r.ClaimedShares.Equal(r.Shares) {
		r.Phase = PhaseClaimed
	}
	return nil
}

// Exhausted reports whether the whole requested amount has been claimed.
func (r *RedeemRequest) Exhausted() bool {
	return r.ClaimedShares.GTE(r.Shares)
}
