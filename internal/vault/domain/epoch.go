package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrAlreadySettled indicates a duplicate settlement of the same epoch.
	ErrAlreadySettled = errors.New("epoch is already settled")
	// ErrNotSettled indicates a claim against an epoch that has no price yet.
	ErrNotSettled = errors.New("epoch is not settled")
	// ErrClaimExceedsRequest indicates a claim larger than the requested remainder.
	ErrClaimExceedsRequest = errors.New("claim exceeds requested remainder")
)

// EpochRecord is the per-epoch settlement record. An epoch moves from Open to
// Settled exactly once; the settlement price is written on that transition and
// never again.
type EpochRecord struct {
	Epoch   uint64
	Settled bool
	// SharePrice is the settlement price scaled by PriceScale. Zero until settled.
	SharePrice sdkmath.Int
	SettledAt  time.Time

	RequestedDepositAssets sdkmath.Int
	ClaimedDepositAssets   sdkmath.Int
	RequestedRedeemShares  sdkmath.Int
	ClaimedRedeemShares    sdkmath.Int

	// Participants are the controllers with requests tagged to this epoch,
	// kept sorted so settlement processes them in a deterministic order.
	Participants []string
}

// NewEpochRecord returns an open record for the given epoch number.
func NewEpochRecord(epoch uint64) *EpochRecord {
	return &EpochRecord{
		Epoch:                  epoch,
		SharePrice:             sdkmath.ZeroInt(),
		RequestedDepositAssets: sdkmath.ZeroInt(),
		ClaimedDepositAssets:   sdkmath.ZeroInt(),
		RequestedRedeemShares:  sdkmath.ZeroInt(),
		ClaimedRedeemShares:    sdkmath.ZeroInt(),
	}
}

// Settle transitions the record from Open to Settled, stamping the price and
// timestamp. A second call returns ErrAlreadySettled without mutating anything.
func (r *EpochRecord) Settle(price sdkmath.Int, at time.Time) error {
	if r.Settled {
		return fmt.Errorf("%w: epoch %d settled at %s", ErrAlreadySettled, r.Epoch, r.SettledAt.UTC().Format(time.RFC3339))
	}
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("settlement price must be positive, got %s", price)
	}
	r.Settled = true
	r.SharePrice = price
	r.SettledAt = at.UTC()
	return nil
}

// AddParticipant registers a controller for this epoch, preserving sorted order.
func (r *EpochRecord) AddParticipant(controller string) {
	i := sort.SearchStrings(r.Participants, controller)
	if i < len(r.Participants) && r.Participants[i] == controller {
		return
	}
	r.Participants = append(r.Participants, "")
	copy(r.Participants[i+1:], r.Participants[i:])
	r.Participants[i] = controller
}

// RecordDepositRequest adds net assets to the epoch's deposit totals.
func (r *EpochRecord) RecordDepositRequest(netAssets sdkmath.Int) error {
	sum, err := AddChecked(r.RequestedDepositAssets, netAssets)
	if err != nil {
		return err
	}
	r.RequestedDepositAssets = sum
	return nil
}

// RecordRedeemRequest adds shares to the epoch's redeem totals.
func (r *EpochRecord) RecordRedeemRequest(shares sdkmath.Int) error {
	sum, err := AddChecked(r.RequestedRedeemShares, shares)
	if err != nil {
		return err
	}
	r.RequestedRedeemShares = sum
	return nil
}

// RecordDepositClaim moves assets from requested to claimed, enforcing
// claimed <= requested.
func (r *EpochRecord) RecordDepositClaim(assets sdkmath.Int) error {
	next := r.ClaimedDepositAssets.Add(assets)
	if next.GT(r.RequestedDepositAssets) {
		return fmt.Errorf("%w: epoch %d deposit claim %s over %s", ErrClaimExceedsRequest,
			r.Epoch, next, r.RequestedDepositAssets)
	}
	r.ClaimedDepositAssets = next
	return nil
}

// RecordRedeemClaim moves shares from requested to claimed, enforcing
// claimed <= requested.
func (r *EpochRecord) RecordRedeemClaim(shares sdkmath.Int) error {
	next := r.ClaimedRedeemShares.Add(shares)
	if next.GT(r.RequestedRedeemShares) {
		return fmt.Errorf("%w: epoch %d redeem claim %s over %s", ErrClaimExceedsRequest,
			r.Epoch, next, r.RequestedRedeemShares)
	}
	r.ClaimedRedeemShares = next
	return nil
}

// UnclaimedDepositAssets returns the deposit assets not yet claimed as shares.
func (r *EpochRecord) UnclaimedDepositAssets() sdkmath.Int {
	return SubClamped(r.RequestedDepositAssets, r.ClaimedDepositAssets)
}

// UnclaimedRedeemShares returns the redeem shares not yet paid out.
func (r *EpochRecord) UnclaimedRedeemShares() sdkmath.Int {
	return SubClamped(r.RequestedRedeemShares, r.ClaimedRedeemShares)
}

// UnclaimedRedeemAssets values the unpaid redeem shares at the settlement
// price. It is zero for an unsettled epoch.
func (r *EpochRecord) UnclaimedRedeemAssets() (sdkmath.Int, error) {
	if !r.Settled {
		return sdkmath.ZeroInt(), nil
	}
	return AssetsAtPrice(r.UnclaimedRedeemShares(), r.SharePrice)
}
