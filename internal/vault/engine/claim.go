package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/metrics"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// DepositClaimResult reports a fulfilled deposit claim.
type DepositClaimResult struct {
	AssetsClaimed sdkmath.Int
	SharesMinted  sdkmath.Int
}

// RedeemClaimResult reports a fulfilled redeem claim.
type RedeemClaimResult struct {
	SharesClaimed sdkmath.Int
	// AssetsPaid is the net payout after the exit cost and performance fee.
	AssetsPaid sdkmath.Int
	Fees       sdkmath.Int
}

// depositSlice is one epoch's contribution to a deposit claim plan.
type depositSlice struct {
	epoch  uint64
	assets sdkmath.Int
	price  sdkmath.Int
}

// redeemSlice is one epoch's contribution to a redeem claim plan.
type redeemSlice struct {
	epoch  uint64
	shares sdkmath.Int
	price  sdkmath.Int
	fee    sdkmath.Int
	gross  sdkmath.Int
}

// ClaimDeposit mints shares for settled deposit remainders, consuming epochs
// oldest first across the claim window. Each slice mints at its own epoch's
// settlement price. Claims stay available while the vault is paused or
// halted.
func (e *Engine) ClaimDeposit(ctx context.Context, caller, controller string, assets sdkmath.Int) (DepositClaimResult, error) {
	ctx, span := e.tracer.Start(ctx, "ClaimDeposit")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if assets.IsNil() || !assets.IsPositive() {
		return DepositClaimResult{}, ErrZeroAmount
	}
	acct, ok := e.state.Accounts[controller]
	if !ok {
		return DepositClaimResult{}, ErrUnknownAccount
	}
	if caller != controller && !acct.IsOperator(caller) {
		return DepositClaimResult{}, ErrUnauthorized
	}

	// Plan the whole claim before touching anything, so an amount exceeding
	// the claimable remainder rejects with no partial effect.
	plan, err := e.planDepositClaim(acct, assets)
	if err != nil {
		return DepositClaimResult{}, err
	}

	minted := sdkmath.ZeroInt()
	batch := storage.Batch{}
	touched := make(map[uint64]bool)
	for _, slice := range plan {
		shares, err := domain.SharesAtPrice(slice.assets, slice.price)
		if err != nil {
			return DepositClaimResult{}, err
		}
		req := acct.Deposits[slice.epoch]
		if err := req.Claim(slice.assets); err != nil {
			return DepositClaimResult{}, err
		}
		rec := e.state.Epochs[slice.epoch]
		if err := rec.RecordDepositClaim(slice.assets); err != nil {
			return DepositClaimResult{}, err
		}
		if err := acct.Mint(slice.price, shares, slice.epoch); err != nil {
			return DepositClaimResult{}, err
		}
		e.state.TotalShares = e.state.TotalShares.Add(shares)
		e.state.UnmintedDepositAssets = domain.SubClamped(e.state.UnmintedDepositAssets, slice.assets)
		minted = minted.Add(shares)

		touched[slice.epoch] = true
		if req.Exhausted() {
			acct.DropDeposit(slice.epoch)
			batch.DeleteDeposits = append(batch.DeleteDeposits, storage.RequestKey{AccountID: controller, Epoch: slice.epoch})
		} else {
			batch.Deposits = append(batch.Deposits, depositRecord(controller, req))
		}
	}
	for epoch := range touched {
		batch.Epochs = append(batch.Epochs, epochRecord(e.state.Epochs[epoch]))
	}
	batch.Accounts = []storage.AccountRecord{accountRecord(acct)}
	batch.State = e.stateRecord()

	if e.metrics != nil {
		e.metrics.DepositClaims.Inc()
	}
	e.exportGauges()
	e.persist(ctx, batch)
	return DepositClaimResult{AssetsClaimed: assets, SharesMinted: minted}, nil
}

// ClaimRedeem pays out settled redemption remainders, consuming epochs oldest
// first across the claim window. Each slice converts at its own epoch's
// settlement price; the performance fee and exit cost come off the payout and
// go to the fee recipient. Claims stay available while the vault is paused or
// halted.
func (e *Engine) ClaimRedeem(ctx context.Context, caller, controller string, shares sdkmath.Int) (RedeemClaimResult, error) {
	ctx, span := e.tracer.Start(ctx, "ClaimRedeem")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if shares.IsNil() || !shares.IsPositive() {
		return RedeemClaimResult{}, ErrZeroAmount
	}
	acct, ok := e.state.Accounts[controller]
	if !ok {
		return RedeemClaimResult{}, ErrUnknownAccount
	}
	if caller != controller && !acct.IsOperator(caller) {
		return RedeemClaimResult{}, ErrUnauthorized
	}

	plan, gross, perfFee, err := e.planRedeemClaim(acct, shares)
	if err != nil {
		return RedeemClaimResult{}, err
	}
	fees, err := domain.AddChecked(perfFee, e.params.ExitCost)
	if err != nil {
		return RedeemClaimResult{}, err
	}
	net := gross.Sub(fees)
	if !net.IsPositive() {
		return RedeemClaimResult{}, fmt.Errorf("%w: payout %s does not cover fees %s", ErrZeroAmount, gross, fees)
	}
	if e.state.IdleAssets.LT(gross) {
		return RedeemClaimResult{}, fmt.Errorf("%w: need %s, idle %s", ErrInsufficientLiquidity, gross, e.state.IdleAssets)
	}

	// Pay before mutating; a failed transfer leaves the request intact.
	if err := e.assets.Transfer(ctx, VaultAccount, controller, net); err != nil {
		return RedeemClaimResult{}, fmt.Errorf("transfer payout: %w", err)
	}
	if fees.IsPositive() {
		if err := e.assets.Transfer(ctx, VaultAccount, e.params.FeeRecipient, fees); err != nil {
			return RedeemClaimResult{}, fmt.Errorf("forward fees: %w", err)
		}
	}

	batch := storage.Batch{}
	touched := make(map[uint64]bool)
	for _, slice := range plan {
		req := acct.Redeems[slice.epoch]
		if err := req.Claim(slice.shares); err != nil {
			return RedeemClaimResult{}, err
		}
		rec := e.state.Epochs[slice.epoch]
		if err := rec.RecordRedeemClaim(slice.shares); err != nil {
			return RedeemClaimResult{}, err
		}
		touched[slice.epoch] = true
		if req.Exhausted() {
			acct.DropRedeem(slice.epoch)
			batch.DeleteRedeems = append(batch.DeleteRedeems, storage.RequestKey{AccountID: controller, Epoch: slice.epoch})
		} else {
			batch.Redeems = append(batch.Redeems, redeemRecord(controller, req))
		}
	}
	e.state.IdleAssets = e.state.IdleAssets.Sub(gross)
	if fees.IsPositive() {
		collected, err := domain.AddChecked(e.state.FeeCursor.TotalCollected, fees)
		if err != nil {
			return RedeemClaimResult{}, err
		}
		e.state.FeeCursor.TotalCollected = collected
	}
	for epoch := range touched {
		batch.Epochs = append(batch.Epochs, epochRecord(e.state.Epochs[epoch]))
	}
	batch.Accounts = []storage.AccountRecord{accountRecord(acct)}
	batch.State = e.stateRecord()

	if e.metrics != nil {
		e.metrics.RedeemClaims.Inc()
		e.metrics.FeeAssets.Add(metrics.Float(fees))
	}
	e.exportGauges()
	e.persist(ctx, batch)
	return RedeemClaimResult{SharesClaimed: shares, AssetsPaid: net, Fees: fees}, nil
}

// planDepositClaim walks the account's settled deposit remainders oldest
// first and allocates the claimed amount across them. It fails when the
// window cannot cover the amount.
func (e *Engine) planDepositClaim(acct *domain.Account, assets sdkmath.Int) ([]depositSlice, error) {
	var plan []depositSlice
	remaining := assets
	for _, epoch := range acct.DepositEpochs.Window(e.params.ClaimWindowEpochs) {
		req, ok := acct.Deposits[epoch]
		if !ok || req.Phase != domain.PhaseCommitted {
			continue
		}
		rec, ok := e.state.Epochs[epoch]
		if !ok || !rec.Settled {
			continue
		}
		take := sdkmath.MinInt(remaining, req.Remaining())
		if !take.IsPositive() {
			continue
		}
		plan = append(plan, depositSlice{epoch: epoch, assets: take, price: rec.SharePrice})
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}
	if !remaining.IsZero() {
		return nil, fmt.Errorf("%w: %s short", ErrInsufficientClaimable, remaining)
	}
	return plan, nil
}

// planRedeemClaim walks the account's settled redemption remainders oldest
// first, pricing each slice and its performance fee at its own epoch.
func (e *Engine) planRedeemClaim(acct *domain.Account, shares sdkmath.Int) ([]redeemSlice, sdkmath.Int, sdkmath.Int, error) {
	var plan []redeemSlice
	remaining := shares
	gross := sdkmath.ZeroInt()
	perfFee := sdkmath.ZeroInt()
	for _, epoch := range acct.RedeemEpochs.Window(e.params.ClaimWindowEpochs) {
		req, ok := acct.Redeems[epoch]
		if !ok || req.Phase != domain.PhaseCommitted {
			continue
		}
		rec, ok := e.state.Epochs[epoch]
		if !ok || !rec.Settled {
			continue
		}
		take := sdkmath.MinInt(remaining, req.Remaining())
		if !take.IsPositive() {
			continue
		}
		sliceGross, err := domain.AssetsAtPrice(take, rec.SharePrice)
		if err != nil {
			return nil, sdkmath.Int{}, sdkmath.Int{}, err
		}
		sliceFee, err := domain.PerformanceFee(rec.SharePrice, req.EntryPrice, take,
			e.params.PerformanceRateBps, e.params.HurdleBps)
		if err != nil {
			return nil, sdkmath.Int{}, sdkmath.Int{}, err
		}
		plan = append(plan, redeemSlice{epoch: epoch, shares: take, price: rec.SharePrice, fee: sliceFee, gross: sliceGross})
		gross = gross.Add(sliceGross)
		perfFee = perfFee.Add(sliceFee)
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}
	if !remaining.IsZero() {
		return nil, sdkmath.Int{}, sdkmath.Int{}, fmt.Errorf("%w: %s short", ErrInsufficientClaimable, remaining)
	}
	return plan, gross, perfFee, nil
}
