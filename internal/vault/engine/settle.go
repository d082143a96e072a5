package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/metrics"
	"github.com/louisbranch/epochvault/internal/telemetry"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/liquidity"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// SettlementSummary reports the outcome of one epoch settlement.
type SettlementSummary struct {
	Epoch      uint64
	SharePrice sdkmath.Int
	// DepositAssets and RedeemShares are the epoch's committed totals.
	DepositAssets sdkmath.Int
	RedeemShares  sdkmath.Int
	// FeeShares is the dilutive management-fee mint.
	FeeShares sdkmath.Int
	Liquidity liquidity.Outcome
}

// OnRoundSettled settles one epoch: fix the share price exactly once, accrue
// the management fee, source whatever liquidity the newly-owed redemptions
// need, and auto-process the epoch's pending requests. A repeat call for the
// same epoch is rejected without effect.
//
// Settlement proceeds while paused; only a halted vault blocks it.
func (e *Engine) OnRoundSettled(ctx context.Context, epoch uint64) (SettlementSummary, error) {
	ctx, span := e.tracer.Start(ctx, "OnRoundSettled")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusHalted {
		return SettlementSummary{}, ErrVaultHalted
	}
	current, err := e.epochs.CurrentEpoch(ctx)
	if err != nil {
		return SettlementSummary{}, fmt.Errorf("%w: %v", ErrEpochSource, err)
	}
	if epoch > current {
		return SettlementSummary{}, fmt.Errorf("%w: epoch %d, source at %d", ErrFutureEpoch, epoch, current)
	}
	rec := e.state.epoch(epoch)
	if rec.Settled {
		return SettlementSummary{}, fmt.Errorf("%w: epoch %d settled at %s",
			domain.ErrAlreadySettled, epoch, rec.SettledAt)
	}
	aum, err := e.strategyAssets(ctx)
	if err != nil {
		return SettlementSummary{}, err
	}
	now := e.clock().UTC()

	total, err := e.state.TotalAssets(aum, e.params.ClaimWindowEpochs)
	if err != nil {
		return SettlementSummary{}, err
	}
	price, err := domain.SharePrice(total, e.state.EffectiveSupply())
	if err != nil {
		return SettlementSummary{}, err
	}
	if err := rec.Settle(price, now); err != nil {
		return SettlementSummary{}, err
	}
	e.state.markSettled(epoch)

	// The management fee dilutes supply only after the price is fixed, so
	// this epoch's requests convert at the undiluted price. The recipient's
	// basis is that same price.
	feeShares, err := e.accrueManagementFee(now)
	if err != nil {
		return SettlementSummary{}, err
	}
	batch := storage.Batch{}
	if feeShares.IsPositive() {
		recipient := e.state.account(e.params.FeeRecipient)
		if err := recipient.Mint(price, feeShares, epoch); err != nil {
			return SettlementSummary{}, err
		}
		feeAssets, err := domain.AssetsAtPrice(feeShares, price)
		if err != nil {
			return SettlementSummary{}, err
		}
		collected, err := domain.AddChecked(e.state.FeeCursor.TotalCollected, feeAssets)
		if err != nil {
			return SettlementSummary{}, err
		}
		e.state.FeeCursor.TotalCollected = collected
		batch.Accounts = append(batch.Accounts, accountRecord(recipient))
		if e.metrics != nil {
			e.metrics.FeeAssets.Add(metrics.Float(feeAssets))
		}
	}

	e.state.PendingRedeemShares = domain.SubClamped(e.state.PendingRedeemShares, rec.RequestedRedeemShares)

	outcome := e.sourceLiquidity(ctx, epoch)

	// Auto-process the epoch's requests in deterministic account order.
	// Deposits always mint at this price; redemptions pay out as far as idle
	// liquidity reaches, and whatever stays unpaid remains claimable.
	for _, controller := range rec.Participants {
		if err := e.autoProcess(ctx, rec, controller, &batch); err != nil {
			return SettlementSummary{}, err
		}
	}
	batch.Epochs = append(batch.Epochs, epochRecord(rec))

	// Whatever idle remains beyond owed redemptions and unminted deposits is
	// free for the strategy to reinvest.
	owed, err := e.state.ClaimableRedeemAssets(e.params.ClaimWindowEpochs)
	if err != nil {
		return SettlementSummary{}, err
	}
	reserved, err := domain.AddChecked(owed, e.state.UnmintedDepositAssets)
	if err != nil {
		return SettlementSummary{}, err
	}
	e.state.ReinvestableSurplus = domain.SubClamped(e.state.IdleAssets, reserved)

	if e.metrics != nil {
		e.metrics.EpochsSettled.Inc()
		e.metrics.LiquidityOutcomes.WithLabelValues(outcome.Result.String()).Inc()
	}
	e.exportGauges()

	if err := e.telemetry.Emit(ctx, telemetry.SeverityInfo, telemetry.KindEpochSettled, map[string]string{
		"epoch":          fmt.Sprint(epoch),
		"share_price":    price.String(),
		"deposit_assets": rec.RequestedDepositAssets.String(),
		"redeem_shares":  rec.RequestedRedeemShares.String(),
		"fee_shares":     feeShares.String(),
	}); err != nil {
		log.Printf("telemetry emit failed: %v", err)
	}

	batch.State = e.stateRecord()
	e.persist(ctx, batch)
	return SettlementSummary{
		Epoch:         epoch,
		SharePrice:    price,
		DepositAssets: rec.RequestedDepositAssets,
		RedeemShares:  rec.RequestedRedeemShares,
		FeeShares:     feeShares,
		Liquidity:     outcome,
	}, nil
}

// accrueManagementFee mints the dilutive fee for the period since the last
// accrual. The first call only stamps the cursor.
func (e *Engine) accrueManagementFee(now time.Time) (sdkmath.Int, error) {
	cursor := &e.state.FeeCursor
	if cursor.LastFeeAt.IsZero() {
		cursor.LastFeeAt = now
		return sdkmath.ZeroInt(), nil
	}
	elapsed := now.Sub(cursor.LastFeeAt)
	cursor.LastFeeAt = now
	feeShares, err := domain.ManagementFeeShares(e.state.EffectiveSupply(), e.params.ManagementRateBps, elapsed)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if feeShares.IsPositive() {
		e.state.TotalShares = e.state.TotalShares.Add(feeShares)
	}
	return feeShares, nil
}

// autoProcess converts one controller's requests for the settling epoch.
// Deposit shares always mint at the epoch price. A redemption pays out in
// full when idle liquidity covers its gross value; otherwise it stays
// claimable through the claim window.
func (e *Engine) autoProcess(ctx context.Context, rec *domain.EpochRecord, controller string, batch *storage.Batch) error {
	acct, ok := e.state.Accounts[controller]
	if !ok {
		return nil
	}
	touched := false
	if req, ok := acct.Deposits[rec.Epoch]; ok {
		req.Commit()
		touched = true
		assets := req.Remaining()
		shares, err := domain.SharesAtPrice(assets, rec.SharePrice)
		if err != nil {
			return err
		}
		if err := req.Claim(assets); err != nil {
			return err
		}
		if err := rec.RecordDepositClaim(assets); err != nil {
			return err
		}
		if shares.IsPositive() {
			if err := acct.Mint(rec.SharePrice, shares, rec.Epoch); err != nil {
				return err
			}
			e.state.TotalShares = e.state.TotalShares.Add(shares)
		}
		e.state.UnmintedDepositAssets = domain.SubClamped(e.state.UnmintedDepositAssets, assets)
		acct.DropDeposit(rec.Epoch)
		batch.DeleteDeposits = append(batch.DeleteDeposits, storage.RequestKey{AccountID: controller, Epoch: rec.Epoch})
	}
	if req, ok := acct.Redeems[rec.Epoch]; ok {
		req.Commit()
		touched = true
		paid, err := e.payRedeem(ctx, rec, controller, acct, req)
		if err != nil {
			return err
		}
		if paid {
			batch.DeleteRedeems = append(batch.DeleteRedeems, storage.RequestKey{AccountID: controller, Epoch: rec.Epoch})
		} else {
			batch.Redeems = append(batch.Redeems, redeemRecord(controller, req))
		}
	}
	if touched {
		batch.Accounts = append(batch.Accounts, accountRecord(acct))
	}
	return nil
}

// payRedeem attempts the full payout of one committed redemption at the
// epoch's settlement price. It reports false without effect when the payout
// would not cover its fees or idle liquidity cannot cover the gross value.
func (e *Engine) payRedeem(ctx context.Context, rec *domain.EpochRecord, controller string, acct *domain.Account, req *domain.RedeemRequest) (bool, error) {
	shares := req.Remaining()
	if !shares.IsPositive() {
		return false, nil
	}
	gross, err := domain.AssetsAtPrice(shares, rec.SharePrice)
	if err != nil {
		return false, err
	}
	perfFee, err := domain.PerformanceFee(rec.SharePrice, req.EntryPrice, shares,
		e.params.PerformanceRateBps, e.params.HurdleBps)
	if err != nil {
		return false, err
	}
	fees, err := domain.AddChecked(perfFee, e.params.ExitCost)
	if err != nil {
		return false, err
	}
	net := gross.Sub(fees)
	if !net.IsPositive() || e.state.IdleAssets.LT(gross) {
		return false, nil
	}

	if err := e.assets.Transfer(ctx, VaultAccount, controller, net); err != nil {
		return false, fmt.Errorf("transfer payout: %w", err)
	}
	if fees.IsPositive() {
		if err := e.assets.Transfer(ctx, VaultAccount, e.params.FeeRecipient, fees); err != nil {
			return false, fmt.Errorf("forward fees: %w", err)
		}
	}

	if err := req.Claim(shares); err != nil {
		return false, err
	}
	if err := rec.RecordRedeemClaim(shares); err != nil {
		return false, err
	}
	e.state.IdleAssets = e.state.IdleAssets.Sub(gross)
	if fees.IsPositive() {
		collected, err := domain.AddChecked(e.state.FeeCursor.TotalCollected, fees)
		if err != nil {
			return false, err
		}
		e.state.FeeCursor.TotalCollected = collected
		if e.metrics != nil {
			e.metrics.FeeAssets.Add(metrics.Float(fees))
		}
	}
	acct.DropRedeem(rec.Epoch)
	return true, nil
}

// sourceLiquidity covers the gap between idle assets and everything owed to
// settled redemptions. Failures degrade the outcome, never the settlement.
func (e *Engine) sourceLiquidity(ctx context.Context, epoch uint64) liquidity.Outcome {
	owed, err := e.state.ClaimableRedeemAssets(e.params.ClaimWindowEpochs)
	if err != nil {
		return liquidity.Outcome{Result: liquidity.Failed, Provided: sdkmath.ZeroInt(), Err: err}
	}
	shortfall := domain.SubClamped(owed, e.state.IdleAssets)
	outcome := e.liquidity.Source(ctx, shortfall)
	if outcome.Provided.IsPositive() {
		// The strategy transferred these assets into the vault account
		// before returning.
		e.state.IdleAssets = e.state.IdleAssets.Add(outcome.Provided)
	}

	severity := telemetry.SeverityInfo
	detail := ""
	if outcome.Err != nil {
		severity = telemetry.SeverityWarn
		detail = outcome.Err.Error()
	}
	if err := e.telemetry.Emit(ctx, severity, telemetry.KindLiquidityOutcome, map[string]string{
		"epoch":     fmt.Sprint(epoch),
		"result":    outcome.Result.String(),
		"shortfall": shortfall.String(),
		"provided":  outcome.Provided.String(),
		"detail":    detail,
	}); err != nil {
		log.Printf("telemetry emit failed: %v", err)
	}
	return outcome
}
