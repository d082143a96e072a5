package engine

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// DepositReceipt confirms an accepted deposit request.
type DepositReceipt struct {
	Epoch uint64
	// NetAssets is the amount tagged to the epoch after the entry cost.
	NetAssets sdkmath.Int
	EntryCost sdkmath.Int
}

// RedeemReceipt confirms an accepted redeem request.
type RedeemReceipt struct {
	Epoch  uint64
	Shares sdkmath.Int
	// EntryPrice is the cost basis captured for the performance fee.
	EntryPrice sdkmath.Int
}

// RequestDeposit accepts assets into the current open epoch. The gross amount
// moves into the pool immediately; the entry cost is forwarded to the fee
// recipient and the net remainder waits, unminted, for settlement.
func (e *Engine) RequestDeposit(ctx context.Context, caller, owner string, assets sdkmath.Int) (DepositReceipt, error) {
	ctx, span := e.tracer.Start(ctx, "RequestDeposit")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requestable(); err != nil {
		return DepositReceipt{}, err
	}
	if assets.IsNil() || !assets.IsPositive() {
		return DepositReceipt{}, ErrZeroAmount
	}
	acct := e.state.account(owner)
	if caller != owner && !acct.IsOperator(caller) {
		return DepositReceipt{}, ErrUnauthorized
	}
	net := assets.Sub(e.params.EntryCost)
	if !net.IsPositive() {
		return DepositReceipt{}, fmt.Errorf("%w: deposit must exceed the entry cost of %s", ErrZeroAmount, e.params.EntryCost)
	}

	epoch, err := e.currentEpoch(ctx)
	if err != nil {
		return DepositReceipt{}, err
	}
	if err := e.checkDepositLimits(ctx, acct, net); err != nil {
		return DepositReceipt{}, err
	}

	// Move the gross amount in, then forward the entry cost. The request is
	// recorded only after both transfers succeed.
	if err := e.assets.Transfer(ctx, owner, VaultAccount, assets); err != nil {
		return DepositReceipt{}, fmt.Errorf("transfer deposit: %w", err)
	}
	if e.params.EntryCost.IsPositive() {
		if err := e.assets.Transfer(ctx, VaultAccount, e.params.FeeRecipient, e.params.EntryCost); err != nil {
			return DepositReceipt{}, fmt.Errorf("forward entry cost: %w", err)
		}
	}

	req := acct.Deposit(epoch)
	if err := req.Add(net); err != nil {
		return DepositReceipt{}, err
	}
	rec := e.state.epoch(epoch)
	if err := rec.RecordDepositRequest(net); err != nil {
		return DepositReceipt{}, err
	}
	rec.AddParticipant(owner)

	e.state.IdleAssets = e.state.IdleAssets.Add(net)
	e.state.UnmintedDepositAssets = e.state.UnmintedDepositAssets.Add(net)
	if e.params.EntryCost.IsPositive() {
		collected, err := domain.AddChecked(e.state.FeeCursor.TotalCollected, e.params.EntryCost)
		if err != nil {
			return DepositReceipt{}, err
		}
		e.state.FeeCursor.TotalCollected = collected
	}

	if e.metrics != nil {
		e.metrics.DepositRequests.Inc()
	}
	e.exportGauges()
	e.persist(ctx, storage.Batch{
		State:    e.stateRecord(),
		Accounts: []storage.AccountRecord{accountRecord(acct)},
		Epochs:   []storage.EpochRecord{epochRecord(rec)},
		Deposits: []storage.DepositRequestRecord{depositRecord(owner, req)},
	})
	return DepositReceipt{Epoch: epoch, NetAssets: net, EntryCost: e.params.EntryCost}, nil
}

// RequestRedeem burns shares from the owner's balance and tags them to the
// current open epoch. A non-operator caller spends the owner's allowance.
func (e *Engine) RequestRedeem(ctx context.Context, caller, owner string, shares sdkmath.Int) (RedeemReceipt, error) {
	ctx, span := e.tracer.Start(ctx, "RequestRedeem")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requestable(); err != nil {
		return RedeemReceipt{}, err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return RedeemReceipt{}, ErrZeroAmount
	}
	acct, ok := e.state.Accounts[owner]
	if !ok {
		return RedeemReceipt{}, ErrUnknownAccount
	}
	operator := caller == owner || acct.IsOperator(caller)
	if !operator && acct.Allowance(caller).LT(shares) {
		return RedeemReceipt{}, ErrUnauthorized
	}
	if acct.Shares.LT(shares) {
		return RedeemReceipt{}, domain.ErrInsufficientShares
	}

	epoch, err := e.currentEpoch(ctx)
	if err != nil {
		return RedeemReceipt{}, err
	}

	// The allowance is spent only after every rejection path has passed, so
	// a failed request leaves it intact.
	if !operator {
		if err := acct.SpendAllowance(caller, shares); err != nil {
			return RedeemReceipt{}, ErrUnauthorized
		}
	}

	// Capture the cost basis before the burn adjusts the tracked position.
	entryPrice := acct.WAEP.Price
	if err := acct.Burn(shares, epoch); err != nil {
		return RedeemReceipt{}, err
	}
	e.state.TotalShares = e.state.TotalShares.Sub(shares)
	e.state.PendingRedeemShares = e.state.PendingRedeemShares.Add(shares)

	req := acct.Redeem(epoch, entryPrice)
	if err := req.Add(shares, entryPrice); err != nil {
		return RedeemReceipt{}, err
	}
	rec := e.state.epoch(epoch)
	if err := rec.RecordRedeemRequest(shares); err != nil {
		return RedeemReceipt{}, err
	}
	rec.AddParticipant(owner)

	if e.metrics != nil {
		e.metrics.RedeemRequests.Inc()
	}
	e.exportGauges()
	e.persist(ctx, storage.Batch{
		State:    e.stateRecord(),
		Accounts: []storage.AccountRecord{accountRecord(acct)},
		Epochs:   []storage.EpochRecord{epochRecord(rec)},
		Redeems:  []storage.RedeemRequestRecord{redeemRecord(owner, req)},
	})
	return RedeemReceipt{Epoch: epoch, Shares: shares, EntryPrice: req.EntryPrice}, nil
}

// SetOperator grants or revokes an operator on the caller's own account.
func (e *Engine) SetOperator(ctx context.Context, caller, operator string, approved bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusHalted {
		return ErrVaultHalted
	}
	if operator == "" || operator == caller {
		return fmt.Errorf("%w: operator must be another account", ErrUnauthorized)
	}
	acct := e.state.account(caller)
	acct.SetOperator(operator, approved)
	e.persist(ctx, storage.Batch{Accounts: []storage.AccountRecord{accountRecord(acct)}})
	return nil
}

// Approve sets a standing share allowance for a spender on the caller's
// account, replacing any previous value.
func (e *Engine) Approve(ctx context.Context, caller, spender string, shares sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusHalted {
		return ErrVaultHalted
	}
	if shares.IsNil() || shares.IsNegative() {
		return ErrZeroAmount
	}
	if spender == "" || spender == caller {
		return fmt.Errorf("%w: spender must be another account", ErrUnauthorized)
	}
	acct := e.state.account(caller)
	acct.SetAllowance(spender, shares)
	e.persist(ctx, storage.Batch{Accounts: []storage.AccountRecord{accountRecord(acct)}})
	return nil
}

// requestable reports whether the vault accepts new requests.
func (e *Engine) requestable() error {
	switch e.state.Status {
	case StatusHalted:
		return ErrVaultHalted
	case StatusPaused:
		return ErrVaultPaused
	default:
		return nil
	}
}

// checkDepositLimits enforces the per-user and pool-wide caps. The strategy
// read is fatal here: accepting a deposit against unknown pool value could
// breach the cap.
func (e *Engine) checkDepositLimits(ctx context.Context, acct *domain.Account, net sdkmath.Int) error {
	if e.params.MaxUserDeposit.IsZero() && e.params.MaxPoolDeposit.IsZero() {
		return nil
	}
	aum, err := e.strategyAssets(ctx)
	if err != nil {
		return err
	}
	total, err := e.state.TotalAssets(aum, e.params.ClaimWindowEpochs)
	if err != nil {
		return err
	}
	if !e.params.MaxPoolDeposit.IsZero() {
		// Pending unminted deposits count toward the cap even though they
		// are excluded from pricing.
		exposure, err := domain.AddChecked(total, e.state.UnmintedDepositAssets)
		if err != nil {
			return err
		}
		next, err := domain.AddChecked(exposure, net)
		if err != nil {
			return err
		}
		if next.GT(e.params.MaxPoolDeposit) {
			return fmt.Errorf("%w: pool cap %s", ErrDepositLimitExceeded, e.params.MaxPoolDeposit)
		}
	}
	if !e.params.MaxUserDeposit.IsZero() {
		held, err := domain.SharesToAssets(acct.Shares, total, e.state.EffectiveSupply())
		if err != nil {
			return err
		}
		exposure := held.Add(acct.PendingDepositAssets()).Add(net)
		if exposure.GT(e.params.MaxUserDeposit) {
			return fmt.Errorf("%w: user cap %s", ErrDepositLimitExceeded, e.params.MaxUserDeposit)
		}
	}
	return nil
}
