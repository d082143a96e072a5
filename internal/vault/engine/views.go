package engine

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// Totals is the vault-wide read view.
type Totals struct {
	Status                string
	TotalShares           sdkmath.Int
	PendingRedeemShares   sdkmath.Int
	EffectiveSupply       sdkmath.Int
	IdleAssets            sdkmath.Int
	UnmintedDepositAssets sdkmath.Int
	ReinvestableSurplus   sdkmath.Int
	TotalAssets           sdkmath.Int
	SharePrice            sdkmath.Int
	LastSettledEpoch      uint64
	FeesCollected         sdkmath.Int
}

// RequestView is one outstanding request in an account view.
type RequestView struct {
	Epoch     uint64
	Phase     string
	Requested sdkmath.Int
	Claimed   sdkmath.Int
}

// AccountSummary is the per-account read view.
type AccountSummary struct {
	ID        string
	Shares    sdkmath.Int
	WAEPPrice sdkmath.Int
	Operators []string
	Deposits  []RequestView
	Redeems   []RequestView
}

// EpochSummary is the per-epoch read view.
type EpochSummary struct {
	Epoch                  uint64
	Settled                bool
	SharePrice             sdkmath.Int
	SettledAt              time.Time
	RequestedDepositAssets sdkmath.Int
	ClaimedDepositAssets   sdkmath.Int
	RequestedRedeemShares  sdkmath.Int
	ClaimedRedeemShares    sdkmath.Int
	Participants           int
}

// OpenEpoch reports the epoch currently accepting requests alongside the
// highest settled one. The keeper drives its settlement sweep off this pair.
func (e *Engine) OpenEpoch(ctx context.Context) (current, lastSettled uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err = e.currentEpoch(ctx)
	if err != nil {
		return 0, 0, err
	}
	return current, e.state.LastSettledEpoch, nil
}

// Totals reads the aggregate vault state, pricing it against the strategy's
// current reported assets.
func (e *Engine) Totals(ctx context.Context) (Totals, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	aum, err := e.strategyAssets(ctx)
	if err != nil {
		return Totals{}, err
	}
	total, err := e.state.TotalAssets(aum, e.params.ClaimWindowEpochs)
	if err != nil {
		return Totals{}, err
	}
	price, err := domain.SharePrice(total, e.state.EffectiveSupply())
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		Status:                e.state.Status.String(),
		TotalShares:           e.state.TotalShares,
		PendingRedeemShares:   e.state.PendingRedeemShares,
		EffectiveSupply:       e.state.EffectiveSupply(),
		IdleAssets:            e.state.IdleAssets,
		UnmintedDepositAssets: e.state.UnmintedDepositAssets,
		ReinvestableSurplus:   e.state.ReinvestableSurplus,
		TotalAssets:           total,
		SharePrice:            price,
		LastSettledEpoch:      e.state.LastSettledEpoch,
		FeesCollected:         e.state.FeeCursor.TotalCollected,
	}, nil
}

// AccountView reads one account's position and outstanding requests.
func (e *Engine) AccountView(ctx context.Context, id string) (AccountSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, ok := e.state.Accounts[id]
	if !ok {
		return AccountSummary{}, ErrUnknownAccount
	}
	view := AccountSummary{
		ID:        acct.ID,
		Shares:    acct.Shares,
		WAEPPrice: acct.WAEP.Price,
		Operators: accountRecord(acct).Operators,
	}
	for _, epoch := range acct.DepositEpochs.Epochs {
		req := acct.Deposits[epoch]
		view.Deposits = append(view.Deposits, RequestView{
			Epoch:     epoch,
			Phase:     req.Phase.String(),
			Requested: req.NetAssets,
			Claimed:   req.ClaimedAssets,
		})
	}
	for _, epoch := range acct.RedeemEpochs.Epochs {
		req := acct.Redeems[epoch]
		view.Redeems = append(view.Redeems, RequestView{
			Epoch:     epoch,
			Phase:     req.Phase.String(),
			Requested: req.Shares,
			Claimed:   req.ClaimedShares,
		})
	}
	return view, nil
}

// EpochView reads one epoch's settlement record.
func (e *Engine) EpochView(ctx context.Context, epoch uint64) (EpochSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.state.Epochs[epoch]
	if !ok {
		return EpochSummary{}, fmt.Errorf("epoch %d: %w", epoch, storage.ErrNotFound)
	}
	return EpochSummary{
		Epoch:                  rec.Epoch,
		Settled:                rec.Settled,
		SharePrice:             rec.SharePrice,
		SettledAt:              rec.SettledAt,
		RequestedDepositAssets: rec.RequestedDepositAssets,
		ClaimedDepositAssets:   rec.ClaimedDepositAssets,
		RequestedRedeemShares:  rec.RequestedRedeemShares,
		ClaimedRedeemShares:    rec.ClaimedRedeemShares,
		Participants:           len(rec.Participants),
	}, nil
}
