package engine

import (
	"sort"

	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// stateRecord snapshots the aggregate state into its singleton row.
func (e *Engine) stateRecord() *storage.VaultStateRecord {
	return &storage.VaultStateRecord{
		Status:                int(e.state.Status),
		TotalShares:           e.state.TotalShares,
		PendingRedeemShares:   e.state.PendingRedeemShares,
		IdleAssets:            e.state.IdleAssets,
		UnmintedDepositAssets: e.state.UnmintedDepositAssets,
		ReinvestableSurplus:   e.state.ReinvestableSurplus,
		LastSettledEpoch:      e.state.LastSettledEpoch,
		FeeLastAt:             e.state.FeeCursor.LastFeeAt,
		FeeTotalCollected:     e.state.FeeCursor.TotalCollected,
		UpdatedAt:             e.clock().UTC(),
	}
}

func accountRecord(acct *domain.Account) storage.AccountRecord {
	rec := storage.AccountRecord{
		ID:         acct.ID,
		Shares:     acct.Shares,
		WAEPPrice:  acct.WAEP.Price,
		WAEPShares: acct.WAEP.Shares,
		WAEPEpoch:  acct.WAEP.UpdatedEpoch,
		Allowances: acct.Allowances,
	}
	for operator := range acct.Operators {
		rec.Operators = append(rec.Operators, operator)
	}
	sort.Strings(rec.Operators)
	return rec
}

func epochRecord(rec *domain.EpochRecord) storage.EpochRecord {
	return storage.EpochRecord{
		Epoch:                  rec.Epoch,
		Settled:                rec.Settled,
		SharePrice:             rec.SharePrice,
		SettledAt:              rec.SettledAt,
		RequestedDepositAssets: rec.RequestedDepositAssets,
		ClaimedDepositAssets:   rec.ClaimedDepositAssets,
		RequestedRedeemShares:  rec.RequestedRedeemShares,
		ClaimedRedeemShares:    rec.ClaimedRedeemShares,
		Participants:           rec.Participants,
	}
}

func depositRecord(accountID string, req *domain.DepositRequest) storage.DepositRequestRecord {
	return storage.DepositRequestRecord{
		AccountID:     accountID,
		Epoch:         req.Epoch,
		NetAssets:     req.NetAssets,
		ClaimedAssets: req.ClaimedAssets,
		Phase:         int(req.Phase),
	}
}

func redeemRecord(accountID string, req *domain.RedeemRequest) storage.RedeemRequestRecord {
	return storage.RedeemRequestRecord{
		AccountID:     accountID,
		Epoch:         req.Epoch,
		Shares:        req.Shares,
		ClaimedShares: req.ClaimedShares,
		EntryPrice:    req.EntryPrice,
		Phase:         int(req.Phase),
	}
}

// stateFromSnapshot rebuilds the in-memory state from a persisted snapshot.
// Per-account epoch lists are derived from the surviving request records, not
// stored separately.
func stateFromSnapshot(snapshot *storage.Snapshot) (*State, error) {
	state := NewState()
	state.Status = Status(snapshot.State.Status)
	state.TotalShares = snapshot.State.TotalShares
	state.PendingRedeemShares = snapshot.State.PendingRedeemShares
	state.IdleAssets = snapshot.State.IdleAssets
	state.UnmintedDepositAssets = snapshot.State.UnmintedDepositAssets
	state.ReinvestableSurplus = snapshot.State.ReinvestableSurplus
	state.LastSettledEpoch = snapshot.State.LastSettledEpoch
	state.FeeCursor = domain.FeeCursor{
		LastFeeAt:      snapshot.State.FeeLastAt,
		TotalCollected: snapshot.State.FeeTotalCollected,
	}

	for _, rec := range snapshot.Accounts {
		acct := domain.NewAccount(rec.ID)
		acct.Shares = rec.Shares
		acct.WAEP = domain.WAEP{Price: rec.WAEPPrice, Shares: rec.WAEPShares, UpdatedEpoch: rec.WAEPEpoch}
		for _, operator := range rec.Operators {
			acct.Operators[operator] = struct{}{}
		}
		for spender, shares := range rec.Allowances {
			acct.Allowances[spender] = shares
		}
		state.Accounts[rec.ID] = acct
	}

	for _, rec := range snapshot.Epochs {
		epoch := domain.NewEpochRecord(rec.Epoch)
		epoch.Settled = rec.Settled
		epoch.SharePrice = rec.SharePrice
		epoch.SettledAt = rec.SettledAt
		epoch.RequestedDepositAssets = rec.RequestedDepositAssets
		epoch.ClaimedDepositAssets = rec.ClaimedDepositAssets
		epoch.RequestedRedeemShares = rec.RequestedRedeemShares
		epoch.ClaimedRedeemShares = rec.ClaimedRedeemShares
		epoch.Participants = rec.Participants
		state.Epochs[rec.Epoch] = epoch
		if epoch.Settled {
			state.markSettled(epoch.Epoch)
		}
	}

	deposits := append([]storage.DepositRequestRecord(nil), snapshot.Deposits...)
	sort.Slice(deposits, func(i, j int) bool { return deposits[i].Epoch < deposits[j].Epoch })
	for _, rec := range deposits {
		acct := state.account(rec.AccountID)
		req := acct.Deposit(rec.Epoch)
		req.NetAssets = rec.NetAssets
		req.ClaimedAssets = rec.ClaimedAssets
		req.Phase = domain.Phase(rec.Phase)
	}

	redeems := append([]storage.RedeemRequestRecord(nil), snapshot.Redeems...)
	sort.Slice(redeems, func(i, j int) bool { return redeems[i].Epoch < redeems[j].Epoch })
	for _, rec := range redeems {
		acct := state.account(rec.AccountID)
		req := acct.Redeem(rec.Epoch, rec.EntryPrice)
		req.Shares = rec.Shares
		req.ClaimedShares = rec.ClaimedShares
		req.EntryPrice = rec.EntryPrice
		req.Phase = domain.Phase(rec.Phase)
	}

	return state, nil
}
