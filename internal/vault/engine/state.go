package engine

import (
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/vault/domain"
)

// State is the vault's complete mutable state, held as one explicit struct.
// Only the Engine mutates it, under the vault lock.
type State struct {
	Status Status

	Accounts map[string]*domain.Account
	Epochs   map[uint64]*domain.EpochRecord

	// TotalShares is the actual circulating supply, including shares minted
	// to the fee recipient and excluding shares burned at redeem request time.
	TotalShares sdkmath.Int
	// PendingRedeemShares are shares burned for redemption requests whose
	// epoch has not settled yet; they still count toward effective supply.
	PendingRedeemShares sdkmath.Int
	// IdleAssets is the pool's asset balance.
	IdleAssets sdkmath.Int
	// UnmintedDepositAssets are pool assets received for deposits whose
	// shares have not been minted yet (pending or claimable-but-unclaimed).
	UnmintedDepositAssets sdkmath.Int
	// ReinvestableSurplus is the idle surplus recorded after the last
	// settlement, available for the strategy to pick up.
	ReinvestableSurplus sdkmath.Int

	LastSettledEpoch uint64
	// settledEpochs is the ordered list of settled epoch numbers, used for
	// the bounded claimable-redemption scan.
	settledEpochs []uint64

	FeeCursor domain.FeeCursor
}

// NewState returns an empty active state.
func NewState() *State {
	return &State{
		Status:                StatusActive,
		Accounts:              make(map[string]*domain.Account),
		Epochs:                make(map[uint64]*domain.EpochRecord),
		TotalShares:           sdkmath.ZeroInt(),
		PendingRedeemShares:   sdkmath.ZeroInt(),
		IdleAssets:            sdkmath.ZeroInt(),
		UnmintedDepositAssets: sdkmath.ZeroInt(),
		ReinvestableSurplus:   sdkmath.ZeroInt(),
		FeeCursor:             domain.NewFeeCursor(),
	}
}

// account returns the account for id, creating it on first touch.
func (s *State) account(id string) *domain.Account {
	if acct, ok := s.Accounts[id]; ok {
		return acct
	}
	acct := domain.NewAccount(id)
	s.Accounts[id] = acct
	return acct
}

// epoch returns the record for an epoch number, creating it on first touch.
func (s *State) epoch(number uint64) *domain.EpochRecord {
	if rec, ok := s.Epochs[number]; ok {
		return rec
	}
	rec := domain.NewEpochRecord(number)
	s.Epochs[number] = rec
	return rec
}

// markSettled records a newly settled epoch in the ordered scan list.
func (s *State) markSettled(number uint64) {
	i := sort.Search(len(s.settledEpochs), func(i int) bool { return s.settledEpochs[i] >= number })
	if i < len(s.settledEpochs) && s.settledEpochs[i] == number {
		return
	}
	s.settledEpochs = append(s.settledEpochs, 0)
	copy(s.settledEpochs[i+1:], s.settledEpochs[i:])
	s.settledEpochs[i] = number
	if number > s.LastSettledEpoch {
		s.LastSettledEpoch = number
	}
}

// EffectiveSupply is the share count used for pricing: circulating supply
// plus shares already burned for pending unsettled redemptions.
func (s *State) EffectiveSupply() sdkmath.Int {
	return s.TotalShares.Add(s.PendingRedeemShares)
}

// ClaimableRedeemAssets values the settled-but-unclaimed redemption shares at
// their settlement prices, scanning a bounded window of recent settled epochs.
func (s *State) ClaimableRedeemAssets(window int) (sdkmath.Int, error) {
	epochs := s.settledEpochs
	if window > 0 && len(epochs) > window {
		epochs = epochs[len(epochs)-window:]
	}
	total := sdkmath.ZeroInt()
	for _, number := range epochs {
		rec, ok := s.Epochs[number]
		if !ok {
			continue
		}
		owed, err := rec.UnclaimedRedeemAssets()
		if err != nil {
			return sdkmath.Int{}, err
		}
		total = total.Add(owed)
	}
	return total, nil
}

// TotalAssets is the asset value used for pricing: idle balance excluding
// unminted deposits, plus externally-reported strategy assets, minus
// claimable-but-unclaimed redemption value. Every subtraction saturates.
func (s *State) TotalAssets(strategyAssets sdkmath.Int, window int) (sdkmath.Int, error) {
	idle := domain.SubClamped(s.IdleAssets, s.UnmintedDepositAssets)
	total, err := domain.AddChecked(idle, strategyAssets)
	if err != nil {
		return sdkmath.Int{}, err
	}
	owed, err := s.ClaimableRedeemAssets(window)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return domain.SubClamped(total, owed), nil
}
