package domain

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	// ErrInsufficientShares indicates a burn larger than the account balance.
	ErrInsufficientShares = errors.New("insufficient shares")
)

// WAEP is an account's weighted-average entry price: the cost basis used to
// compute performance fees. Price is scaled by PriceScale; Shares is the share
// count known at the last update.
type WAEP struct {
	Price        sdkmath.Int
	Shares       sdkmath.Int
	UpdatedEpoch uint64
}

// RecordMint folds a share mint at the given price into the running average.
// A position growing from zero takes the mint price as its basis.
func (w *WAEP) RecordMint(price, newShares sdkmath.Int, epoch uint64) error {
	if newShares.IsZero() {
		return nil
	}
	if w.Shares.IsZero() {
		w.Price = price
	} else {
		blended, err := WeightedAverage(w.Price, w.Shares, price, newShares)
		if err != nil {
			return err
		}
		w.Price = blended
	}
	sum, err := AddChecked(w.Shares, newShares)
	if err != nil {
		return err
	}
	w.Shares = sum
	w.UpdatedEpoch = epoch
	return nil
}

// RecordBurn reduces the tracked share count without touching the price
// basis; redeeming at any price does not change the cost of what remains.
func (w *WAEP) RecordBurn(shares sdkmath.Int, epoch uint64) {
	w.Shares = SubClamped(w.Shares, shares)
	w.UpdatedEpoch = epoch
}

// EpochList is an ordered list of epochs with outstanding request activity,
// oldest first. Epochs are appended as requests are created and removed once
// their request is fully claimed.
type EpochList struct {
	Epochs []uint64
}

// Append adds an epoch to the tail. Appending the current tail is a no-op;
// requests within one epoch are additive.
func (l *EpochList) Append(epoch uint64) {
	if n := len(l.Epochs); n > 0 && l.Epochs[n-1] == epoch {
		return
	}
	l.Epochs = append(l.Epochs, epoch)
}

// Contains reports whether the epoch is in the list.
func (l *EpochList) Contains(epoch uint64) bool {
	for _, e := range l.Epochs {
		if e == epoch {
			return true
		}
	}
	return false
}

// Remove drops an epoch from the list, preserving order. Fully-claimed epochs
// are consumed oldest-first, so removal is almost always a front pop.
func (l *EpochList) Remove(epoch uint64) {
	for i, e := range l.Epochs {
		if e == epoch {
			l.Epochs = append(l.Epochs[:i], l.Epochs[i+1:]...)
			return
		}
	}
}

// Window returns up to the most recent n epochs, still ordered oldest first.
// Claims only look inside this window.
func (l *EpochList) Window(n int) []uint64 {
	if n <= 0 || len(l.Epochs) <= n {
		return l.Epochs
	}
	return l.Epochs[len(l.Epochs)-n:]
}

// Account is one identity's position in the vault: its share balance, cost
// basis, outstanding requests, and authorization grants.
type Account struct {
	ID     string
	Shares sdkmath.Int
	WAEP   WAEP

	Deposits map[uint64]*DepositRequest
	Redeems  map[uint64]*RedeemRequest

	DepositEpochs EpochList
	RedeemEpochs  EpochList

	// Operators may request and claim on this account's behalf without
	// consuming allowance.
	Operators map[string]struct{}
	// Allowances are standing share-spending approvals per spender, consumed
	// by redeem requests.
	Allowances map[string]sdkmath.Int
}

// NewAccount returns an empty account.
func NewAccount(id string) *Account {
	return &Account{
		ID:         id,
		Shares:     sdkmath.ZeroInt(),
		WAEP:       WAEP{Price: sdkmath.ZeroInt(), Shares: sdkmath.ZeroInt()},
		Deposits:   make(map[uint64]*DepositRequest),
		Redeems:    make(map[uint64]*RedeemRequest),
		Operators:  make(map[string]struct{}),
		Allowances: make(map[string]sdkmath.Int),
	}
}

// IsOperator reports whether caller is an approved operator of this account.
func (a *Account) IsOperator(caller string) bool {
	_, ok := a.Operators[caller]
	return ok
}

// SetOperator grants or revokes operator approval for the given caller.
func (a *Account) SetOperator(operator string, approved bool) {
	if approved {
		a.Operators[operator] = struct{}{}
		return
	}
	delete(a.Operators, operator)
}

// Allowance returns the standing share allowance for a spender.
func (a *Account) Allowance(spender string) sdkmath.Int {
	if v, ok := a.Allowances[spender]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// SetAllowance replaces the standing share allowance for a spender.
func (a *Account) SetAllowance(spender string, shares sdkmath.Int) {
	if shares.IsZero() {
		delete(a.Allowances, spender)
		return
	}
	a.Allowances[spender] = shares
}

// SpendAllowance consumes shares from a spender's allowance.
func (a *Account) SpendAllowance(spender string, shares sdkmath.Int) error {
	current := a.Allowance(spender)
	if current.LT(shares) {
		return ErrInsufficientShares
	}
	a.SetAllowance(spender, current.Sub(shares))
	return nil
}

// Mint adds shares to the balance and updates the cost basis at the given
// price.
func (a *Account) Mint(price, shares sdkmath.Int, epoch uint64) error {
	if err := a.WAEP.RecordMint(price, shares, epoch); err != nil {
		return err
	}
	sum, err := AddChecked(a.Shares, shares)
	if err != nil {
		return err
	}
	a.Shares = sum
	return nil
}

// Burn removes shares from the balance, keeping the cost basis price intact.
func (a *Account) Burn(shares sdkmath.Int, epoch uint64) error {
	if a.Shares.LT(shares) {
		return ErrInsufficientShares
	}
	a.Shares = a.Shares.Sub(shares)
	a.WAEP.RecordBurn(shares, epoch)
	return nil
}

// Deposit returns the deposit request for an epoch, creating it on first
// touch and registering the epoch in the active list.
func (a *Account) Deposit(epoch uint64) *DepositRequest {
	if req, ok := a.Deposits[epoch]; ok {
		return req
	}
	req := NewDepositRequest(epoch)
	a.Deposits[epoch] = req
	a.DepositEpochs.Append(epoch)
	return req
}

// Redeem returns the redeem request for an epoch, creating it on first touch
// and registering the epoch in the active list.
func (a *Account) Redeem(epoch uint64, entryPrice sdkmath.Int) *RedeemRequest {
	if req, ok := a.Redeems[epoch]; ok {
		return req
	}
	req := NewRedeemRequest(epoch, entryPrice)
	a.Redeems[epoch] = req
	a.RedeemEpochs.Append(epoch)
	return req
}

// DropDeposit destroys a fully-claimed deposit request and unlists its epoch.
func (a *Account) DropDeposit(epoch uint64) {
	delete(a.Deposits, epoch)
	a.DepositEpochs.Remove(epoch)
}

// DropRedeem destroys a fully-claimed redeem request and unlists its epoch.
func (a *Account) DropRedeem(epoch uint64) {
	delete(a.Redeems, epoch)
	a.RedeemEpochs.Remove(epoch)
}

// PendingDepositAssets sums the unclaimed net assets across all outstanding
// deposit requests; the limit check counts these alongside current holdings.
func (a *Account) PendingDepositAssets() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, req := range a.Deposits {
		total = total.Add(req.Remaining())
	}
	return total
}
