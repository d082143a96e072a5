package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/epochvault/internal/vault/assets"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/liquidity"
)

type stubEpochs struct {
	current uint64
	err     error
}

func (s *stubEpochs) CurrentEpoch(ctx context.Context) (uint64, error) {
	return s.current, s.err
}

// stubStrategy reports a fixed external value and provides liquidity by
// crediting the vault's ledger account, the way a real strategy would settle
// a withdrawal.
type stubStrategy struct {
	ledger      *assets.Ledger
	aum         sdkmath.Int
	failProvide bool
	failFlush   bool
}

func (s *stubStrategy) AssetsUnderManagement(ctx context.Context) (sdkmath.Int, error) {
	return s.aum, nil
}

func (s *stubStrategy) ProvideLiquidity(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error) {
	if s.failProvide {
		return sdkmath.Int{}, errors.New("bridge down")
	}
	take := sdkmath.MinInt(amount, s.aum)
	if take.IsPositive() {
		s.ledger.Mint(VaultAccount, take)
		s.aum = s.aum.Sub(take)
	}
	return take, nil
}

func (s *stubStrategy) FlushWithdrawable(ctx context.Context) (sdkmath.Int, error) {
	if s.failFlush {
		return sdkmath.Int{}, errors.New("custody frozen")
	}
	take := s.aum
	if take.IsPositive() {
		s.ledger.Mint(VaultAccount, take)
		s.aum = sdkmath.ZeroInt()
	}
	return take, nil
}

type fixture struct {
	engine   *Engine
	ledger   *assets.Ledger
	epochs   *stubEpochs
	strategy *stubStrategy
	now      time.Time
}

func newFixture(t *testing.T, params domain.Params) *fixture {
	t.Helper()
	f := &fixture{
		ledger: assets.NewLedger(),
		epochs: &stubEpochs{},
		now:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	f.strategy = &stubStrategy{ledger: f.ledger, aum: sdkmath.ZeroInt()}

	eng, err := New(context.Background(), Config{
		Params:      params,
		EpochSource: f.epochs,
		Strategy:    f.strategy,
		Assets:      f.ledger,
		Clock:       func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = eng
	return f
}

func (f *fixture) settle(t *testing.T, epoch uint64) SettlementSummary {
	t.Helper()
	summary, err := f.engine.OnRoundSettled(context.Background(), epoch)
	if err != nil {
		t.Fatalf("settle epoch %d: %v", epoch, err)
	}
	return summary
}

func (f *fixture) deposit(t *testing.T, account string, assets int64) DepositReceipt {
	t.Helper()
	receipt, err := f.engine.RequestDeposit(context.Background(), account, account, sdkmath.NewInt(assets))
	if err != nil {
		t.Fatalf("deposit %d for %s: %v", assets, account, err)
	}
	return receipt
}

func TestFirstDepositLifecycle(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	receipt := f.deposit(t, "alice", 1000)
	if receipt.Epoch != 0 {
		t.Fatalf("expected epoch 0, got %d", receipt.Epoch)
	}

	// Pending deposits are excluded from pricing: the first settlement is at
	// par even though the pool already holds the assets.
	f.epochs.current = 1
	summary := f.settle(t, 0)
	if !summary.SharePrice.Equal(domain.PriceScaleInt()) {
		t.Fatalf("expected par price, got %s", summary.SharePrice)
	}

	// Settlement mints the deposit's shares directly; no claim is needed.
	view, err := f.engine.AccountView(context.Background(), "alice")
	if err != nil {
		t.Fatalf("account view: %v", err)
	}
	if !view.Shares.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("expected 1000 shares minted at settlement, got %s", view.Shares)
	}
	if len(view.Deposits) != 0 {
		t.Fatalf("expected no outstanding deposits, got %+v", view.Deposits)
	}

	totals, err := f.engine.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if !totals.SharePrice.Equal(domain.PriceScaleInt()) {
		t.Fatalf("expected par price after settlement, got %s", totals.SharePrice)
	}
	if !totals.TotalShares.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("expected 1000 total shares, got %s", totals.TotalShares)
	}
	if !totals.UnmintedDepositAssets.IsZero() {
		t.Fatalf("expected no unminted assets, got %s", totals.UnmintedDepositAssets)
	}

	_, err = f.engine.ClaimDeposit(context.Background(), "alice", "alice", sdkmath.OneInt())
	if !errors.Is(err, ErrInsufficientClaimable) {
		t.Fatalf("expected nothing left to claim, got %v", err)
	}
}

func TestSettleTwiceRejected(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.epochs.current = 1

	f.settle(t, 0)
	_, err := f.engine.OnRoundSettled(context.Background(), 0)
	if !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestSettleAheadOfSourceRejected(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.epochs.current = 2

	if _, err := f.engine.OnRoundSettled(context.Background(), 3); !errors.Is(err, ErrFutureEpoch) {
		t.Fatalf("expected ErrFutureEpoch, got %v", err)
	}
}

func TestRequestRollsPastSettledEpoch(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(500))

	// Settle epoch 0 while the source still reports it as current.
	f.settle(t, 0)

	receipt := f.deposit(t, "alice", 500)
	if receipt.Epoch != 1 {
		t.Fatalf("expected request to roll to epoch 1, got %d", receipt.Epoch)
	}
}

func TestRedeemShortfallsClaimOldestFirst(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	// External gains the vault cannot pull: settlements price the pool at 20
	// but leave every redemption unpaid and claimable.
	f.strategy.aum = sdkmath.NewInt(19000)
	f.strategy.failProvide = true
	f.strategy.failFlush = true

	redeem := func(epoch uint64, shares int64) {
		t.Helper()
		f.epochs.current = epoch
		if _, err := f.engine.RequestRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(shares)); err != nil {
			t.Fatalf("redeem %d: %v", shares, err)
		}
		f.epochs.current = epoch + 1
		f.settle(t, epoch)
	}
	redeem(1, 200)
	redeem(2, 100)

	// The strategy recovers; the next settlement sources the full shortfall.
	f.strategy.failProvide = false
	f.epochs.current = 4
	f.settle(t, 3)

	// 250 spans epoch 1 fully and epoch 2 partially.
	result, err := f.engine.ClaimRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(250))
	if err != nil {
		t.Fatalf("claim redeem: %v", err)
	}
	if !result.AssetsPaid.Equal(sdkmath.NewInt(5000)) {
		t.Fatalf("expected 5000 paid, got %s", result.AssetsPaid)
	}

	view, err := f.engine.AccountView(context.Background(), "alice")
	if err != nil {
		t.Fatalf("account view: %v", err)
	}
	if len(view.Redeems) != 1 || view.Redeems[0].Epoch != 2 {
		t.Fatalf("expected only epoch 2 outstanding, got %+v", view.Redeems)
	}

	_, err = f.engine.ClaimRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(51))
	if !errors.Is(err, ErrInsufficientClaimable) {
		t.Fatalf("expected ErrInsufficientClaimable, got %v", err)
	}
}

func TestRedeemPaysPerformanceFee(t *testing.T) {
	params := domain.DefaultParams("treasury")
	params.PerformanceRateBps = 2000
	f := newFixture(t, params)
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	// The strategy gains 500 externally; the next settlement prices at 1.5.
	f.strategy.aum = sdkmath.NewInt(500)

	if _, err := f.engine.RequestRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(1000)); err != nil {
		t.Fatalf("redeem request: %v", err)
	}
	f.epochs.current = 2
	summary := f.settle(t, 1)
	if !summary.SharePrice.Equal(sdkmath.NewInt(1_500_000)) {
		t.Fatalf("expected price 1500000, got %s", summary.SharePrice)
	}
	if summary.Liquidity.Result != liquidity.Satisfied {
		t.Fatalf("expected satisfied liquidity, got %v", summary.Liquidity.Result)
	}

	// Gross 1500, 20% of the 500 profit goes to the fee recipient; the net
	// payout lands at settlement.
	balance, err := f.ledger.BalanceOf(context.Background(), "alice")
	if err != nil {
		t.Fatalf("alice balance: %v", err)
	}
	if !balance.Equal(sdkmath.NewInt(1400)) {
		t.Fatalf("expected 1400 paid, got %s", balance)
	}
	balance, err = f.ledger.BalanceOf(context.Background(), "treasury")
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if !balance.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("expected treasury to hold 100, got %s", balance)
	}

	view, err := f.engine.AccountView(context.Background(), "alice")
	if err != nil {
		t.Fatalf("account view: %v", err)
	}
	if len(view.Redeems) != 0 {
		t.Fatalf("expected no outstanding redeems, got %+v", view.Redeems)
	}
}

func TestOverRedeemRejected(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	_, err := f.engine.RequestRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(1001))
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestSettlementSurvivesLiquidityFailure(t *testing.T) {
	params := domain.DefaultParams("treasury")
	f := newFixture(t, params)
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	// External gains the vault cannot pull: both liquidity paths fail.
	f.strategy.aum = sdkmath.NewInt(500)
	f.strategy.failProvide = true
	f.strategy.failFlush = true

	if _, err := f.engine.RequestRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(1000)); err != nil {
		t.Fatalf("redeem request: %v", err)
	}
	f.epochs.current = 2
	summary := f.settle(t, 1)
	if summary.Liquidity.Result != liquidity.Failed {
		t.Fatalf("expected failed liquidity, got %v", summary.Liquidity.Result)
	}

	// The full claim needs 1500 but only 1000 is idle.
	_, err := f.engine.ClaimRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(1000))
	if !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}

	// A partial claim within idle liquidity still goes through.
	result, err := f.engine.ClaimRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(600))
	if err != nil {
		t.Fatalf("partial claim: %v", err)
	}
	if !result.AssetsPaid.Equal(sdkmath.NewInt(900)) {
		t.Fatalf("expected 900 paid, got %s", result.AssetsPaid)
	}
}

func TestManagementFeeDilutes(t *testing.T) {
	params := domain.DefaultParams("treasury")
	params.ManagementRateBps = 200
	f := newFixture(t, params)
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	// A year elapses before the next settlement: 2% dilution.
	f.now = f.now.Add(365 * 24 * time.Hour)
	f.epochs.current = 2
	summary := f.settle(t, 1)
	if !summary.FeeShares.Equal(sdkmath.NewInt(20)) {
		t.Fatalf("expected 20 fee shares, got %s", summary.FeeShares)
	}
	// The price is fixed before the fee mint dilutes supply.
	if !summary.SharePrice.Equal(domain.PriceScaleInt()) {
		t.Fatalf("expected par price ahead of dilution, got %s", summary.SharePrice)
	}

	view, err := f.engine.AccountView(context.Background(), "treasury")
	if err != nil {
		t.Fatalf("treasury view: %v", err)
	}
	if !view.Shares.Equal(sdkmath.NewInt(20)) {
		t.Fatalf("expected treasury to hold 20 shares, got %s", view.Shares)
	}

	totals, err := f.engine.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if !totals.TotalShares.Equal(sdkmath.NewInt(1020)) {
		t.Fatalf("expected 1020 total shares, got %s", totals.TotalShares)
	}
}

func TestPausedBlocksRequestsNotClaims(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	// Leave a redemption shortfall behind: the pool prices at 1.5 but only
	// 1000 is idle, so the settlement cannot pay the redemption out.
	f.strategy.aum = sdkmath.NewInt(500)
	f.strategy.failProvide = true
	f.strategy.failFlush = true
	if _, err := f.engine.RequestRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(1000)); err != nil {
		t.Fatalf("redeem request: %v", err)
	}
	f.epochs.current = 2
	f.settle(t, 1)

	if err := f.engine.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := f.engine.RequestDeposit(context.Background(), "alice", "alice", sdkmath.NewInt(1))
	if !errors.Is(err, ErrVaultPaused) {
		t.Fatalf("expected ErrVaultPaused, got %v", err)
	}

	// Settled remainders stay claimable while paused.
	result, err := f.engine.ClaimRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(600))
	if err != nil {
		t.Fatalf("claim while paused: %v", err)
	}
	if !result.AssetsPaid.Equal(sdkmath.NewInt(900)) {
		t.Fatalf("expected 900 paid, got %s", result.AssetsPaid)
	}

	if err := f.engine.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := f.engine.Halt(context.Background()); err != nil {
		t.Fatalf("halt: %v", err)
	}
	_, err = f.engine.RequestRedeem(context.Background(), "alice", "alice", sdkmath.NewInt(1))
	if !errors.Is(err, ErrVaultHalted) {
		t.Fatalf("expected ErrVaultHalted, got %v", err)
	}
}

func TestEntryCostForwardedToRecipient(t *testing.T) {
	params := domain.DefaultParams("treasury")
	params.EntryCost = sdkmath.NewInt(5)
	f := newFixture(t, params)
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	receipt := f.deposit(t, "alice", 1000)
	if !receipt.NetAssets.Equal(sdkmath.NewInt(995)) {
		t.Fatalf("expected net 995, got %s", receipt.NetAssets)
	}

	balance, err := f.ledger.BalanceOf(context.Background(), "treasury")
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if !balance.Equal(sdkmath.NewInt(5)) {
		t.Fatalf("expected treasury to hold 5, got %s", balance)
	}

	_, err = f.engine.RequestDeposit(context.Background(), "alice", "alice", sdkmath.NewInt(5))
	if !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected rejection of a deposit swallowed by the entry cost, got %v", err)
	}
}

func TestOperatorCanActForOwner(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	_, err := f.engine.RequestDeposit(context.Background(), "bob", "alice", sdkmath.NewInt(1000))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before approval, got %v", err)
	}

	if err := f.engine.SetOperator(context.Background(), "alice", "bob", true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	if _, err := f.engine.RequestDeposit(context.Background(), "bob", "alice", sdkmath.NewInt(1000)); err != nil {
		t.Fatalf("operator deposit: %v", err)
	}
}

func TestAllowanceSpentByRedeem(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(1000))

	f.deposit(t, "alice", 1000)
	f.epochs.current = 1
	f.settle(t, 0)

	if err := f.engine.Approve(context.Background(), "alice", "bob", sdkmath.NewInt(400)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.RequestRedeem(context.Background(), "bob", "alice", sdkmath.NewInt(300)); err != nil {
		t.Fatalf("spender redeem: %v", err)
	}
	_, err := f.engine.RequestRedeem(context.Background(), "bob", "alice", sdkmath.NewInt(200))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected exhausted allowance rejection, got %v", err)
	}
}

func TestAllowanceSurvivesRejectedRedeem(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(100))

	f.deposit(t, "alice", 100)
	f.epochs.current = 1
	f.settle(t, 0)

	if err := f.engine.Approve(context.Background(), "alice", "bob", sdkmath.NewInt(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// The allowance covers 200 shares but the balance holds only 100; the
	// rejected request must leave the allowance untouched.
	_, err := f.engine.RequestRedeem(context.Background(), "bob", "alice", sdkmath.NewInt(200))
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	remaining := f.engine.state.Accounts["alice"].Allowance("bob")
	if !remaining.Equal(sdkmath.NewInt(500)) {
		t.Fatalf("expected allowance 500 after rejection, got %s", remaining)
	}

	if _, err := f.engine.RequestRedeem(context.Background(), "bob", "alice", sdkmath.NewInt(100)); err != nil {
		t.Fatalf("redeem within balance: %v", err)
	}
	remaining = f.engine.state.Accounts["alice"].Allowance("bob")
	if !remaining.Equal(sdkmath.NewInt(400)) {
		t.Fatalf("expected allowance 400 after spend, got %s", remaining)
	}
}

func TestDepositLimitEnforced(t *testing.T) {
	params := domain.DefaultParams("treasury")
	params.MaxPoolDeposit = sdkmath.NewInt(1500)
	f := newFixture(t, params)
	f.ledger.Mint("alice", sdkmath.NewInt(5000))

	f.deposit(t, "alice", 1000)
	_, err := f.engine.RequestDeposit(context.Background(), "alice", "alice", sdkmath.NewInt(1000))
	if !errors.Is(err, ErrDepositLimitExceeded) {
		t.Fatalf("expected ErrDepositLimitExceeded, got %v", err)
	}
}

func TestEpochSourceFailureIsFatal(t *testing.T) {
	f := newFixture(t, domain.DefaultParams("treasury"))
	f.ledger.Mint("alice", sdkmath.NewInt(100))
	f.epochs.err = errors.New("market offline")

	_, err := f.engine.RequestDeposit(context.Background(), "alice", "alice", sdkmath.NewInt(100))
	if !errors.Is(err, ErrEpochSource) {
		t.Fatalf("expected ErrEpochSource, got %v", err)
	}
	if _, err := f.engine.OnRoundSettled(context.Background(), 0); !errors.Is(err, ErrEpochSource) {
		t.Fatalf("expected ErrEpochSource on settle, got %v", err)
	}
}
