package api

import (
	"net/http"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/labstack/echo/v4"

	verrors "github.com/louisbranch/epochvault/internal/errors"
)

// Amounts cross the wire as decimal strings so 256-bit values survive JSON.
type depositRequest struct {
	Owner  string `json:"owner"`
	Assets string `json:"assets"`
}

type redeemRequest struct {
	Owner  string `json:"owner"`
	Shares string `json:"shares"`
}

type depositClaimRequest struct {
	Controller string `json:"controller"`
	Assets     string `json:"assets"`
}

type redeemClaimRequest struct {
	Controller string `json:"controller"`
	Shares     string `json:"shares"`
}

type operatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

type allowanceRequest struct {
	Spender string `json:"spender"`
	Shares  string `json:"shares"`
}

func parseAmount(value string) (sdkmath.Int, bool) {
	return sdkmath.NewIntFromString(strings.TrimSpace(value))
}

func (s *Server) handleRequestDeposit(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return respondError(c, err)
	}
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, verrors.CodeZeroAmount, "malformed request body")
	}
	assets, ok := parseAmount(req.Assets)
	if !ok {
		return respondBadRequest(c, verrors.CodeZeroAmount, "assets must be a decimal integer")
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = account
	}
	receipt, err := s.engine.RequestDeposit(c.Request().Context(), account, owner, assets)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"epoch":      receipt.Epoch,
		"net_assets": receipt.NetAssets.String(),
		"entry_cost": receipt.EntryCost.String(),
	})
}

func (s *Server) handleRequestRedeem(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return respondError(c, err)
	}
	var req redeemRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, verrors.CodeZeroAmount, "malformed request body")
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		return respondBadRequest(c, verrors.CodeZeroAmount, "shares must be a decimal integer")
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = account
	}
	receipt, err := s.engine.RequestRedeem(c.Request().Context(), account, owner, shares)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{
		"epoch":       receipt.Epoch,
		"shares":      receipt.Shares.String(),
		"entry_price": receipt.EntryPrice.String(),
	})
}

func (s *Server) handleClaimDeposit(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return respondError(c, err)
	}
	var req depositClaimRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, verrors.CodeZeroAmount, "malformed request body")
	}
	assets, ok := parseAmount(req.Assets)
	if !ok {
		return respondBadRequest(c, verrors.CodeZeroAmount, "assets must be a decimal integer")
	}
	controller := strings.TrimSpace(req.Controller)
	if controller == "" {
		controller = account
	}
	result, err := s.engine.ClaimDeposit(c.Request().Context(), account, controller, assets)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"assets_claimed": result.AssetsClaimed.String(),
		"shares_minted":  result.SharesMinted.String(),
	})
}

func (s *Server) handleClaimRedeem(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return respondError(c, err)
	}
	var req redeemClaimRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, verrors.CodeZeroAmount, "malformed request body")
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		return respondBadRequest(c, verrors.CodeZeroAmount, "shares must be a decimal integer")
	}
	controller := strings.TrimSpace(req.Controller)
	if controller == "" {
		controller = account
	}
	result, err := s.engine.ClaimRedeem(c.Request().Context(), account, controller, shares)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"shares_claimed": result.SharesClaimed.String(),
		"assets_paid":    result.AssetsPaid.String(),
		"fees":           result.Fees.String(),
	})
}

func (s *Server) handleSetOperator(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return respondError(c, err)
	}
	var req operatorRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, verrors.CodeZeroAmount, "malformed request body")
	}
	if err := s.engine.SetOperator(c.Request().Context(), account, strings.TrimSpace(req.Operator), req.Approved); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleApprove(c echo.Context) error {
	account, err := caller(c)
	if err != nil {
		return respondError(c, err)
	}
	var req allowanceRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, verrors.CodeZeroAmount, "malformed request body")
	}
	shares, ok := parseAmount(req.Shares)
	if !ok {
		return respondBadRequest(c, verrors.CodeZeroAmount, "shares must be a decimal integer")
	}
	if err := s.engine.Approve(c.Request().Context(), account, strings.TrimSpace(req.Spender), shares); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSettle(c echo.Context) error {
	epoch, err := strconv.ParseUint(c.Param("epoch"), 10, 64)
	if err != nil {
		return respondBadRequest(c, verrors.CodeMalformedEpoch, "epoch must be a non-negative integer")
	}
	summary, err := s.engine.OnRoundSettled(c.Request().Context(), epoch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"epoch":          summary.Epoch,
		"share_price":    summary.SharePrice.String(),
		"deposit_assets": summary.DepositAssets.String(),
		"redeem_shares":  summary.RedeemShares.String(),
		"fee_shares":     summary.FeeShares.String(),
		"liquidity":      summary.Liquidity.Result.String(),
		"provided":       summary.Liquidity.Provided.String(),
	})
}

func (s *Server) handlePause(c echo.Context) error {
	if err := s.engine.Pause(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleResume(c echo.Context) error {
	if err := s.engine.Resume(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHalt(c echo.Context) error {
	if err := s.engine.Halt(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleVault(c echo.Context) error {
	totals, err := s.engine.Totals(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":                  totals.Status,
		"total_shares":            totals.TotalShares.String(),
		"pending_redeem_shares":   totals.PendingRedeemShares.String(),
		"effective_supply":        totals.EffectiveSupply.String(),
		"idle_assets":             totals.IdleAssets.String(),
		"unminted_deposit_assets": totals.UnmintedDepositAssets.String(),
		"reinvestable_surplus":    totals.ReinvestableSurplus.String(),
		"total_assets":            totals.TotalAssets.String(),
		"share_price":             totals.SharePrice.String(),
		"last_settled_epoch":      totals.LastSettledEpoch,
		"fees_collected":          totals.FeesCollected.String(),
	})
}

func (s *Server) handleAccount(c echo.Context) error {
	view, err := s.engine.AccountView(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	deposits := make([]echo.Map, 0, len(view.Deposits))
	for _, req := range view.Deposits {
		deposits = append(deposits, echo.Map{
			"epoch":     req.Epoch,
			"phase":     req.Phase,
			"requested": req.Requested.String(),
			"claimed":   req.Claimed.String(),
		})
	}
	redeems := make([]echo.Map, 0, len(view.Redeems))
	for _, req := range view.Redeems {
		redeems = append(redeems, echo.Map{
			"epoch":     req.Epoch,
			"phase":     req.Phase,
			"requested": req.Requested.String(),
			"claimed":   req.Claimed.String(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":         view.ID,
		"shares":     view.Shares.String(),
		"waep_price": view.WAEPPrice.String(),
		"operators":  view.Operators,
		"deposits":   deposits,
		"redeems":    redeems,
	})
}

func (s *Server) handleCurrentEpoch(c echo.Context) error {
	current, lastSettled, err := s.engine.OpenEpoch(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"current":      current,
		"last_settled": lastSettled,
	})
}

func (s *Server) handleEpoch(c echo.Context) error {
	epoch, err := strconv.ParseUint(c.Param("epoch"), 10, 64)
	if err != nil {
		return respondBadRequest(c, verrors.CodeMalformedEpoch, "epoch must be a non-negative integer")
	}
	view, err := s.engine.EpochView(c.Request().Context(), epoch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"epoch":                    view.Epoch,
		"settled":                  view.Settled,
		"share_price":              view.SharePrice.String(),
		"settled_at":               view.SettledAt,
		"requested_deposit_assets": view.RequestedDepositAssets.String(),
		"claimed_deposit_assets":   view.ClaimedDepositAssets.String(),
		"requested_redeem_shares":  view.RequestedRedeemShares.String(),
		"claimed_redeem_shares":    view.ClaimedRedeemShares.String(),
		"participants":             view.Participants,
	})
}
