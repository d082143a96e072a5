package api

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	verrors "github.com/louisbranch/epochvault/internal/errors"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/engine"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    verrors.Code `json:"code"`
	Message string       `json:"message"`
}

// codeFor classifies an engine error into the shared taxonomy.
func codeFor(err error) verrors.Code {
	switch {
	case stderrors.Is(err, engine.ErrUnauthorized):
		return verrors.CodeUnauthorized
	case stderrors.Is(err, engine.ErrVaultPaused):
		return verrors.CodeVaultPaused
	case stderrors.Is(err, engine.ErrVaultHalted):
		return verrors.CodeVaultHalted
	case stderrors.Is(err, engine.ErrZeroAmount):
		return verrors.CodeZeroAmount
	case stderrors.Is(err, engine.ErrDepositLimitExceeded):
		return verrors.CodeDepositLimit
	case stderrors.Is(err, engine.ErrInsufficientClaimable):
		return verrors.CodeInsufficientClaimable
	case stderrors.Is(err, engine.ErrInsufficientLiquidity):
		return verrors.CodeInsufficientLiquidity
	case stderrors.Is(err, engine.ErrEpochSource):
		return verrors.CodeEpochSourceUnavailable
	case stderrors.Is(err, engine.ErrStrategySource):
		return verrors.CodeStrategyUnavailable
	case stderrors.Is(err, engine.ErrFutureEpoch):
		return verrors.CodeMalformedEpoch
	case stderrors.Is(err, engine.ErrUnknownAccount):
		return verrors.CodeNotFound
	case stderrors.Is(err, domain.ErrAlreadySettled):
		return verrors.CodeAlreadySettled
	case stderrors.Is(err, domain.ErrInsufficientShares):
		return verrors.CodeInsufficientShares
	case stderrors.Is(err, domain.ErrOverflow):
		return verrors.CodeOverflow
	case stderrors.Is(err, domain.ErrInvalidParams):
		return verrors.CodeInvalidParams
	case stderrors.Is(err, storage.ErrNotFound):
		return verrors.CodeNotFound
	default:
		return verrors.CodeUnknown
	}
}

// respondError writes the taxonomy-mapped JSON error.
func respondError(c echo.Context, err error) error {
	code := codeFor(err)
	message := err.Error()
	if code == verrors.CodeUnknown {
		// Internal detail stays out of the response.
		message = "internal error"
	}
	return c.JSON(code.HTTPStatus(), errorBody{Code: code, Message: message})
}

// respondBadRequest writes a validation failure with an explicit code.
func respondBadRequest(c echo.Context, code verrors.Code, message string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Code: code, Message: message})
}
