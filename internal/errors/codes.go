// Package errors provides the machine-readable error taxonomy shared by the
// vault engine and its HTTP surface.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// Authorization errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// State errors
	CodeVaultPaused Code = "VAULT_PAUSED"
	CodeVaultHalted Code = "VAULT_HALTED"

	// Validation errors
	CodeZeroAmount         Code = "ZERO_AMOUNT"
	CodeDepositLimit       Code = "DEPOSIT_LIMIT_EXCEEDED"
	CodeInsufficientShares Code = "INSUFFICIENT_SHARES"
	CodeMalformedEpoch     Code = "MALFORMED_EPOCH"
	CodeOverflow           Code = "ARITHMETIC_OVERFLOW"
	CodeInvalidParams      Code = "INVALID_PARAMETERS"

	// Claim errors
	CodeInsufficientClaimable Code = "INSUFFICIENT_CLAIMABLE"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"

	// Settlement errors
	CodeAlreadySettled Code = "EPOCH_ALREADY_SETTLED"

	// External dependency errors
	CodeEpochSourceUnavailable Code = "EPOCH_SOURCE_UNAVAILABLE"
	CodeStrategyUnavailable    Code = "STRATEGY_UNAVAILABLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// HTTPStatus maps vault error codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusForbidden

	case CodeZeroAmount,
		CodeDepositLimit,
		CodeInsufficientShares,
		CodeMalformedEpoch,
		CodeOverflow,
		CodeInvalidParams:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation right now
	case CodeVaultPaused,
		CodeVaultHalted,
		CodeInsufficientClaimable,
		CodeInsufficientLiquidity,
		CodeAlreadySettled:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	case CodeEpochSourceUnavailable,
		CodeStrategyUnavailable:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
