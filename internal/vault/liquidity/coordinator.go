// Package liquidity coordinates sourcing shortfall liquidity from the
// external Strategy during settlement.
package liquidity

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Strategy is the narrow liquidity-provisioning contract the vault consumes
// from the external yield strategy. Implementations transfer provided assets
// into the vault's asset account before returning.
type Strategy interface {
	// AssetsUnderManagement reports the strategy's externally-held asset value.
	AssetsUnderManagement(ctx context.Context) (sdkmath.Int, error)
	// ProvideLiquidity asks the strategy to source a specific amount,
	// waterfalling across its own idle and invested tiers. It returns the
	// amount actually provided, which may be less than requested.
	ProvideLiquidity(ctx context.Context, amount sdkmath.Int) (sdkmath.Int, error)
	// FlushWithdrawable is the fallback: release whatever is immediately
	// withdrawable, returning the amount provided.
	FlushWithdrawable(ctx context.Context) (sdkmath.Int, error)
}

// ErrStrategyUnavailable indicates both the primary and fallback calls failed.
var ErrStrategyUnavailable = errors.New("strategy unavailable")

// Result classifies the outcome of a liquidity request.
type Result int

const (
	// Satisfied means the full shortfall was provided.
	Satisfied Result = iota
	// PartiallySatisfied means some but not all of the shortfall was provided.
	PartiallySatisfied
	// Failed means no liquidity was provided.
	Failed
)

// String returns the lowercase result name.
func (r Result) String() string {
	switch r {
	case Satisfied:
		return "satisfied"
	case PartiallySatisfied:
		return "partially_satisfied"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Outcome is the structured result of one sourcing attempt.
type Outcome struct {
	Result   Result
	Provided sdkmath.Int
	// Err carries the underlying failure detail for logging. It is set for
	// Failed and for PartiallySatisfied outcomes that went through the
	// fallback path; it never makes the enclosing settlement fail.
	Err error
}

// Coordinator sources shortfall liquidity from a Strategy, falling back to a
// plain flush when the targeted call fails.
type Coordinator struct {
	strategy Strategy
}

// NewCoordinator returns a Coordinator backed by the given strategy.
func NewCoordinator(strategy Strategy) *Coordinator {
	return &Coordinator{strategy: strategy}
}

// Source asks for a specific shortfall amount. It never returns an error;
// failures are folded into the Outcome so settlement can proceed with
// whatever liquidity exists.
func (c *Coordinator) Source(ctx context.Context, shortfall sdkmath.Int) Outcome {
	if !shortfall.IsPositive() {
		return Outcome{Result: Satisfied, Provided: sdkmath.ZeroInt()}
	}
	if c == nil || c.strategy == nil {
		return Outcome{Result: Failed, Provided: sdkmath.ZeroInt(), Err: ErrStrategyUnavailable}
	}

	provided, err := c.strategy.ProvideLiquidity(ctx, shortfall)
	if err == nil {
		return classify(shortfall, provided, nil)
	}
	primaryErr := err

	flushed, err := c.strategy.FlushWithdrawable(ctx)
	if err != nil {
		return Outcome{
			Result:   Failed,
			Provided: sdkmath.ZeroInt(),
			Err:      fmt.Errorf("%w: provide: %v; flush: %v", ErrStrategyUnavailable, primaryErr, err),
		}
	}
	return classify(shortfall, flushed, fmt.Errorf("provide failed, flushed instead: %w", primaryErr))
}

func classify(shortfall, provided sdkmath.Int, detail error) Outcome {
	if provided.IsNil() || !provided.IsPositive() {
		if detail == nil {
			detail = ErrStrategyUnavailable
		}
		return Outcome{Result: Failed, Provided: sdkmath.ZeroInt(), Err: detail}
	}
	if provided.GTE(shortfall) {
		return Outcome{Result: Satisfied, Provided: provided, Err: detail}
	}
	return Outcome{Result: PartiallySatisfied, Provided: provided, Err: detail}
}
