package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/epochvault/internal/metrics"
	"github.com/louisbranch/epochvault/internal/telemetry"
	"github.com/louisbranch/epochvault/internal/vault/domain"
	"github.com/louisbranch/epochvault/internal/vault/liquidity"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// VaultAccount is the pool's own account id on the asset ledger.
const VaultAccount = "vault"

// Config wires the engine's collaborators.
type Config struct {
	Params      domain.Params
	EpochSource EpochSource
	Strategy    liquidity.Strategy
	Assets      AssetLedger
	Store       storage.Store
	Telemetry   *telemetry.Emitter
	Metrics     *metrics.Set
	Clock       func() time.Time
}

// Engine executes all vault operations under a single vault-wide lock,
// reproducing the single-writer, totally-ordered execution model the
// accounting invariants assume.
type Engine struct {
	mu sync.Mutex

	params    domain.Params
	state     *State
	epochs    EpochSource
	liquidity *liquidity.Coordinator
	strategy  liquidity.Strategy
	assets    AssetLedger
	store     storage.Store
	telemetry *telemetry.Emitter
	metrics   *metrics.Set
	clock     func() time.Time
	tracer    trace.Tracer
}

// New creates an Engine, restoring persisted state when the store holds a
// snapshot.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.EpochSource == nil {
		return nil, fmt.Errorf("epoch source is required")
	}
	if cfg.Assets == nil {
		return nil, fmt.Errorf("asset ledger is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		params:    cfg.Params,
		state:     NewState(),
		epochs:    cfg.EpochSource,
		liquidity: liquidity.NewCoordinator(cfg.Strategy),
		strategy:  cfg.Strategy,
		assets:    cfg.Assets,
		store:     cfg.Store,
		telemetry: cfg.Telemetry,
		metrics:   cfg.Metrics,
		clock:     clock,
		tracer:    otel.Tracer("epochvault/engine"),
	}

	if cfg.Store != nil {
		snapshot, err := cfg.Store.Load(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// fresh vault
		case err != nil:
			return nil, fmt.Errorf("load vault snapshot: %w", err)
		default:
			state, err := stateFromSnapshot(snapshot)
			if err != nil {
				return nil, fmt.Errorf("restore vault snapshot: %w", err)
			}
			e.state = state
		}
	}
	e.exportGauges()
	return e, nil
}

// currentEpoch reads the external epoch source, mapping failures to their
// fatal taxonomy class. Requests landing while the source still reports an
// already-settled epoch are rolled forward to the next open one.
func (e *Engine) currentEpoch(ctx context.Context) (uint64, error) {
	current, err := e.epochs.CurrentEpoch(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEpochSource, err)
	}
	if rec, ok := e.state.Epochs[current]; ok && rec.Settled {
		return e.state.LastSettledEpoch + 1, nil
	}
	return current, nil
}

// strategyAssets reads the strategy's externally-held value; a nil strategy
// reports zero.
func (e *Engine) strategyAssets(ctx context.Context) (sdkmath.Int, error) {
	if e.strategy == nil {
		return sdkmath.ZeroInt(), nil
	}
	aum, err := e.strategy.AssetsUnderManagement(ctx)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", ErrStrategySource, err)
	}
	return aum, nil
}

// persist writes the touched records; the in-memory state is authoritative,
// so persistence failures are journaled and logged rather than unwound.
func (e *Engine) persist(ctx context.Context, batch storage.Batch) {
	if e.store == nil || batch.Empty() {
		return
	}
	if err := e.store.Apply(ctx, batch); err != nil {
		log.Printf("vault snapshot failed: %v", err)
		if emitErr := e.telemetry.Emit(ctx, telemetry.SeverityError, telemetry.KindSnapshotFailed, map[string]string{
			"error": err.Error(),
		}); emitErr != nil {
			log.Printf("telemetry emit failed: %v", emitErr)
		}
	}
}

// exportGauges pushes the aggregate state into the Prometheus gauges.
func (e *Engine) exportGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.IdleAssets.Set(metrics.Float(e.state.IdleAssets))
	e.metrics.TotalShares.Set(metrics.Float(e.state.TotalShares))
	e.metrics.PendingRedeemShares.Set(metrics.Float(e.state.PendingRedeemShares))
	e.metrics.LastSettledEpoch.Set(float64(e.state.LastSettledEpoch))
}

// Pause temporarily stops new requests. Settlements and claims continue.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status == StatusHalted {
		return ErrVaultHalted
	}
	e.state.Status = StatusPaused
	e.persist(ctx, storage.Batch{State: e.stateRecord()})
	return nil
}

// Resume reactivates a paused vault.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status == StatusHalted {
		return ErrVaultHalted
	}
	e.state.Status = StatusActive
	e.persist(ctx, storage.Batch{State: e.stateRecord()})
	return nil
}

// Halt permanently stops the vault. Only claims remain possible.
func (e *Engine) Halt(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = StatusHalted
	e.persist(ctx, storage.Batch{State: e.stateRecord()})
	return nil
}
