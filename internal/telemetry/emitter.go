// Package telemetry records operational vault events into the persistent
// journal so settlements and liquidity failures can be audited after the fact.
package telemetry

import (
	"context"
	"time"

	"github.com/louisbranch/epochvault/internal/id"
	"github.com/louisbranch/epochvault/internal/vault/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event kinds emitted by the vault engine.
const (
	KindEpochSettled     = "epoch_settled"
	KindLiquidityOutcome = "liquidity_outcome"
	KindFeeAccrued       = "fee_accrued"
	KindSnapshotFailed   = "snapshot_failed"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.Store
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.Store) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the emitter or its store
// is nil, so callers never need to guard.
func (e *Emitter) Emit(ctx context.Context, severity Severity, kind string, attrs map[string]string) error {
	if e == nil || e.store == nil {
		return nil
	}
	now := time.Now().UTC()
	if e.clock != nil {
		now = e.clock().UTC()
	}
	eventID, err := id.NewID()
	if err != nil {
		return err
	}
	return e.store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		ID:        eventID,
		Kind:      kind,
		Severity:  string(severity),
		Timestamp: now,
		Attrs:     attrs,
	})
}
