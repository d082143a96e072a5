// Package epochsource provides epoch numbering for the vault. The pricing
// market defines epoch boundaries; the fixed-interval source mirrors a market
// that rolls on a wall-clock schedule.
package epochsource

import (
	"context"
	"fmt"
	"time"
)

// Interval numbers epochs by elapsed wall-clock time since a genesis instant.
type Interval struct {
	genesis time.Time
	length  time.Duration
	clock   func() time.Time
}

// NewInterval returns a source whose epoch N spans
// [genesis+N*length, genesis+(N+1)*length).
func NewInterval(genesis time.Time, length time.Duration) (*Interval, error) {
	if genesis.IsZero() {
		return nil, fmt.Errorf("genesis time is required")
	}
	if length <= 0 {
		return nil, fmt.Errorf("epoch length must be positive, got %s", length)
	}
	return &Interval{genesis: genesis.UTC(), length: length, clock: time.Now}, nil
}

// WithClock overrides the time source; tests pin it.
func (i *Interval) WithClock(clock func() time.Time) *Interval {
	i.clock = clock
	return i
}

// CurrentEpoch reports the epoch containing the current instant. Time before
// genesis is epoch zero.
func (i *Interval) CurrentEpoch(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	elapsed := i.clock().UTC().Sub(i.genesis)
	if elapsed < 0 {
		return 0, nil
	}
	return uint64(elapsed / i.length), nil
}
