package epochsource

import (
	"context"
	"testing"
	"time"
)

func TestIntervalCurrentEpoch(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source, err := NewInterval(genesis, 24*time.Hour)
	if err != nil {
		t.Fatalf("new interval: %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want uint64
	}{
		{name: "at genesis", now: genesis, want: 0},
		{name: "mid first epoch", now: genesis.Add(12 * time.Hour), want: 0},
		{name: "first boundary", now: genesis.Add(24 * time.Hour), want: 1},
		{name: "week later", now: genesis.Add(7 * 24 * time.Hour), want: 7},
		{name: "before genesis", now: genesis.Add(-time.Hour), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source.WithClock(func() time.Time { return tt.now })
			got, err := source.CurrentEpoch(context.Background())
			if err != nil {
				t.Fatalf("current epoch: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected epoch %d, got %d", tt.want, got)
			}
		})
	}
}

func TestIntervalValidation(t *testing.T) {
	if _, err := NewInterval(time.Time{}, time.Hour); err == nil {
		t.Fatal("expected error for zero genesis")
	}
	if _, err := NewInterval(time.Now(), 0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
