// Package storage defines the persistence interfaces and record types for the
// vault engine. The engine owns state in memory; stores persist snapshots so
// a restarted process resumes exactly where it stopped.
package storage

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
)

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("not found")

// VaultStateRecord is the singleton aggregate state row.
type VaultStateRecord struct {
	Status                int
	TotalShares           sdkmath.Int
	PendingRedeemShares   sdkmath.Int
	IdleAssets            sdkmath.Int
	UnmintedDepositAssets sdkmath.Int
	ReinvestableSurplus   sdkmath.Int
	LastSettledEpoch      uint64
	FeeLastAt             time.Time
	FeeTotalCollected     sdkmath.Int
	UpdatedAt             time.Time
}

// AccountRecord persists one account's balance, cost basis, and grants.
type AccountRecord struct {
	ID         string
	Shares     sdkmath.Int
	WAEPPrice  sdkmath.Int
	WAEPShares sdkmath.Int
	WAEPEpoch  uint64
	Operators  []string
	Allowances map[string]sdkmath.Int
}

// EpochRecord persists one epoch's settlement record.
type EpochRecord struct {
	Epoch                  uint64
	Settled                bool
	SharePrice             sdkmath.Int
	SettledAt              time.Time
	RequestedDepositAssets sdkmath.Int
	ClaimedDepositAssets   sdkmath.Int
	RequestedRedeemShares  sdkmath.Int
	ClaimedRedeemShares    sdkmath.Int
	Participants           []string
}

// DepositRequestRecord persists one (account, epoch) deposit request.
type DepositRequestRecord struct {
	AccountID     string
	Epoch         uint64
	NetAssets     sdkmath.Int
	ClaimedAssets sdkmath.Int
	Phase         int
}

// RedeemRequestRecord persists one (account, epoch) redeem request.
type RedeemRequestRecord struct {
	AccountID     string
	Epoch         uint64
	Shares        sdkmath.Int
	ClaimedShares sdkmath.Int
	EntryPrice    sdkmath.Int
	Phase         int
}

// RequestKey addresses one request for deletion.
type RequestKey struct {
	AccountID string
	Epoch     uint64
}

// Snapshot is the full persisted state, loaded at startup.
type Snapshot struct {
	State    VaultStateRecord
	Accounts []AccountRecord
	Epochs   []EpochRecord
	Deposits []DepositRequestRecord
	Redeems  []RedeemRequestRecord
}

// Batch is the set of records touched by one engine operation, applied in a
// single transaction. Nil State means the aggregate row is untouched.
type Batch struct {
	State          *VaultStateRecord
	Accounts       []AccountRecord
	Epochs         []EpochRecord
	Deposits       []DepositRequestRecord
	Redeems        []RedeemRequestRecord
	DeleteDeposits []RequestKey
	DeleteRedeems  []RequestKey
}

// Empty reports whether the batch carries no writes.
func (b Batch) Empty() bool {
	return b.State == nil && len(b.Accounts) == 0 && len(b.Epochs) == 0 &&
		len(b.Deposits) == 0 && len(b.Redeems) == 0 &&
		len(b.DeleteDeposits) == 0 && len(b.DeleteRedeems) == 0
}

// TelemetryEvent is one operational event in the vault journal.
type TelemetryEvent struct {
	ID        string
	Kind      string
	Severity  string
	Timestamp time.Time
	Attrs     map[string]string
}

// Store persists vault state and telemetry.
type Store interface {
	// Load returns the persisted snapshot, or ErrNotFound when the store has
	// never been written.
	Load(ctx context.Context) (*Snapshot, error)
	// Apply writes one batch atomically.
	Apply(ctx context.Context, batch Batch) error
	// AppendTelemetryEvent records one operational event.
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
	// Close releases the underlying handle.
	Close() error
}
