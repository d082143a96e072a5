// Package sqlite provides a SQLite-backed vault storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	_ "modernc.org/sqlite"

	sqlitemigrate "github.com/louisbranch/epochvault/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/epochvault/internal/vault/storage"
	"github.com/louisbranch/epochvault/internal/vault/storage/sqlite/migrations"
)

// Store persists vault state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// encodeInt renders an Int as its decimal string; nil becomes zero so a
// half-initialized record never poisons a row.
func encodeInt(value sdkmath.Int) string {
	if value.IsNil() {
		return "0"
	}
	return value.String()
}

func decodeInt(value string) (sdkmath.Int, error) {
	parsed, ok := sdkmath.NewIntFromString(strings.TrimSpace(value))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("malformed integer %q", value)
	}
	return parsed, nil
}

// Open opens a SQLite vault store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load reads the full persisted snapshot. A store that has never seen a
// state row reports storage.ErrNotFound.
func (s *Store) Load(ctx context.Context) (*storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	state, err := s.loadState(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := &storage.Snapshot{State: *state}

	if snapshot.Accounts, err = s.loadAccounts(ctx); err != nil {
		return nil, err
	}
	if snapshot.Epochs, err = s.loadEpochs(ctx); err != nil {
		return nil, err
	}
	if snapshot.Deposits, err = s.loadDeposits(ctx); err != nil {
		return nil, err
	}
	if snapshot.Redeems, err = s.loadRedeems(ctx); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Store) loadState(ctx context.Context) (*storage.VaultStateRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT
		status, total_shares, pending_redeem_shares, idle_assets,
		unminted_deposit_assets, reinvestable_surplus, last_settled_epoch,
		fee_last_at, fee_total_collected, updated_at
	  FROM vault_state WHERE id = 1`)

	var rec storage.VaultStateRecord
	var totalShares, pendingShares, idle, unminted, surplus, feeTotal string
	var feeLastAt, updatedAt int64
	err := row.Scan(&rec.Status, &totalShares, &pendingShares, &idle,
		&unminted, &surplus, &rec.LastSettledEpoch, &feeLastAt, &feeTotal, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vault state: %w", err)
	}
	fields := []struct {
		dst *sdkmath.Int
		src string
	}{
		{&rec.TotalShares, totalShares},
		{&rec.PendingRedeemShares, pendingShares},
		{&rec.IdleAssets, idle},
		{&rec.UnmintedDepositAssets, unminted},
		{&rec.ReinvestableSurplus, surplus},
		{&rec.FeeTotalCollected, feeTotal},
	}
	for _, f := range fields {
		if *f.dst, err = decodeInt(f.src); err != nil {
			return nil, fmt.Errorf("load vault state: %w", err)
		}
	}
	rec.FeeLastAt = fromMillis(feeLastAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

func (s *Store) loadAccounts(ctx context.Context) ([]storage.AccountRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT
		id, shares, waep_price, waep_shares, waep_epoch, operators, allowances
	  FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var records []storage.AccountRecord
	for rows.Next() {
		var rec storage.AccountRecord
		var shares, waepPrice, waepShares, operators, allowances string
		if err := rows.Scan(&rec.ID, &shares, &waepPrice, &waepShares, &rec.WAEPEpoch, &operators, &allowances); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if rec.Shares, err = decodeInt(shares); err != nil {
			return nil, fmt.Errorf("account %s: %w", rec.ID, err)
		}
		if rec.WAEPPrice, err = decodeInt(waepPrice); err != nil {
			return nil, fmt.Errorf("account %s: %w", rec.ID, err)
		}
		if rec.WAEPShares, err = decodeInt(waepShares); err != nil {
			return nil, fmt.Errorf("account %s: %w", rec.ID, err)
		}
		if operators != "" {
			rec.Operators = strings.Split(operators, ",")
		}
		encoded := map[string]string{}
		if err := json.Unmarshal([]byte(allowances), &encoded); err != nil {
			return nil, fmt.Errorf("account %s allowances: %w", rec.ID, err)
		}
		rec.Allowances = make(map[string]sdkmath.Int, len(encoded))
		for spender, value := range encoded {
			parsed, err := decodeInt(value)
			if err != nil {
				return nil, fmt.Errorf("account %s allowance: %w", rec.ID, err)
			}
			rec.Allowances[spender] = parsed
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) loadEpochs(ctx context.Context) ([]storage.EpochRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT
		epoch, settled, share_price, settled_at, requested_deposit_assets,
		claimed_deposit_assets, requested_redeem_shares, claimed_redeem_shares,
		participants
	  FROM epochs ORDER BY epoch`)
	if err != nil {
		return nil, fmt.Errorf("load epochs: %w", err)
	}
	defer rows.Close()

	var records []storage.EpochRecord
	for rows.Next() {
		var rec storage.EpochRecord
		var settled int
		var price, reqDep, claimDep, reqRed, claimRed, participants string
		var settledAt int64
		if err := rows.Scan(&rec.Epoch, &settled, &price, &settledAt,
			&reqDep, &claimDep, &reqRed, &claimRed, &participants); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		rec.Settled = settled != 0
		rec.SettledAt = fromMillis(settledAt)
		fields := []struct {
			dst *sdkmath.Int
			src string
		}{
			{&rec.SharePrice, price},
			{&rec.RequestedDepositAssets, reqDep},
			{&rec.ClaimedDepositAssets, claimDep},
			{&rec.RequestedRedeemShares, reqRed},
			{&rec.ClaimedRedeemShares, claimRed},
		}
		for _, f := range fields {
			if *f.dst, err = decodeInt(f.src); err != nil {
				return nil, fmt.Errorf("epoch %d: %w", rec.Epoch, err)
			}
		}
		if participants != "" {
			rec.Participants = strings.Split(participants, ",")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) loadDeposits(ctx context.Context) ([]storage.DepositRequestRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT
		account_id, epoch, net_assets, claimed_assets, phase
	  FROM deposit_requests ORDER BY epoch, account_id`)
	if err != nil {
		return nil, fmt.Errorf("load deposit requests: %w", err)
	}
	defer rows.Close()

	var records []storage.DepositRequestRecord
	for rows.Next() {
		var rec storage.DepositRequestRecord
		var net, claimed string
		if err := rows.Scan(&rec.AccountID, &rec.Epoch, &net, &claimed, &rec.Phase); err != nil {
			return nil, fmt.Errorf("scan deposit request: %w", err)
		}
		if rec.NetAssets, err = decodeInt(net); err != nil {
			return nil, fmt.Errorf("deposit request %s/%d: %w", rec.AccountID, rec.Epoch, err)
		}
		if rec.ClaimedAssets, err = decodeInt(claimed); err != nil {
			return nil, fmt.Errorf("deposit request %s/%d: %w", rec.AccountID, rec.Epoch, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) loadRedeems(ctx context.Context) ([]storage.RedeemRequestRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT
		account_id, epoch, shares, claimed_shares, entry_price, phase
	  FROM redeem_requests ORDER BY epoch, account_id`)
	if err != nil {
		return nil, fmt.Errorf("load redeem requests: %w", err)
	}
	defer rows.Close()

	var records []storage.RedeemRequestRecord
	for rows.Next() {
		var rec storage.RedeemRequestRecord
		var shares, claimed, entryPrice string
		if err := rows.Scan(&rec.AccountID, &rec.Epoch, &shares, &claimed, &entryPrice, &rec.Phase); err != nil {
			return nil, fmt.Errorf("scan redeem request: %w", err)
		}
		if rec.Shares, err = decodeInt(shares); err != nil {
			return nil, fmt.Errorf("redeem request %s/%d: %w", rec.AccountID, rec.Epoch, err)
		}
		if rec.ClaimedShares, err = decodeInt(claimed); err != nil {
			return nil, fmt.Errorf("redeem request %s/%d: %w", rec.AccountID, rec.Epoch, err)
		}
		if rec.EntryPrice, err = decodeInt(entryPrice); err != nil {
			return nil, fmt.Errorf("redeem request %s/%d: %w", rec.AccountID, rec.Epoch, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Apply writes one batch in a single transaction.
func (s *Store) Apply(ctx context.Context, batch storage.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if batch.Empty() {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	if err := applyBatch(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func applyBatch(ctx context.Context, tx *sql.Tx, batch storage.Batch) error {
	if batch.State != nil {
		if err := upsertState(ctx, tx, *batch.State); err != nil {
			return err
		}
	}
	for _, rec := range batch.Accounts {
		if err := upsertAccount(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, rec := range batch.Epochs {
		if err := upsertEpoch(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, rec := range batch.Deposits {
		if err := upsertDeposit(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, rec := range batch.Redeems {
		if err := upsertRedeem(ctx, tx, rec); err != nil {
			return err
		}
	}
	for _, key := range batch.DeleteDeposits {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM deposit_requests WHERE account_id = ? AND epoch = ?`,
			key.AccountID, key.Epoch); err != nil {
			return fmt.Errorf("delete deposit request: %w", err)
		}
	}
	for _, key := range batch.DeleteRedeems {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM redeem_requests WHERE account_id = ? AND epoch = ?`,
			key.AccountID, key.Epoch); err != nil {
			return fmt.Errorf("delete redeem request: %w", err)
		}
	}
	return nil
}

func upsertState(ctx context.Context, tx *sql.Tx, rec storage.VaultStateRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO vault_state (
		id, status, total_shares, pending_redeem_shares, idle_assets,
		unminted_deposit_assets, reinvestable_surplus, last_settled_epoch,
		fee_last_at, fee_total_collected, updated_at
	  ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	  ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		total_shares = excluded.total_shares,
		pending_redeem_shares = excluded.pending_redeem_shares,
		idle_assets = excluded.idle_assets,
		unminted_deposit_assets = excluded.unminted_deposit_assets,
		reinvestable_surplus = excluded.reinvestable_surplus,
		last_settled_epoch = excluded.last_settled_epoch,
		fee_last_at = excluded.fee_last_at,
		fee_total_collected = excluded.fee_total_collected,
		updated_at = excluded.updated_at`,
		rec.Status, encodeInt(rec.TotalShares), encodeInt(rec.PendingRedeemShares),
		encodeInt(rec.IdleAssets), encodeInt(rec.UnmintedDepositAssets),
		encodeInt(rec.ReinvestableSurplus), rec.LastSettledEpoch,
		toMillis(rec.FeeLastAt), encodeInt(rec.FeeTotalCollected), toMillis(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert vault state: %w", err)
	}
	return nil
}

func upsertAccount(ctx context.Context, tx *sql.Tx, rec storage.AccountRecord) error {
	encoded := make(map[string]string, len(rec.Allowances))
	for spender, value := range rec.Allowances {
		encoded[spender] = encodeInt(value)
	}
	allowances, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode allowances: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO accounts (
		id, shares, waep_price, waep_shares, waep_epoch, operators, allowances
	  ) VALUES (?, ?, ?, ?, ?, ?, ?)
	  ON CONFLICT (id) DO UPDATE SET
		shares = excluded.shares,
		waep_price = excluded.waep_price,
		waep_shares = excluded.waep_shares,
		waep_epoch = excluded.waep_epoch,
		operators = excluded.operators,
		allowances = excluded.allowances`,
		rec.ID, encodeInt(rec.Shares), encodeInt(rec.WAEPPrice),
		encodeInt(rec.WAEPShares), rec.WAEPEpoch,
		strings.Join(rec.Operators, ","), string(allowances))
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", rec.ID, err)
	}
	return nil
}

func upsertEpoch(ctx context.Context, tx *sql.Tx, rec storage.EpochRecord) error {
	settled := 0
	if rec.Settled {
		settled = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO epochs (
		epoch, settled, share_price, settled_at, requested_deposit_assets,
		claimed_deposit_assets, requested_redeem_shares, claimed_redeem_shares,
		participants
	  ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	  ON CONFLICT (epoch) DO UPDATE SET
		settled = excluded.settled,
		share_price = excluded.share_price,
		settled_at = excluded.settled_at,
		requested_deposit_assets = excluded.requested_deposit_assets,
		claimed_deposit_assets = excluded.claimed_deposit_assets,
		requested_redeem_shares = excluded.requested_redeem_shares,
		claimed_redeem_shares = excluded.claimed_redeem_shares,
		participants = excluded.participants`,
		rec.Epoch, settled, encodeInt(rec.SharePrice), toMillis(rec.SettledAt),
		encodeInt(rec.RequestedDepositAssets), encodeInt(rec.ClaimedDepositAssets),
		encodeInt(rec.RequestedRedeemShares), encodeInt(rec.ClaimedRedeemShares),
		strings.Join(rec.Participants, ","))
	if err != nil {
		return fmt.Errorf("upsert epoch %d: %w", rec.Epoch, err)
	}
	return nil
}

func upsertDeposit(ctx context.Context, tx *sql.Tx, rec storage.DepositRequestRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deposit_requests (
		account_id, epoch, net_assets, claimed_assets, phase
	  ) VALUES (?, ?, ?, ?, ?)
	  ON CONFLICT (account_id, epoch) DO UPDATE SET
		net_assets = excluded.net_assets,
		claimed_assets = excluded.claimed_assets,
		phase = excluded.phase`,
		rec.AccountID, rec.Epoch, encodeInt(rec.NetAssets),
		encodeInt(rec.ClaimedAssets), rec.Phase)
	if err != nil {
		return fmt.Errorf("upsert deposit request %s/%d: %w", rec.AccountID, rec.Epoch, err)
	}
	return nil
}

func upsertRedeem(ctx context.Context, tx *sql.Tx, rec storage.RedeemRequestRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO redeem_requests (
		account_id, epoch, shares, claimed_shares, entry_price, phase
	  ) VALUES (?, ?, ?, ?, ?, ?)
	  ON CONFLICT (account_id, epoch) DO UPDATE SET
		shares = excluded.shares,
		claimed_shares = excluded.claimed_shares,
		entry_price = excluded.entry_price,
		phase = excluded.phase`,
		rec.AccountID, rec.Epoch, encodeInt(rec.Shares),
		encodeInt(rec.ClaimedShares), encodeInt(rec.EntryPrice), rec.Phase)
	if err != nil {
		return fmt.Errorf("upsert redeem request %s/%d: %w", rec.AccountID, rec.Epoch, err)
	}
	return nil
}

// AppendTelemetryEvent records one operational event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	attrs, err := json.Marshal(event.Attrs)
	if err != nil {
		return fmt.Errorf("encode telemetry attrs: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO telemetry_events (id, kind, severity, created_at, attrs)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.Kind, event.Severity, toMillis(event.Timestamp), string(attrs))
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
